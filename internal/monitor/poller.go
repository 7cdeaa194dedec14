package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// joinTimeout bounds how long Stop waits for the polling goroutine to exit.
const joinTimeout = 5 * time.Second

// StatusChecker probes one pipeline's current health. Implementations are
// per pipeline kind (Jenkins API, systemd unit state, HTTP probe).
type StatusChecker interface {
	Check(ctx context.Context, pipeline Pipeline) (Status, error)
}

// StatusCheckerFunc adapts a function to the StatusChecker interface.
type StatusCheckerFunc func(ctx context.Context, pipeline Pipeline) (Status, error)

func (f StatusCheckerFunc) Check(ctx context.Context, pipeline Pipeline) (Status, error) {
	return f(ctx, pipeline)
}

// NewStalenessChecker returns the default checker: a pipeline that has not
// failed within the window is considered healthy again; a recently failed
// one keeps its current status. It never probes the pipeline itself.
func NewStalenessChecker(window time.Duration) StatusChecker {
	return StatusCheckerFunc(func(_ context.Context, p Pipeline) (Status, error) {
		if p.Status == StatusFailed && !p.LastFailureAt.IsZero() &&
			time.Since(p.LastFailureAt) > window {
			return StatusHealthy, nil
		}
		return p.Status, nil
	})
}

// Poller periodically refreshes the status of every registered pipeline
// through a StatusChecker. It owns exactly one goroutine.
type Poller struct {
	monitor  *Monitor
	checker  StatusChecker
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewPoller creates a poller over the given monitor. A non-positive interval
// defaults to 30 seconds; a nil logger to a no-op logger.
func NewPoller(m *Monitor, checker StatusChecker, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		monitor:  m,
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the polling goroutine. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.run(ctx, p.stop, p.done)
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
}

// Stop signals the polling goroutine and waits, bounded, for it to exit.
// Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)

	select {
	case <-p.done:
	case <-time.After(joinTimeout):
		p.logger.Warn("poller did not stop within join timeout")
	}
	p.stop = nil
	p.done = nil
}

func (p *Poller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	if p.checker == nil {
		return
	}
	for _, pipeline := range p.monitor.Pipelines() {
		status, err := p.checker.Check(ctx, pipeline)
		if err != nil {
			p.logger.Warn("status check failed",
				zap.String("pipeline", pipeline.ID),
				zap.Error(err),
			)
			continue
		}
		if status != pipeline.Status {
			p.logger.Info("pipeline status changed",
				zap.String("pipeline", pipeline.ID),
				zap.String("from", string(pipeline.Status)),
				zap.String("to", string(status)),
			)
		}
		p.monitor.SetStatus(pipeline.ID, status)
	}
}
