// Package monitor tracks registered pipelines, fans failure events out to
// observers, and drives healing for events severe enough to act on.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healerd/monitor")

// Status is a pipeline's last observed health.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Pipeline is one registered CI/CD pipeline under observation.
type Pipeline struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	Status        Status    `json:"status"`
	FailureCount  int       `json:"failure_count"`
	HealingCount  int       `json:"healing_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// FailureEvent is one reported pipeline failure. Record takes precedence over
// the raw fields when set.
type FailureEvent struct {
	PipelineID string
	Record     *classifier.ErrorRecord

	Source   classifier.Source
	RawError string
	Stdout   string
	Stderr   string
	Host     string
	TaskName string
	Module   string

	TargetHosts []string
}

// FailureObserver is invoked for every classified failure.
type FailureObserver func(*classifier.ErrorRecord)

// HealingObserver is invoked for every terminal healing session.
type HealingObserver func(*healer.HealingSession)

// Monitor owns the pipeline registry and the failure-handling chain.
type Monitor struct {
	classifier *classifier.Classifier
	healer     *healer.Healer
	logger     *zap.Logger

	mu         sync.Mutex
	pipelines  map[string]*Pipeline
	onFailure  []FailureObserver
	onHealing  []HealingObserver

	failuresObserved  *prometheus.CounterVec
	healingsAttempted *prometheus.CounterVec
	healingsSucceeded *prometheus.CounterVec
}

// New creates a monitor. The classifier and healer are required; a nil
// registerer falls back to the default Prometheus registry and a nil logger
// to a no-op logger.
func New(cls *classifier.Classifier, h *healer.Healer, reg prometheus.Registerer, logger *zap.Logger) (*Monitor, error) {
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if h == nil {
		return nil, fmt.Errorf("healer is required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		classifier: cls,
		healer:     h,
		logger:     logger,
		pipelines:  make(map[string]*Pipeline),
		failuresObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healerd_failures_observed_total",
			Help: "Pipeline failures observed, by pipeline and category.",
		}, []string{"pipeline", "category"}),
		healingsAttempted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healerd_healings_attempted_total",
			Help: "Healing attempts started, by pipeline.",
		}, []string{"pipeline"}),
		healingsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healerd_healings_succeeded_total",
			Help: "Healing attempts that verified successfully, by pipeline.",
		}, []string{"pipeline"}),
	}
	reg.MustRegister(m.failuresObserved, m.healingsAttempted, m.healingsSucceeded)
	return m, nil
}

// Register adds or resets a pipeline under observation.
func (m *Monitor) Register(id, kind string) *Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &Pipeline{ID: id, Kind: kind, Status: StatusUnknown}
	m.pipelines[id] = p
	return p
}

// Unregister removes a pipeline from observation.
func (m *Monitor) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pipelines, id)
}

// Pipelines returns a snapshot of the registered pipelines.
func (m *Monitor) Pipelines() []Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, *p)
	}
	return out
}

// SetStatus updates a pipeline's observed status; unregistered ids are
// ignored.
func (m *Monitor) SetStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[id]; ok {
		p.Status = status
	}
}

// OnFailure registers an observer invoked for every classified failure.
func (m *Monitor) OnFailure(obs FailureObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailure = append(m.onFailure, obs)
}

// OnHealing registers an observer invoked for every terminal session.
func (m *Monitor) OnHealing(obs HealingObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHealing = append(m.onHealing, obs)
}

// HandleFailure runs the full failure chain synchronously: classify, notify
// failure observers, heal when the severity warrants it, notify healing
// observers, and bump pipeline counters. It returns the classified record and
// the healing session, which is nil when no healing was attempted.
func (m *Monitor) HandleFailure(ctx context.Context, event FailureEvent) (*classifier.ErrorRecord, *healer.HealingSession) {
	ctx, span := tracer.Start(ctx, "monitor.handle_failure")
	defer span.End()

	record := event.Record
	if record == nil {
		record = m.classifier.Classify(event.Source, event.RawError, event.Stdout,
			event.Stderr, event.Host, event.TaskName, event.Module)
	}
	span.SetAttributes(
		attribute.String("pipeline", event.PipelineID),
		attribute.String("category", string(record.Category)),
		attribute.String("severity", string(record.Severity)),
	)

	m.failuresObserved.WithLabelValues(orUnknown(event.PipelineID), string(record.Category)).Inc()
	m.markFailure(event.PipelineID)
	m.notifyFailure(record)

	// Low-severity failures are recorded and surfaced but not auto-healed.
	if record.Severity == classifier.SeverityLow {
		m.logger.Info("failure below healing threshold",
			zap.String("pipeline", event.PipelineID),
			zap.String("category", string(record.Category)),
		)
		return record, nil
	}

	m.healingsAttempted.WithLabelValues(orUnknown(event.PipelineID)).Inc()
	session := m.healer.Heal(ctx, healer.HealRequest{
		Record:      record,
		TargetHosts: event.TargetHosts,
	})
	if session.Success {
		m.healingsSucceeded.WithLabelValues(orUnknown(event.PipelineID)).Inc()
	}
	m.markHealing(event.PipelineID, session.Success)
	m.notifyHealing(session)

	return record, session
}

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

func (m *Monitor) markFailure(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[id]; ok {
		p.FailureCount++
		p.LastFailureAt = time.Now()
		p.Status = StatusFailed
	}
}

func (m *Monitor) markHealing(id string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[id]; ok {
		p.HealingCount++
		if success {
			p.Status = StatusHealthy
		}
	}
}

func (m *Monitor) notifyFailure(record *classifier.ErrorRecord) {
	m.mu.Lock()
	observers := make([]FailureObserver, len(m.onFailure))
	copy(observers, m.onFailure)
	m.mu.Unlock()

	for _, obs := range observers {
		m.invokeFailureObserver(obs, record)
	}
}

func (m *Monitor) notifyHealing(session *healer.HealingSession) {
	m.mu.Lock()
	observers := make([]HealingObserver, len(m.onHealing))
	copy(observers, m.onHealing)
	m.mu.Unlock()

	for _, obs := range observers {
		m.invokeHealingObserver(obs, session)
	}
}

// Observer panics are isolated: one misbehaving callback never aborts the
// chain or starves later observers.
func (m *Monitor) invokeFailureObserver(obs FailureObserver, record *classifier.ErrorRecord) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("failure observer panicked", zap.Any("panic", r))
		}
	}()
	obs(record)
}

func (m *Monitor) invokeHealingObserver(obs HealingObserver, session *healer.HealingSession) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("healing observer panicked", zap.Any("panic", r))
		}
	}()
	obs(session)
}
