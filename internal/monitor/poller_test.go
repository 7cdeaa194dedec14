package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerUpdatesStatuses(t *testing.T) {
	m := newTestMonitor(t)
	m.Register("deploy-prod", "jenkins")

	var checks atomic.Int64
	checker := StatusCheckerFunc(func(_ context.Context, _ Pipeline) (Status, error) {
		checks.Add(1)
		return StatusHealthy, nil
	})

	p := NewPoller(m, checker, 10*time.Millisecond, nil)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return checks.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Equal(t, StatusHealthy, m.Pipelines()[0].Status)
}

func TestPollerCheckErrorKeepsStatus(t *testing.T) {
	m := newTestMonitor(t)
	m.Register("deploy-prod", "jenkins")
	m.SetStatus("deploy-prod", StatusDegraded)

	checker := StatusCheckerFunc(func(_ context.Context, _ Pipeline) (Status, error) {
		return StatusHealthy, context.DeadlineExceeded
	})

	p := NewPoller(m, checker, 5*time.Millisecond, nil)
	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	assert.Equal(t, StatusDegraded, m.Pipelines()[0].Status,
		"a failed check never overwrites the last known status")
}

func TestPollerStartStopIdempotent(t *testing.T) {
	m := newTestMonitor(t)
	p := NewPoller(m, nil, 10*time.Millisecond, nil)

	// Stop before Start is a no-op.
	p.Stop()

	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestPollerImmediateStop(t *testing.T) {
	m := newTestMonitor(t)
	p := NewPoller(m, nil, time.Hour, nil)

	p.Start(context.Background())
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

func TestPollerRestart(t *testing.T) {
	m := newTestMonitor(t)
	m.Register("p1", "jenkins")

	var checks atomic.Int64
	checker := StatusCheckerFunc(func(_ context.Context, _ Pipeline) (Status, error) {
		checks.Add(1)
		return StatusHealthy, nil
	})

	p := NewPoller(m, checker, 5*time.Millisecond, nil)
	p.Start(context.Background())
	require.Eventually(t, func() bool { return checks.Load() >= 1 }, time.Second, time.Millisecond)
	p.Stop()

	before := checks.Load()
	p.Start(context.Background())
	require.Eventually(t, func() bool { return checks.Load() > before }, time.Second, time.Millisecond)
	p.Stop()
}

func TestStalenessChecker(t *testing.T) {
	checker := NewStalenessChecker(time.Minute)

	recent := Pipeline{Status: StatusFailed, LastFailureAt: time.Now()}
	status, err := checker.Check(context.Background(), recent)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	stale := Pipeline{Status: StatusFailed, LastFailureAt: time.Now().Add(-2 * time.Minute)}
	status, _ = checker.Check(context.Background(), stale)
	assert.Equal(t, StatusHealthy, status)

	healthy := Pipeline{Status: StatusHealthy}
	status, _ = checker.Check(context.Background(), healthy)
	assert.Equal(t, StatusHealthy, status)
}

func TestPollerDefaultInterval(t *testing.T) {
	p := NewPoller(newTestMonitor(t), nil, 0, nil)
	assert.Equal(t, 30*time.Second, p.interval)
}
