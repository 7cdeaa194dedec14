package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel returns deterministic results per host/command and records the
// order commands were run in.
type fakeChannel struct {
	mu sync.Mutex
	// failCommands maps "host|command" to a forced non-zero exit.
	failCommands map[string]bool
	// errHosts maps host to a channel failure for every command.
	errHosts map[string]bool
	calls    []string
}

func (f *fakeChannel) Run(_ context.Context, host, command string) (string, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host+"|"+command)
	if f.errHosts[host] {
		return "", "", false, errors.New("host unreachable")
	}
	if f.failCommands[host+"|"+command] {
		return "", "exit status 1", false, nil
	}
	return "ok", "", true, nil
}

func restartPlan() *planner.RemediationPlan {
	return &planner.RemediationPlan{
		Valid:                true,
		RiskLevel:            planner.RiskMedium,
		DiagnosticCommands:   []string{"systemctl status nginx"},
		FixCommands:          []string{"sudo systemctl restart nginx"},
		VerificationCommands: []string{"systemctl is-active nginx"},
	}
}

func TestNewCoordinatorRequiresChannel(t *testing.T) {
	_, err := NewCoordinator(nil, nil)
	require.Error(t, err)
}

func TestNormalizeHosts(t *testing.T) {
	assert.Equal(t, []string{"localhost"}, NormalizeHosts(nil))
	assert.Equal(t, []string{"localhost"}, NormalizeHosts([]string{}))
	assert.Equal(t, []string{"web-01"}, NormalizeHosts([]string{"web-01"}))
}

func TestExecuteRecordsFixActionPerHost(t *testing.T) {
	ch := &fakeChannel{}
	c, err := NewCoordinator(ch, nil)
	require.NoError(t, err)

	result := c.Execute(context.Background(), restartPlan(), []string{"web-01"})

	require.True(t, result.Success)
	outcomes := result.PerHost["web-01"]
	require.Len(t, outcomes, 2)
	assert.Equal(t, PhaseDiagnostic, outcomes[0].Phase)
	assert.Equal(t, PhaseFix, outcomes[1].Phase)
	assert.Equal(t, "sudo systemctl restart nginx", outcomes[1].Command)
	assert.True(t, outcomes[1].Success)
	assert.False(t, outcomes[1].Timestamp.IsZero())
}

func TestExecutePhaseOrderingWithinHost(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := NewCoordinator(ch, nil)

	plan := &planner.RemediationPlan{
		Valid:              true,
		DiagnosticCommands: []string{"diag-1", "diag-2"},
		FixCommands:        []string{"fix-1"},
	}
	c.Execute(context.Background(), plan, []string{"h1"})

	assert.Equal(t, []string{"h1|diag-1", "h1|diag-2", "h1|fix-1"}, ch.calls)
}

func TestExecuteHostFailureIsolated(t *testing.T) {
	ch := &fakeChannel{errHosts: map[string]bool{"web-01": true}}
	c, _ := NewCoordinator(ch, nil)

	result := c.Execute(context.Background(), restartPlan(), []string{"web-01", "web-02"})

	assert.False(t, result.Success, "overall success is the conjunction")

	// web-02 still ran everything despite web-01 being unreachable.
	require.Len(t, result.PerHost["web-02"], 2)
	for _, o := range result.PerHost["web-02"] {
		assert.True(t, o.Success)
	}

	// web-01's outcomes carry the channel error.
	require.Len(t, result.PerHost["web-01"], 2)
	assert.Contains(t, result.PerHost["web-01"][0].Error, "unreachable")

	require.NotEmpty(t, result.FailedActions)
	assert.Contains(t, result.FailedActions[0], "web-01")
}

func TestExecuteCommandFailureRecorded(t *testing.T) {
	ch := &fakeChannel{failCommands: map[string]bool{
		"db-01|sudo systemctl restart nginx": true,
	}}
	c, _ := NewCoordinator(ch, nil)

	result := c.Execute(context.Background(), restartPlan(), []string{"db-01"})

	assert.False(t, result.Success)
	assert.Equal(t, []string{"db-01: sudo systemctl restart nginx"}, result.FailedActions)
	// The failed fix is still a recorded outcome, not an abort.
	require.Len(t, result.PerHost["db-01"], 2)
	assert.False(t, result.PerHost["db-01"][1].Success)
}

func TestExecuteDefaultsToLocalhost(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := NewCoordinator(ch, nil)

	result := c.Execute(context.Background(), restartPlan(), nil)
	assert.Contains(t, result.PerHost, "localhost")
}

func TestVerifyConjunctionAcrossHosts(t *testing.T) {
	ch := &fakeChannel{failCommands: map[string]bool{
		"web-02|systemctl is-active nginx": true,
	}}
	c, _ := NewCoordinator(ch, nil)

	result := c.Verify(context.Background(), restartPlan(), []string{"web-01", "web-02"})

	assert.False(t, result.Verified)
	assert.True(t, result.PerHost["web-01"][0].Success)
	assert.False(t, result.PerHost["web-02"][0].Success)
}

func TestVerifyAllPass(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := NewCoordinator(ch, nil)

	result := c.Verify(context.Background(), restartPlan(), []string{"web-01", "web-02"})
	assert.True(t, result.Verified)
}

func TestVerifyEmptyCommandsIsVacuouslyVerified(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := NewCoordinator(ch, nil)

	plan := &planner.RemediationPlan{Valid: true}
	result := c.Verify(context.Background(), plan, []string{"web-01"})
	assert.True(t, result.Verified)
	assert.Empty(t, result.PerHost["web-01"])
}
