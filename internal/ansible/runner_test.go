package ansible

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaybookRunnerSuccess(t *testing.T) {
	r := NewPlaybookRunner(time.Minute, nil)
	r.Binary = "true"

	result, err := r.Run(context.Background(), "site.yml", "", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestPlaybookRunnerFailureIsResultNotError(t *testing.T) {
	r := NewPlaybookRunner(time.Minute, nil)
	r.Binary = "false"

	result, err := r.Run(context.Background(), "site.yml", "", nil, nil)
	require.NoError(t, err, "a failed playbook is a result, not a spawn error")
	assert.False(t, result.Success)
}

func TestPlaybookRunnerMissingBinary(t *testing.T) {
	r := NewPlaybookRunner(time.Minute, nil)
	r.Binary = "/nonexistent/ansible-playbook"

	_, err := r.Run(context.Background(), "site.yml", "", nil, nil)
	assert.Error(t, err)
}

func TestPlaybookRunnerTimeoutIsSyntheticFailure(t *testing.T) {
	r := NewPlaybookRunner(50*time.Millisecond, nil)
	r.Binary = "sleep"

	result, err := r.Run(context.Background(), "5", "", nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Stderr, "timed out")
}
