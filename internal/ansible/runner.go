package ansible

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultPlaybookTimeout = 30 * time.Minute

// PlayResult is the outcome of one playbook invocation.
type PlayResult struct {
	Success bool
	Stdout  string
	Stderr  string
}

// Runner invokes a playbook once. The error return is reserved for spawn
// failures; a playbook that runs and fails is a failed PlayResult.
type Runner interface {
	Run(ctx context.Context, playbook, inventory string, extraVars map[string]string, tags []string) (*PlayResult, error)
}

// PlaybookRunner shells out to the ansible-playbook binary.
type PlaybookRunner struct {
	// Binary overrides the ansible-playbook executable path.
	Binary string
	// Timeout bounds one invocation; zero means the 30 minute default.
	Timeout time.Duration

	logger *zap.Logger
}

// NewPlaybookRunner creates a runner. A nil logger is replaced with a no-op
// logger.
func NewPlaybookRunner(timeout time.Duration, logger *zap.Logger) *PlaybookRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaybookRunner{Timeout: timeout, logger: logger}
}

// Run executes the playbook once and captures its console output.
//
// A run that exceeds the timeout is reported as a synthetic failed result so
// the caller's heal-and-retry loop can treat it like any other failure.
func (r *PlaybookRunner) Run(ctx context.Context, playbook, inventory string, extraVars map[string]string, tags []string) (*PlayResult, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultPlaybookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := r.Binary
	if binary == "" {
		binary = "ansible-playbook"
	}

	args := []string{playbook}
	if inventory != "" {
		args = append(args, "-i", inventory)
	}
	for k, v := range extraVars {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if len(tags) > 0 {
		args = append(args, "--tags", strings.Join(tags, ","))
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running playbook",
		zap.String("playbook", playbook),
		zap.String("inventory", inventory),
	)

	err := cmd.Run()
	result := &PlayResult{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Stderr = fmt.Sprintf("fatal: [localhost]: FAILED! => playbook timed out after %s\n%s",
				timeout, result.Stderr)
			return result, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The playbook ran and reported failures; the console output
			// carries the details.
			return result, nil
		}
		return nil, fmt.Errorf("failed to start ansible-playbook: %w", err)
	}
	return result, nil
}
