package executor

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Channel is the command-execution boundary. Implementations own transport,
// credentials and connection reuse; the coordinator only sequences commands
// and aggregates results.
//
// ok reports the command's exit status; err reports a channel failure
// (unreachable host, spawn failure). A non-zero exit is ok=false, err=nil.
type Channel interface {
	Run(ctx context.Context, host, command string) (stdout, stderr string, ok bool, err error)
}

// LocalChannel executes commands on the local machine through /bin/sh. It is
// the channel of record for the synthetic "localhost" target.
type LocalChannel struct {
	// Timeout bounds one command. Zero means no timeout; remote channels
	// own their own timeout semantics, this knob exists for local runs only.
	Timeout time.Duration
}

// Run executes command via sh -c on the local host.
func (l *LocalChannel) Run(ctx context.Context, _ string, command string) (string, string, bool, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), true, nil
	}
	if _, isExit := err.(*exec.ExitError); isExit {
		// Command ran and failed; that is a command outcome, not a channel
		// failure.
		return stdout.String(), stderr.String(), false, nil
	}
	return stdout.String(), stderr.String(), false, err
}

// SSHChannel executes commands on remote hosts by shelling out to the system
// ssh binary in batch mode. Host resolution, keys and connection multiplexing
// are the ssh configuration's concern.
type SSHChannel struct {
	// User optionally overrides the remote user.
	User string
	// ExtraArgs are appended to every invocation (e.g. -o ConnectTimeout=5).
	ExtraArgs []string
}

// Run executes command on host over ssh.
func (s *SSHChannel) Run(ctx context.Context, host, command string) (string, string, bool, error) {
	target := host
	if s.User != "" {
		target = s.User + "@" + host
	}

	args := []string{"-o", "BatchMode=yes"}
	args = append(args, s.ExtraArgs...)
	args = append(args, target, command)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), true, nil
	}
	if exitErr, isExit := err.(*exec.ExitError); isExit {
		// ssh reserves 255 for its own connection failures; everything else
		// is the remote command's exit status.
		if exitErr.ExitCode() == 255 {
			return stdout.String(), stderr.String(), false, err
		}
		return stdout.String(), stderr.String(), false, nil
	}
	return stdout.String(), stderr.String(), false, err
}
