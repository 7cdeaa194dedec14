package ansible

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healerd/ansible")

// defaultMaxRetries caps playbook invocations per adapter run, including the
// first attempt.
const defaultMaxRetries = 3

// RunRequest describes one heal-and-retry playbook run.
type RunRequest struct {
	Playbook  string
	Inventory string
	ExtraVars map[string]string
	Tags      []string
	// MaxRetries caps total invocations; non-positive means the default of 3.
	MaxRetries int
}

// RunResult is the aggregate outcome of a heal-and-retry run.
type RunResult struct {
	// Success reports whether any invocation completed cleanly.
	Success bool `json:"success"`
	// Attempts counts playbook invocations, including the successful one.
	Attempts int `json:"attempts"`
	// Sessions holds one healing session per failed attempt that was healed.
	Sessions []*healer.HealingSession `json:"sessions,omitempty"`
	// FinalStdout and FinalStderr are the console output of the last attempt.
	FinalStdout string `json:"final_stdout,omitempty"`
	FinalStderr string `json:"final_stderr,omitempty"`
}

// Adapter runs a playbook in a heal-and-retry loop: on failure it heals the
// first extracted task failure and, if the healing verified, runs the
// playbook again.
type Adapter struct {
	runner     Runner
	classifier *classifier.Classifier
	healer     *healer.Healer
	logger     *zap.Logger
}

// NewAdapter creates an adapter. Runner, classifier and healer are required;
// a nil logger is replaced with a no-op logger.
func NewAdapter(runner Runner, cls *classifier.Classifier, h *healer.Healer, logger *zap.Logger) (*Adapter, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if h == nil {
		return nil, fmt.Errorf("healer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{runner: runner, classifier: cls, healer: h, logger: logger}, nil
}

// Run drives the heal-and-retry loop. The error return is reserved for spawn
// failures; playbook failures that could not be healed produce a failed
// result.
func (a *Adapter) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "ansible.run")
	defer span.End()

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	span.SetAttributes(
		attribute.String("playbook", req.Playbook),
		attribute.Int("max_retries", maxRetries),
	)

	result := &RunResult{}

	for result.Attempts < maxRetries {
		result.Attempts++

		play, err := a.runner.Run(ctx, req.Playbook, req.Inventory, req.ExtraVars, req.Tags)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.FinalStdout = play.Stdout
		result.FinalStderr = play.Stderr

		if play.Success {
			result.Success = true
			a.logger.Info("playbook succeeded",
				zap.String("playbook", req.Playbook),
				zap.Int("attempts", result.Attempts),
			)
			return result, nil
		}

		failures := ParseFailures(play.Stdout + "\n" + play.Stderr)
		if len(failures) == 0 {
			a.logger.Warn("playbook failed without parseable task failures",
				zap.String("playbook", req.Playbook),
			)
			return result, nil
		}

		first := failures[0]
		record := a.classifier.ClassifyAnsible(classifier.AnsibleTaskResult{
			Host:     first.Host,
			TaskName: first.TaskName,
			Msg:      first.Detail,
		})

		session := a.healer.Heal(ctx, healer.HealRequest{
			Record:      record,
			TargetHosts: targetHosts(first.Host),
		})
		result.Sessions = append(result.Sessions, session)

		if !session.Success {
			a.logger.Warn("healing failed, not retrying playbook",
				zap.String("playbook", req.Playbook),
				zap.String("session_id", session.SessionID),
				zap.String("reason", session.FailureReason),
			)
			return result, nil
		}

		a.logger.Info("healing succeeded, retrying playbook",
			zap.String("playbook", req.Playbook),
			zap.String("session_id", session.SessionID),
			zap.Int("attempt", result.Attempts),
		)
	}

	a.logger.Warn("retry budget exhausted",
		zap.String("playbook", req.Playbook),
		zap.Int("attempts", result.Attempts),
	)
	return result, nil
}

func targetHosts(host string) []string {
	if host == "" {
		return nil
	}
	return []string{host}
}
