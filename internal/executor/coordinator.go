// Package executor runs remediation plans against target hosts.
//
// The coordinator owns sequencing and aggregation only: per host, diagnostics
// run to completion before fixes, and fixes before verification, because
// later commands may depend on earlier side effects. Hosts are independent
// units of work; one host failing never stops the others. Transport is
// delegated to a Channel.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/planner"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healerd/executor")

// Phase names a plan execution stage.
type Phase string

const (
	PhaseDiagnostic   Phase = "diagnostic"
	PhaseFix          Phase = "fix"
	PhaseVerification Phase = "verification"
)

// CommandOutcome records one executed command on one host.
type CommandOutcome struct {
	Phase     Phase     `json:"phase"`
	Command   string    `json:"command"`
	Success   bool      `json:"success"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionResult aggregates the diagnostic and fix phases across hosts.
type ExecutionResult struct {
	// Success is the conjunction of all per-host successes.
	Success bool `json:"success"`
	// PerHost maps host to the ordered command outcomes observed there.
	PerHost map[string][]CommandOutcome `json:"per_host"`
	// FailedActions is the flat list of failed host/command pairs.
	FailedActions []string `json:"failed_actions,omitempty"`
}

// VerificationResult aggregates the verification phase across hosts.
type VerificationResult struct {
	// Verified is the conjunction of per-host verification.
	Verified bool `json:"verified"`
	// PerHost maps host to the ordered verification outcomes.
	PerHost map[string][]CommandOutcome `json:"per_host"`
}

// Coordinator executes plans through an injected channel.
type Coordinator struct {
	channel Channel
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewCoordinator creates a coordinator. The channel is required; a nil
// logger is replaced with a no-op logger.
func NewCoordinator(channel Channel, logger *zap.Logger) (*Coordinator, error) {
	if channel == nil {
		return nil, errors.New("execution channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		channel: channel,
		logger:  logger,
		tracer:  tracer,
	}, nil
}

// NormalizeHosts defaults an empty target set to the synthetic localhost
// entry.
func NormalizeHosts(hosts []string) []string {
	if len(hosts) == 0 {
		return []string{"localhost"}
	}
	return hosts
}

// Execute runs the plan's diagnostic then fix commands on every target host,
// recording each command outcome independently.
func (c *Coordinator) Execute(ctx context.Context, plan *planner.RemediationPlan, hosts []string) *ExecutionResult {
	ctx, span := c.tracer.Start(ctx, "executor.execute")
	defer span.End()

	hosts = NormalizeHosts(hosts)
	span.SetAttributes(
		attribute.Int("host_count", len(hosts)),
		attribute.Int("command_count", len(plan.DiagnosticCommands)+len(plan.FixCommands)),
	)

	result := &ExecutionResult{
		Success: true,
		PerHost: make(map[string][]CommandOutcome, len(hosts)),
	}

	for _, host := range hosts {
		outcomes, hostOK := c.runPhases(ctx, host, []phaseCommands{
			{PhaseDiagnostic, plan.DiagnosticCommands},
			{PhaseFix, plan.FixCommands},
		})
		result.PerHost[host] = outcomes
		if !hostOK {
			result.Success = false
			for _, o := range outcomes {
				if !o.Success {
					result.FailedActions = append(result.FailedActions,
						fmt.Sprintf("%s: %s", host, o.Command))
				}
			}
		}
	}

	span.SetAttributes(attribute.Bool("success", result.Success))
	c.logger.Info("plan executed",
		zap.Int("hosts", len(hosts)),
		zap.Bool("success", result.Success),
		zap.Int("failed_actions", len(result.FailedActions)),
	)
	return result
}

// Verify re-runs the plan's verification commands on every target host. A
// host is satisfied only if all its verification commands report success.
func (c *Coordinator) Verify(ctx context.Context, plan *planner.RemediationPlan, hosts []string) *VerificationResult {
	ctx, span := c.tracer.Start(ctx, "executor.verify")
	defer span.End()

	hosts = NormalizeHosts(hosts)
	result := &VerificationResult{
		Verified: true,
		PerHost:  make(map[string][]CommandOutcome, len(hosts)),
	}

	for _, host := range hosts {
		outcomes, hostOK := c.runPhases(ctx, host, []phaseCommands{
			{PhaseVerification, plan.VerificationCommands},
		})
		result.PerHost[host] = outcomes
		if !hostOK {
			result.Verified = false
		}
	}

	span.SetAttributes(attribute.Bool("verified", result.Verified))
	return result
}

type phaseCommands struct {
	phase    Phase
	commands []string
}

// runPhases executes the given phases in order on one host. Every command
// outcome is recorded; the host's overall success is the conjunction of its
// command successes.
func (c *Coordinator) runPhases(ctx context.Context, host string, phases []phaseCommands) ([]CommandOutcome, bool) {
	outcomes := []CommandOutcome{}
	hostOK := true

	for _, p := range phases {
		for _, command := range p.commands {
			stdout, stderr, ok, err := c.channel.Run(ctx, host, command)
			outcome := CommandOutcome{
				Phase:     p.phase,
				Command:   command,
				Success:   ok && err == nil,
				Stdout:    stdout,
				Stderr:    stderr,
				Timestamp: time.Now(),
			}
			if err != nil {
				outcome.Error = err.Error()
			}
			outcomes = append(outcomes, outcome)

			if !outcome.Success {
				hostOK = false
				c.logger.Warn("command failed",
					zap.String("host", host),
					zap.String("phase", string(p.phase)),
					zap.String("command", command),
					zap.Error(err),
				)
			}
		}
	}
	return outcomes, hostOK
}
