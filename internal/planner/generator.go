// Package planner wraps the reasoning-service boundary: it turns a
// classified error record (plus an optional host profile) into a structured
// remediation plan.
//
// The generator never leaves the pipeline without a well-formed plan object.
// Malformed responses get deterministic defaults; transport, timeout and
// parse failures degrade to an invalid high-risk plan with no commands.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healerd/planner")

// defaultAnalysis is filled in when the reasoning service omits or mangles
// the analysis field.
const defaultAnalysis = "Unable to analyze error"

// Generator produces remediation plans through an injected Reasoner. There
// is no package-level client state; construct one per daemon.
type Generator struct {
	reasoner Reasoner
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewGenerator creates a plan generator. The reasoner is required; a nil
// logger is replaced with a no-op logger.
func NewGenerator(reasoner Reasoner, logger *zap.Logger) (*Generator, error) {
	if reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		reasoner: reasoner,
		logger:   logger,
		tracer:   tracer,
	}, nil
}

// Generate asks the reasoning service for a remediation plan.
//
// On any reasoner or parse failure it returns a degenerate plan (Valid=false,
// high risk, requires confirmation, no commands) together with the underlying
// error; it never returns a nil plan.
func (g *Generator) Generate(ctx context.Context, record *classifier.ErrorRecord, profile *HostProfile) (*RemediationPlan, error) {
	ctx, span := g.tracer.Start(ctx, "planner.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("category", string(record.Category)),
		attribute.String("severity", string(record.Severity)),
		attribute.String("source", string(record.Source)),
	)

	prompt := buildPlanPrompt(record, profile)

	responseText, err := g.reasoner.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("plan generation failed",
			zap.Error(err),
			zap.String("category", string(record.Category)),
		)
		return degeneratePlan(err), err
	}

	plan, err := parsePlanResponse(responseText)
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("plan response unparseable",
			zap.Error(err),
			zap.Int("response_len", len(responseText)),
		)
		return degeneratePlan(err), err
	}

	span.SetAttributes(
		attribute.String("risk_level", string(plan.RiskLevel)),
		attribute.Int("command_count", plan.CommandCount()),
	)

	g.logger.Info("plan generated",
		zap.String("risk_level", string(plan.RiskLevel)),
		zap.Int("diagnostic_commands", len(plan.DiagnosticCommands)),
		zap.Int("fix_commands", len(plan.FixCommands)),
		zap.Int("verification_commands", len(plan.VerificationCommands)),
		zap.Bool("requires_confirmation", plan.RequiresConfirmation),
	)

	return plan, nil
}

// buildPlanPrompt serializes the error record, context and host profile into
// the reasoning-service request.
func buildPlanPrompt(record *classifier.ErrorRecord, profile *HostProfile) string {
	var sb strings.Builder

	sb.WriteString("You are an expert site reliability engineer remediating a CI/CD pipeline failure.\n\n")
	sb.WriteString(fmt.Sprintf("Error: %s\n", record.RawError))
	sb.WriteString(fmt.Sprintf("Source: %s\n", record.Source))
	sb.WriteString(fmt.Sprintf("Category: %s (severity %s)\n", record.Category, record.Severity))
	if record.Host != "" && record.Host != "unknown" {
		sb.WriteString(fmt.Sprintf("Host: %s\n", record.Host))
	}
	if record.TaskName != "" {
		sb.WriteString(fmt.Sprintf("Task: %s\n", record.TaskName))
	}
	if record.Module != "" {
		sb.WriteString(fmt.Sprintf("Module: %s\n", record.Module))
	}
	if record.Stderr != "" {
		sb.WriteString(fmt.Sprintf("Stderr:\n%s\n", record.Stderr))
	}
	if record.Stdout != "" {
		sb.WriteString(fmt.Sprintf("Stdout:\n%s\n", record.Stdout))
	}

	if profile != nil {
		sb.WriteString("\nTarget host profile:\n")
		if profile.OS != "" {
			sb.WriteString(fmt.Sprintf("- OS: %s\n", profile.OS))
		}
		if profile.PackageManager != "" {
			sb.WriteString(fmt.Sprintf("- Package manager: %s\n", profile.PackageManager))
		}
		if profile.InitSystem != "" {
			sb.WriteString(fmt.Sprintf("- Init system: %s\n", profile.InitSystem))
		}
	}

	sb.WriteString("\nRespond with a single JSON object and nothing else:\n")
	sb.WriteString(`{"analysis": "root cause in one or two sentences", ` +
		`"diagnostic_commands": ["shell commands that inspect state without changing it"], ` +
		`"fix_commands": ["shell commands that apply the fix"], ` +
		`"verification_commands": ["shell commands that confirm the fix worked"], ` +
		`"risk_level": "low|medium|high", ` +
		`"requires_confirmation": true|false, ` +
		`"rollback_plan": "how to undo the fix, or empty"}`)
	sb.WriteString("\nPrefer narrow, reversible commands. Never include destructive commands.")

	return sb.String()
}

// parsePlanResponse extracts the plan JSON from the model output and fills
// deterministic defaults for missing or malformed fields. A partially
// specified plan is still usable; only unparseable output is an error.
func parsePlanResponse(text string) (*RemediationPlan, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse plan response: %w", err)
	}

	plan := &RemediationPlan{
		Valid:                true,
		Analysis:             resp.Analysis,
		DiagnosticCommands:   emptyIfNil(resp.DiagnosticCommands),
		FixCommands:          emptyIfNil(resp.FixCommands),
		VerificationCommands: emptyIfNil(resp.VerificationCommands),
		RollbackPlan:         resp.RollbackPlan,
	}

	if plan.Analysis == "" {
		plan.Analysis = defaultAnalysis
	}

	switch RiskLevel(strings.ToLower(resp.RiskLevel)) {
	case RiskLow, RiskMedium, RiskHigh:
		plan.RiskLevel = RiskLevel(strings.ToLower(resp.RiskLevel))
	default:
		// Unspecified risk gets the conservative middle plus a forced
		// confirmation flag.
		plan.RiskLevel = RiskMedium
		plan.RequiresConfirmation = true
	}

	if resp.RequiresConfirmation != nil {
		plan.RequiresConfirmation = plan.RequiresConfirmation || *resp.RequiresConfirmation
	} else {
		plan.RequiresConfirmation = true
	}

	plan.EstimatedDuration = time.Duration(plan.CommandCount()) * perCommandCost
	return plan, nil
}

// degeneratePlan is the well-formed stand-in for a failed generation: high
// risk, confirmation required, no commands.
func degeneratePlan(err error) *RemediationPlan {
	return &RemediationPlan{
		Valid:                false,
		Analysis:             fmt.Sprintf("%s: %v", defaultAnalysis, err),
		DiagnosticCommands:   []string{},
		FixCommands:          []string{},
		VerificationCommands: []string{},
		RiskLevel:            RiskHigh,
		RequiresConfirmation: true,
	}
}

// extractJSON strips markdown fences and returns the outermost JSON object
// in the text, or "" when there is none.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
