// Package healer orchestrates one healing attempt end to end: classify,
// generate a plan, safety-check it, execute against the target hosts,
// verify, and record the terminal session.
//
// The state machine is strictly linear with early exits. The orchestration
// boundary never raises: every failure, including panics from collaborators,
// becomes a terminal unsuccessful session that is still appended to history.
package healer

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/executor"
	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/fyrsmithlabs/healerd/internal/safety"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/healerd/internal/healer"

// HealRequest describes one failure to remediate. When Record is set the
// classify stage is skipped; otherwise the raw fields are classified first.
type HealRequest struct {
	// Record is an already-classified error record (optional).
	Record *classifier.ErrorRecord

	// Raw failure fields, used when Record is nil.
	Source   classifier.Source
	RawError string
	Stdout   string
	Stderr   string
	Host     string
	TaskName string
	Module   string

	// TargetHosts are the machines to remediate; empty defaults to
	// localhost.
	TargetHosts []string
	// Profile optionally biases plan generation.
	Profile *planner.HostProfile
}

// Healer drives the healing pipeline and records every attempt.
type Healer struct {
	classifier  *classifier.Classifier
	generator   *planner.Generator
	gate        *safety.Gate
	coordinator *executor.Coordinator
	store       *Store
	logger      *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	attemptCounter metric.Int64Counter
	successCounter metric.Int64Counter
}

// New creates a healer. All collaborators are required except the logger,
// which defaults to a no-op logger.
func New(cls *classifier.Classifier, gen *planner.Generator, gate *safety.Gate,
	coord *executor.Coordinator, store *Store, logger *zap.Logger) (*Healer, error) {

	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("plan generator is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("safety gate is required")
	}
	if coord == nil {
		return nil, fmt.Errorf("execution coordinator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Healer{
		classifier:  cls,
		generator:   gen,
		gate:        gate,
		coordinator: coord,
		store:       store,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	h.initMetrics()
	return h, nil
}

func (h *Healer) initMetrics() {
	var err error

	h.attemptCounter, err = h.meter.Int64Counter(
		"healerd.healing.attempts_total",
		metric.WithDescription("Total number of healing attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		h.logger.Warn("failed to create attempt counter", zap.Error(err))
	}

	h.successCounter, err = h.meter.Int64Counter(
		"healerd.healing.successes_total",
		metric.WithDescription("Total number of successful healings"),
		metric.WithUnit("{healing}"),
	)
	if err != nil {
		h.logger.Warn("failed to create success counter", zap.Error(err))
	}
}

// Store exposes the session store for audit queries.
func (h *Healer) Store() *Store {
	return h.store
}

// Heal runs one healing attempt to completion and returns the terminal
// session. It never returns nil and never panics past its own boundary.
func (h *Healer) Heal(ctx context.Context, req HealRequest) (session *HealingSession) {
	ctx, span := h.tracer.Start(ctx, "healer.heal")
	defer span.End()

	session = &HealingSession{
		SessionID:   newSessionID(time.Now()),
		TargetHosts: executor.NormalizeHosts(req.TargetHosts),
		StartedAt:   time.Now(),
	}
	span.SetAttributes(attribute.String("session_id", session.SessionID))

	// Every exit path, panics included, finalizes and records the session.
	defer func() {
		if r := recover(); r != nil {
			session.Success = false
			session.FailureReason = fmt.Sprintf("internal error: %v", r)
			h.logger.Error("healing panicked",
				zap.String("session_id", session.SessionID),
				zap.Any("panic", r),
			)
		}
		session.CompletedAt = time.Now()
		h.store.Append(session)
		h.recordOutcome(ctx, session)
	}()

	// CLASSIFY (skipped when the caller already holds a record).
	record := req.Record
	if record == nil {
		record = h.classifier.Classify(req.Source, req.RawError, req.Stdout,
			req.Stderr, req.Host, req.TaskName, req.Module)
	}
	session.ErrorRecord = record
	span.SetAttributes(
		attribute.String("category", string(record.Category)),
		attribute.String("severity", string(record.Severity)),
	)

	// GENERATE_PLAN.
	plan, err := h.generator.Generate(ctx, record, req.Profile)
	session.Plan = plan
	if err != nil || !plan.Valid {
		span.RecordError(err)
		session.FailureReason = "plan generation failed"
		return session
	}

	// SAFETY_CHECK.
	verdict := h.gate.Evaluate(plan, record)
	session.SafetyVerdict = &verdict
	if !verdict.Safe {
		session.FailureReason = fmt.Sprintf("safety check failed: %s", verdict.Reason)
		h.logger.Warn("plan rejected by safety gate",
			zap.String("session_id", session.SessionID),
			zap.String("reason", verdict.Reason),
			zap.Strings("risk_factors", verdict.RiskFactors),
		)
		return session
	}

	// EXECUTE.
	execution := h.coordinator.Execute(ctx, plan, session.TargetHosts)
	session.Execution = execution
	if !execution.Success {
		session.FailureReason = fmt.Sprintf("execution failed on %d action(s)", len(execution.FailedActions))
		return session
	}

	// VERIFY.
	verification := h.coordinator.Verify(ctx, plan, session.TargetHosts)
	session.Verification = verification
	session.Verified = verification.Verified
	if !session.Verified {
		session.FailureReason = "verification did not confirm remediation"
		return session
	}

	session.Success = true
	h.logger.Info("healing succeeded",
		zap.String("session_id", session.SessionID),
		zap.String("category", string(record.Category)),
		zap.Strings("hosts", session.TargetHosts),
	)
	return session
}

func (h *Healer) recordOutcome(ctx context.Context, session *HealingSession) {
	category := classifier.CategoryUnknown
	if session.ErrorRecord != nil {
		category = session.ErrorRecord.Category
	}
	attrs := metric.WithAttributes(
		attribute.String("category", string(category)),
		attribute.Bool("success", session.Success),
	)
	if h.attemptCounter != nil {
		h.attemptCounter.Add(ctx, 1, attrs)
	}
	if session.Success && h.successCounter != nil {
		h.successCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(category)),
		))
	}
}
