// Package notify publishes terminal healing sessions to NATS so downstream
// consumers (dashboards, chat bridges, audit sinks) can react without polling
// the daemon API.
package notify

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/healer"
	"go.uber.org/zap"
)

// DefaultSubject is the subject terminal sessions are published to.
const DefaultSubject = "healerd.sessions"

// Conn is the subset of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher serializes healing sessions onto a NATS subject.
type Publisher struct {
	conn    Conn
	subject string
	logger  *zap.Logger
}

// NewPublisher creates a session publisher. An empty subject falls back to
// DefaultSubject; a nil logger to a no-op logger. A nil conn yields a nil
// publisher, which is safe to ignore at wiring time.
func NewPublisher(conn Conn, subject string, logger *zap.Logger) *Publisher {
	if conn == nil {
		return nil
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// sessionEvent is the published wire shape: a compact summary, not the full
// session with its per-command transcripts.
type sessionEvent struct {
	SessionID     string   `json:"session_id"`
	Category      string   `json:"category"`
	Severity      string   `json:"severity"`
	TargetHosts   []string `json:"target_hosts"`
	Success       bool     `json:"success"`
	Verified      bool     `json:"verified"`
	FailureReason string   `json:"failure_reason,omitempty"`
	StartedAt     string   `json:"started_at"`
	CompletedAt   string   `json:"completed_at"`
}

// PublishSession sends the session summary. It is shaped as a healing
// observer callback: publish failures are logged and swallowed so a broker
// outage never affects the healing chain.
func (p *Publisher) PublishSession(session *healer.HealingSession) {
	if p == nil || session == nil {
		return
	}

	event := sessionEvent{
		SessionID:     session.SessionID,
		TargetHosts:   session.TargetHosts,
		Success:       session.Success,
		Verified:      session.Verified,
		FailureReason: session.FailureReason,
		StartedAt:     session.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:   session.CompletedAt.UTC().Format(time.RFC3339),
	}
	if session.ErrorRecord != nil {
		event.Category = string(session.ErrorRecord.Category)
		event.Severity = string(session.ErrorRecord.Severity)
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode session event", zap.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("failed to publish session event",
			zap.String("subject", p.subject),
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}
