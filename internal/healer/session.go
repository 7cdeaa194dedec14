package healer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/executor"
	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/fyrsmithlabs/healerd/internal/safety"
)

// HealingSession is one complete, terminal attempt to remediate a single
// error record. Sessions are never mutated after being appended to the
// store; a retry creates a new session.
type HealingSession struct {
	SessionID   string                  `json:"session_id"`
	ErrorRecord *classifier.ErrorRecord `json:"error_record"`
	TargetHosts []string                `json:"target_hosts"`

	Plan          *planner.RemediationPlan     `json:"plan,omitempty"`
	SafetyVerdict *safety.Verdict              `json:"safety_verdict,omitempty"`
	Execution     *executor.ExecutionResult    `json:"execution,omitempty"`
	Verification  *executor.VerificationResult `json:"verification,omitempty"`

	Verified bool `json:"verified"`
	// Success is true iff the plan was safe, no host hit a fatal execution
	// error, and verification confirmed the fix.
	Success bool `json:"success"`
	// FailureReason is set iff Success is false.
	FailureReason string `json:"failure_reason,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// SummaryLine renders the session as a single audit line.
func (s *HealingSession) SummaryLine() string {
	status := "success"
	if !s.Success {
		status = "failed"
	}
	category := classifier.CategoryUnknown
	if s.ErrorRecord != nil {
		category = s.ErrorRecord.Category
	}
	return fmt.Sprintf("%s - %s - %s - %s [%s]",
		s.StartedAt.UTC().Format(time.RFC3339), s.SessionID, category,
		strings.Join(s.TargetHosts, ","), status)
}

// newSessionID builds a time-derived, unique session identifier.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("heal-%s-%s", now.UTC().Format("20060102150405"), uuid.New().String()[:8])
}

// Store is the append-only history of healing sessions, used for audit and
// success-rate reporting. Appends are atomic; sessions are terminal when
// appended and never updated afterwards, so concurrent readers see a
// consistent record.
type Store struct {
	mu       sync.Mutex
	sessions []*HealingSession
	// seen counts every session ever appended, including those evicted
	// from the retained window; it is the success-rate denominator.
	seen      int
	successes int
	max       int
}

// NewStore creates a session store. maxSessions caps retained history for
// audit queries; zero retains everything.
func NewStore(maxSessions int) *Store {
	return &Store{max: maxSessions}
}

// Append records a terminal session.
func (s *Store) Append(session *HealingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	s.seen++
	if session.Success {
		s.successes++
	}
	if s.max > 0 && len(s.sessions) > s.max {
		s.sessions = s.sessions[len(s.sessions)-s.max:]
	}
}

// Recent returns up to n sessions, most recent last. n <= 0 returns all
// retained sessions.
func (s *Store) Recent(n int) []*HealingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.sessions) {
		n = len(s.sessions)
	}
	out := make([]*HealingSession, n)
	copy(out, s.sessions[len(s.sessions)-n:])
	return out
}

// SuccessRate returns successes / total sessions seen so far, 0.0 when no
// session has been recorded.
func (s *Store) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == 0 {
		return 0.0
	}
	return float64(s.successes) / float64(s.seen)
}

// Stats returns the total and success counts.
func (s *Store) Stats() (total, successes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen, s.successes
}

// Export returns a copy of the retained session history.
func (s *Store) Export() []*HealingSession {
	return s.Recent(0)
}

// Summary returns one audit line per retained session.
func (s *Store) Summary() []string {
	sessions := s.Recent(0)
	lines := make([]string, len(sessions))
	for i, sess := range sessions {
		lines[i] = sess.SummaryLine()
	}
	return lines
}
