package healer

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminalSession(id string, success bool) *HealingSession {
	return &HealingSession{
		SessionID:   id,
		TargetHosts: []string{"web-01"},
		Success:     success,
		StartedAt:   time.Now(),
		CompletedAt: time.Now(),
	}
}

func TestStoreSuccessRateEmptyIsZero(t *testing.T) {
	s := NewStore(10)
	assert.Equal(t, 0.0, s.SuccessRate())
}

func TestStoreSuccessRate(t *testing.T) {
	s := NewStore(10)
	s.Append(terminalSession("a", true))
	s.Append(terminalSession("b", false))
	s.Append(terminalSession("c", true))
	s.Append(terminalSession("d", true))

	assert.InDelta(t, 0.75, s.SuccessRate(), 1e-9)
}

func TestStoreEvictionKeepsCounters(t *testing.T) {
	s := NewStore(2)
	s.Append(terminalSession("a", true))
	s.Append(terminalSession("b", false))
	s.Append(terminalSession("c", true))

	// Only the two most recent sessions are retained...
	recent := s.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].SessionID)
	assert.Equal(t, "c", recent[1].SessionID)

	// ...but the success rate still counts the evicted one.
	total, successes := s.Stats()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, successes)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 1e-9)
}

func TestStoreRecentBounds(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < 5; i++ {
		s.Append(terminalSession(fmt.Sprintf("s%d", i), true))
	}

	assert.Len(t, s.Recent(2), 2)
	assert.Equal(t, "s4", s.Recent(2)[1].SessionID)
	assert.Len(t, s.Recent(0), 5)
	assert.Len(t, s.Recent(100), 5)
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(terminalSession(fmt.Sprintf("s%d", n), n%2 == 0))
		}(i)
	}
	wg.Wait()

	total, successes := s.Stats()
	assert.Equal(t, 50, total)
	assert.Equal(t, 25, successes)
}

func TestSessionSummaryLine(t *testing.T) {
	sess := terminalSession("heal-20260101000000-abcd1234", false)
	sess.FailureReason = "plan generation failed"

	line := sess.SummaryLine()
	assert.Contains(t, line, "heal-20260101000000-abcd1234")
	assert.Contains(t, line, "[failed]")
	assert.Contains(t, line, "web-01")
}

func TestNewSessionIDUnique(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newSessionID(now)
	b := newSessionID(now)

	assert.True(t, strings.HasPrefix(a, "heal-20260301120000-"))
	assert.NotEqual(t, a, b, "same timestamp still yields unique IDs")
}
