package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPenalizeEscalatesOnConsecutive429s: after 3 consecutive 429s, the
// host delay reaches min(2^3 * defaultHostDelayMs, 60000) even when
// every Retry-After header asks for far less than that.
func TestPenalizeEscalatesOnConsecutive429s(t *testing.T) {
	baseDelay := 500 * time.Millisecond
	hosts := newHostLimiters(baseDelay, 2)

	hosts.Penalize("h.invalid", 1*time.Second)
	hosts.Penalize("h.invalid", 1*time.Second)
	hosts.Penalize("h.invalid", 1*time.Second)

	hl := hosts.get("h.invalid")
	hl.mu.Lock()
	penalty := hl.penalty
	hl.mu.Unlock()

	want := baseDelay * 8 // min(2^3 * defaultHostDelayMs, 60s)
	require.GreaterOrEqual(t, penalty, want)
}

func TestPenalizeCapsAtMaxHostPenalty(t *testing.T) {
	hosts := newHostLimiters(1*time.Second, 2)
	for i := 0; i < 10; i++ {
		hosts.Penalize("h.invalid", 0)
	}
	hl := hosts.get("h.invalid")
	hl.mu.Lock()
	penalty := hl.penalty
	hl.mu.Unlock()
	require.LessOrEqual(t, penalty, maxHostPenalty)
}

func TestRelaxResetsConsecutive429Streak(t *testing.T) {
	hosts := newHostLimiters(500*time.Millisecond, 2)
	hosts.Penalize("h.invalid", 0)
	hosts.Penalize("h.invalid", 0)
	hosts.Relax("h.invalid")

	hl := hosts.get("h.invalid")
	hl.mu.Lock()
	require.Equal(t, 0, hl.consecutive429)
	require.Equal(t, time.Duration(0), hl.penalty)
	hl.mu.Unlock()

	hosts.Penalize("h.invalid", 0)
	hl.mu.Lock()
	defer hl.mu.Unlock()
	require.Equal(t, 1, hl.consecutive429)
}
