package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxHostPenalty is the ceiling on a host's 429-driven penalty delay:
// multiplicative backoff capped at 60 s.
const maxHostPenalty = 60 * time.Second

// hostLimiter holds the per-host token bucket plus the adaptive state a
// 429/Retry-After response feeds back into: a host that returns 429 with
// Retry-After has its effective delay raised to at least Retry-After
// until a successful response is observed, and after N consecutive 429s
// the delay reaches at least `min(2^N * defaultHostDelayMs, 60000)` even
// if every Retry-After header is small.
type hostLimiter struct {
	mu             sync.Mutex
	limiter        *rate.Limiter
	baseDelay      time.Duration
	penalty        time.Duration // additional delay layered on top of baseDelay
	consecutive429 int
}

// hostLimiters tracks one hostLimiter per host, created lazily with the
// configured default delay and per-host concurrency.
type hostLimiters struct {
	mu          sync.Mutex
	byHost      map[string]*hostLimiter
	baseDelay   time.Duration
	maxHostConc int
}

func newHostLimiters(baseDelay time.Duration, maxHostConc int) *hostLimiters {
	return &hostLimiters{byHost: make(map[string]*hostLimiter), baseDelay: baseDelay, maxHostConc: maxHostConc}
}

func (h *hostLimiters) get(host string) *hostLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	hl, ok := h.byHost[host]
	if !ok {
		hl = &hostLimiter{
			limiter:   rate.NewLimiter(rate.Every(h.baseDelay), h.maxHostConc),
			baseDelay: h.baseDelay,
		}
		h.byHost[host] = hl
	}
	return hl
}

// Wait blocks until the host's token bucket admits one request, honoring
// any active 429 penalty.
func (h *hostLimiters) Wait(host string) {
	hl := h.get(host)
	hl.mu.Lock()
	penalty := hl.penalty
	hl.mu.Unlock()
	if penalty > 0 {
		time.Sleep(penalty)
	}
	_ = hl.limiter.Wait(context.Background())
}

// Penalize raises the host's effective delay to at least retryAfter,
// called on a 429 response, and separately escalates the
// delay multiplicatively by the host's consecutive-429 streak
// (`baseDelay * 2^consecutive429`, capped at maxHostPenalty) so a host
// that keeps sending small Retry-After values is still throttled harder
// the longer it keeps 429-ing.
func (h *hostLimiters) Penalize(host string, retryAfter time.Duration) {
	hl := h.get(host)
	hl.mu.Lock()
	hl.consecutive429++
	escalation := hl.baseDelay * time.Duration(int64(1)<<uint(hl.consecutive429))
	if escalation > maxHostPenalty || escalation <= 0 {
		escalation = maxHostPenalty
	}
	next := retryAfter
	if escalation > next {
		next = escalation
	}
	if next > hl.penalty {
		hl.penalty = next
		hl.limiter.SetLimit(rate.Every(hl.baseDelay + next))
	}
	hl.mu.Unlock()
}

// Relax clears an active 429 penalty and resets the consecutive-429
// streak after a successful response.
func (h *hostLimiters) Relax(host string) {
	hl := h.get(host)
	hl.mu.Lock()
	hl.consecutive429 = 0
	if hl.penalty > 0 {
		hl.penalty = 0
		hl.limiter.SetLimit(rate.Every(hl.baseDelay))
	}
	hl.mu.Unlock()
}
