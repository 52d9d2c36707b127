package ratelimit

import (
	"sync"
	"time"

	"beaver_gateway/internal/config"
)

// Limiter is used to enforce per-key rate limits.
type Limiter interface {
	Allow(key, plan string) bool
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(key, plan string) bool {
	return true
}

// window is the mutable per-key counter state.
type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter counts requests per key in discrete, non-overlapping time
// buckets sized by the key's plan. State is process-local and non-durable: a
// restart resets all counters. Up to a 2x burst can pass at window boundaries.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	plans   map[string]config.PlanPolicy
	now     func() time.Time
}

// NewFixedWindowLimiter creates a limiter for the given plan tiers.
func NewFixedWindowLimiter(plans map[string]config.PlanPolicy) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*window),
		plans:   plans,
		now:     time.Now,
	}
}

// Allow reports whether one more request may proceed for key under plan, and
// counts it if so. A denied call does not increment. Unknown plans always deny.
func (l *FixedWindowLimiter) Allow(key, plan string) bool {
	policy, ok := l.plans[plan]
	if !ok {
		return false
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}

	if now.Sub(w.start) > policy.Window {
		w.start = now
		w.count = 1
		return true
	}

	if w.count >= policy.RequestsPerWindow {
		return false
	}

	w.count++
	return true
}
