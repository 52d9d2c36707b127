package quota

import (
	"fmt"
	"sync"
	"time"

	"beaver_gateway/internal/config"
)

// Tracker records monthly request usage per key and enforces plan quotas.
type Tracker interface {
	// Increment records one more unit of usage and reports whether the key
	// remains within its monthly allotment. A denied call does not increment.
	Increment(key, plan string) bool
}

// NoopTracker allows all requests and discards usage.
type NoopTracker struct{}

func NewNoopTracker() *NoopTracker {
	return &NoopTracker{}
}

func (t *NoopTracker) Increment(key, plan string) bool {
	return true
}

// record is the per-key monthly counter state.
type record struct {
	period string
	count  int
}

// MonthlyTracker counts requests per key per calendar month. Like the rate
// limiter, state is process-local and non-durable; a restart resets counters.
type MonthlyTracker struct {
	mu      sync.Mutex
	records map[string]*record
	plans   map[string]config.PlanPolicy
	now     func() time.Time
}

// NewMonthlyTracker creates a tracker for the given plan tiers.
func NewMonthlyTracker(plans map[string]config.PlanPolicy) *MonthlyTracker {
	return &MonthlyTracker{
		records: make(map[string]*record),
		plans:   plans,
		now:     time.Now,
	}
}

// currentPeriod returns the period identifier at year+month granularity.
func (t *MonthlyTracker) currentPeriod() string {
	now := t.now().UTC()
	return fmt.Sprintf("%d-%d", now.Year(), int(now.Month()))
}

// Increment implements Tracker. Unknown plans always deny. Crossing into a new
// period replaces the record with count 1 regardless of prior denials.
func (t *MonthlyTracker) Increment(key, plan string) bool {
	policy, ok := t.plans[plan]
	if !ok {
		return false
	}

	period := t.currentPeriod()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok || rec.period != period {
		t.records[key] = &record{period: period, count: 1}
		return true
	}

	if rec.count >= policy.MonthlyRequests {
		return false
	}

	rec.count++
	return true
}
