package logging

import (
	"context"
	"sync"
	"time"
)

// Record is one request-log entry pushed to the side channel. It mirrors what
// lands in the usage_logs table plus the admission outcome, so downstream
// consumers can see denied requests too.
type Record struct {
	AccountID    string    `json:"account_id"`
	APIKeyID     string    `json:"api_key_id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Outcome      string    `json:"outcome"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalCost    string    `json:"total_cost"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sink receives request-log records from the gateway. Delivery is best
// effort; a sink error never fails the request it describes.
type Sink interface {
	Enqueue(ctx context.Context, rec *Record) error
}

// NoopSink discards records. Used when no Redis address is configured.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(_ context.Context, _ *Record) error {
	return nil
}

// MemorySink collects records in memory. Used by tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Enqueue(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of everything enqueued so far.
func (s *MemorySink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}
