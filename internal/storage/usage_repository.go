package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
)

// UsageRepository handles usage log database operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert records a usage log entry
func (r *UsageRepository) Insert(ctx context.Context, log *models.UsageLog) error {
	query := `
		INSERT INTO usage_logs (id, api_key_id, account_id, model_id, provider,
			input_tokens, output_tokens, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		log.ID, log.APIKeyID, log.AccountID, log.ModelID, log.Provider,
		log.InputTokens, log.OutputTokens, log.TotalCost)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

// ListByAccountSince returns usage logs for an account newer than the cutoff
func (r *UsageRepository) ListByAccountSince(ctx context.Context, accountID string, since time.Time, limit int) ([]*models.UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, api_key_id, account_id, model_id, provider,
			input_tokens, output_tokens, total_cost, created_at
		FROM usage_logs
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var logs []*models.UsageLog
	if err := r.db.conn.SelectContext(ctx, &logs, query, accountID, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return logs, nil
}

// UsageSummary aggregates an account's usage over a period
type UsageSummary struct {
	RequestCount int             `db:"request_count" json:"request_count"`
	InputTokens  int64           `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64           `db:"output_tokens" json:"output_tokens"`
	TotalCost    decimal.Decimal `db:"total_cost" json:"total_cost"`
}

// SummarizeByAccountSince aggregates an account's usage since the cutoff
func (r *UsageRepository) SummarizeByAccountSince(ctx context.Context, accountID string, since time.Time) (*UsageSummary, error) {
	query := `
		SELECT COUNT(*) AS request_count,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(total_cost), 0) AS total_cost
		FROM usage_logs
		WHERE account_id = $1 AND created_at >= $2
	`

	var summary UsageSummary
	if err := r.db.conn.GetContext(ctx, &summary, query, accountID, since); err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return &summary, nil
}
