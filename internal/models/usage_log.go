package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageLog is the append-only audit record of one admitted request. Failed
// attempts (provider error, insufficient balance) are recorded with zero cost
// so every admitted request is auditable.
type UsageLog struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	APIKeyID     uuid.UUID       `db:"api_key_id" json:"api_key_id"`
	AccountID    string          `db:"account_id" json:"account_id"`
	ModelID      string          `db:"model_id" json:"model_id"`
	Provider     string          `db:"provider" json:"provider"`
	InputTokens  int64           `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64           `db:"output_tokens" json:"output_tokens"`
	TotalCost    decimal.Decimal `db:"total_cost" json:"total_cost"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
