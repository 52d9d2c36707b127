package storage

import (
	"context"
	"fmt"

	"beaver_gateway/internal/models"
)

// TransactionRepository reads the append-only transaction trail. Writes happen
// inside the ledger's settle/credit transactions, never through this type.
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// ListByAccount returns the most recent transactions for an account
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, amount, type, description, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var txns []*models.Transaction
	if err := r.db.conn.SelectContext(ctx, &txns, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}
