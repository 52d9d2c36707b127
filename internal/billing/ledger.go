package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

// ErrInsufficientBalance is returned when an account cannot cover a charge.
// Match with errors.Is; the concrete value is an *InsufficientBalanceError
// carrying the amounts.
var ErrInsufficientBalance = errors.New("insufficient balance")

// InsufficientBalanceError reports how far short the account fell.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance. Required: $%s, Available: $%s",
		e.Required.StringFixed(6), e.Available.StringFixed(6))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// epsilon absorbs rounding drift at the balance boundary. A charge within
// epsilon of the remaining balance is still allowed.
var epsilon = decimal.RequireFromString("0.0001")

// Ledger settles request costs against account balances. Every settlement is
// one database transaction: the debit, the transaction record and the usage
// log land together or not at all.
type Ledger struct {
	db     *storage.DB
	logger *utils.Logger
}

// NewLedger creates a ledger on top of the shared database handle.
func NewLedger(db *storage.DB) *Ledger {
	return &Ledger{db: db, logger: utils.NewLogger("billing")}
}

// SettleUsage debits cost from the account and records the deduction and the
// usage log atomically. The balance row is locked for the duration of the
// transaction so concurrent settlements serialize.
func (l *Ledger) SettleUsage(ctx context.Context, accountID string, cost decimal.Decimal, log *models.UsageLog) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var balance decimal.Decimal
	err = tx.GetContext(ctx, &balance,
		"SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.ErrAccountNotFound
		}
		return fmt.Errorf("failed to lock account balance: %w", err)
	}

	if balance.Add(epsilon).LessThan(cost) {
		return &InsufficientBalanceError{Required: cost, Available: balance}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE id = $1",
		accountID, cost)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}

	txn := &models.Transaction{
		ID:          models.NewTransactionID(),
		AccountID:   accountID,
		Amount:      cost.Neg(),
		Type:        models.TransactionTypeDeduction,
		Description: fmt.Sprintf("API usage: %s (%d input + %d output tokens)", log.ModelID, log.InputTokens, log.OutputTokens),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, amount, type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		txn.ID, txn.AccountID, txn.Amount, txn.Type, txn.Description)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_logs (id, api_key_id, account_id, model_id, provider,
			input_tokens, output_tokens, total_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		log.ID, log.APIKeyID, log.AccountID, log.ModelID, log.Provider,
		log.InputTokens, log.OutputTokens, log.TotalCost)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// LogFailedUsage records a zero-cost usage entry for a request that reached a
// provider but produced no billable response. Best effort: failures are
// logged and swallowed.
func (l *Ledger) LogFailedUsage(ctx context.Context, log *models.UsageLog) {
	log.TotalCost = decimal.Zero
	if err := l.db.NewUsageRepository().Insert(ctx, log); err != nil {
		l.logger.Warn("failed to record zero-cost usage", "account", log.AccountID, "error", err)
	}
}

// Credit adds funds to an account and records the matching transaction in a
// single database transaction.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin credit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1",
		accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrAccountNotFound
	}

	txn := &models.Transaction{
		ID:          models.NewTransactionID(),
		AccountID:   accountID,
		Amount:      amount,
		Type:        models.TransactionTypeTopUp,
		Description: description,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, amount, type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		txn.ID, txn.AccountID, txn.Amount, txn.Type, txn.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to record top-up: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}
	return txn, nil
}
