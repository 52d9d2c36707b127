package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TransactionTypeTopUp     = "topup"
	TransactionTypeDeduction = "deduction"
)

// Transaction is one signed balance mutation. The table is append-only: every
// change to Account.Balance produces exactly one corresponding row.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	AccountID   string          `db:"account_id" json:"account_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Type        string          `db:"type" json:"type"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// NewTransactionID generates a transaction identifier of the form txn_<hex>.
func NewTransactionID() string {
	return fmt.Sprintf("txn_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}
