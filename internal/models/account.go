package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a tenant with a prepaid balance. The balance is the authoritative
// source of spending power and is mutated only through the ledger.
type Account struct {
	ID            string          `db:"id" json:"id"`
	Email         string          `db:"email" json:"email"`
	PasswordHash  *string         `db:"password_hash" json:"-"`
	EmailVerified bool            `db:"email_verified" json:"email_verified"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// NewAccountID generates an account identifier of the form acc_<hex>.
func NewAccountID() string {
	return fmt.Sprintf("acc_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}
