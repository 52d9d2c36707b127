package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a long-lived credential used to mint new access tokens.
type RefreshToken struct {
	ID        string    `db:"id" json:"id"`
	Token     string    `db:"token" json:"-"`
	AccountID string    `db:"account_id" json:"account_id"`
	IsRevoked bool      `db:"is_revoked" json:"is_revoked"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewRefreshTokenID generates a refresh token identifier of the form rt_<hex>.
func NewRefreshTokenID() string {
	return fmt.Sprintf("rt_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// IsExpired reports whether the token is past its expiry.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
