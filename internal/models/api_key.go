package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKeyPrefix identifies opaque gateway keys in the Authorization header.
const APIKeyPrefix = "beaver_"

// APIKey is a client credential tied to an account. Only the SHA-256 hash of
// the key is stored; the plaintext is returned once at creation time.
type APIKey struct {
	ID        uuid.UUID `db:"id" json:"id"`
	KeyHash   string    `db:"key_hash" json:"-"`
	Name      string    `db:"name" json:"name"`
	AccountID string    `db:"account_id" json:"account_id"`
	Plan      string    `db:"plan" json:"plan"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GenerateAPIKey returns a fresh plaintext key of the form beaver_<hex>.
func GenerateAPIKey() string {
	return fmt.Sprintf("%s%s", APIKeyPrefix, strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// IsGatewayKey reports whether the bearer token looks like an opaque API key
// rather than a signed access token.
func IsGatewayKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix)
}
