package auth

import "github.com/google/uuid"

// Identity is the authenticated principal attached to a request. API key
// requests carry the key's ID and plan; JWT requests carry only the account.
type Identity struct {
	AccountID string
	APIKeyID  uuid.UUID
	Plan      string

	// ViaAPIKey distinguishes metered API key traffic from dashboard JWTs.
	ViaAPIKey bool
}
