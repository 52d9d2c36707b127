package storage

import (
	"context"
	"database/sql"
	"fmt"

	"beaver_gateway/internal/models"
)

// RefreshTokenRepository handles refresh token database operations
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a refresh token
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, token, account_id, is_revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		token.ID, token.Token, token.AccountID, token.IsRevoked, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByToken retrieves a refresh token by its value
func (r *RefreshTokenRepository) GetByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	query := `
		SELECT id, token, account_id, is_revoked, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`

	err := r.db.conn.GetContext(ctx, &rt, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a refresh token as revoked. Revoking an unknown token is not
// an error.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	_, err := r.db.conn.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked = true WHERE token = $1", token)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// DeleteExpired removes refresh tokens past their expiry
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
