package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"beaver_gateway/internal/models"
)

// APIKeyRepository handles API key database operations with caching
type APIKeyRepository struct {
	db    *DB
	cache *LRUCache
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db, cache: db.apiKeyCache}
}

// Create inserts a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, key_hash, name, account_id, plan, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		key.ID, key.KeyHash, key.Name, key.AccountID, key.Plan, key.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// GetByHash retrieves an API key by the SHA-256 hash of its plaintext (cached).
// Disabled keys are returned so callers can distinguish 403 from 401.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	if cached, found := r.cache.Get(keyHash); found {
		return cached.(*models.APIKey), nil
	}

	var key models.APIKey
	query := `
		SELECT id, key_hash, name, account_id, plan, is_active, created_at
		FROM api_keys
		WHERE key_hash = $1
	`

	err := r.db.conn.GetContext(ctx, &key, query, keyHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	r.cache.Set(keyHash, &key)
	return &key, nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	query := `
		SELECT id, key_hash, name, account_id, plan, is_active, created_at
		FROM api_keys
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// ListByAccount retrieves all API keys belonging to an account
func (r *APIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, key_hash, name, account_id, plan, is_active, created_at
		FROM api_keys
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// Deactivate disables an API key and invalidates its cache entry
func (r *APIKeyRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	var keyHash string
	err := r.db.conn.GetContext(ctx, &keyHash,
		"UPDATE api_keys SET is_active = false WHERE id = $1 RETURNING key_hash", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to deactivate API key: %w", err)
	}

	r.cache.Delete(keyHash)
	return nil
}
