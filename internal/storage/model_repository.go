package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
)

const modelColumns = `
	id, name, display_name, provider, status,
	base_input_price, base_output_price,
	category, markup_percent, effective_input_price, effective_output_price,
	pricing_updated_at, created_at, updated_at
`

// ModelRepository handles model catalog database operations with caching
type ModelRepository struct {
	db    *DB
	cache *LRUCache
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{db: db, cache: db.modelCache}
}

// Create inserts a new model
func (r *ModelRepository) Create(ctx context.Context, m *models.Model) error {
	query := `
		INSERT INTO models (id, name, display_name, provider, status,
			base_input_price, base_output_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		m.ID, m.Name, m.DisplayName, m.Provider, m.Status,
		m.BaseInputPrice, m.BaseOutputPrice)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	return nil
}

// GetActiveByName retrieves an active model by name (cached)
func (r *ModelRepository) GetActiveByName(ctx context.Context, name string) (*models.Model, error) {
	if cached, found := r.cache.Get(name); found {
		return cached.(*models.Model), nil
	}

	var m models.Model
	query := fmt.Sprintf(`SELECT %s FROM models WHERE name = $1 AND status = $2`, modelColumns)

	err := r.db.conn.GetContext(ctx, &m, query, name, models.ModelStatusActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	r.cache.Set(name, &m)
	return &m, nil
}

// ListActive retrieves all active models ordered by name
func (r *ModelRepository) ListActive(ctx context.Context) ([]*models.Model, error) {
	query := fmt.Sprintf(`SELECT %s FROM models WHERE status = $1 ORDER BY name`, modelColumns)

	var list []*models.Model
	if err := r.db.conn.SelectContext(ctx, &list, query, models.ModelStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return list, nil
}

// PricingUpdate carries the derived pricing fields for one model. Category,
// markup and effective prices shift together when the percentile distribution
// shifts, so they are always written as a unit.
type PricingUpdate struct {
	ModelID              string
	Category             models.Category
	MarkupPercent        decimal.Decimal
	EffectiveInputPrice  decimal.Decimal
	EffectiveOutputPrice decimal.Decimal
}

// ApplyPricing persists a batch of pricing updates in a single transaction.
// All rows commit together or none do.
func (r *ModelRepository) ApplyPricing(ctx context.Context, updates []PricingUpdate, updatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pricing transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		UPDATE models
		SET category = $2, markup_percent = $3,
			effective_input_price = $4, effective_output_price = $5,
			pricing_updated_at = $6, updated_at = NOW()
		WHERE id = $1
	`

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, query,
			u.ModelID, string(u.Category), u.MarkupPercent,
			u.EffectiveInputPrice, u.EffectiveOutputPrice, updatedAt); err != nil {
			return fmt.Errorf("failed to update pricing for model %s: %w", u.ModelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pricing transaction: %w", err)
	}

	// Derived prices changed; drop every cached model.
	r.cache.Clear()
	return nil
}

// SetStatus activates or deactivates a model
func (r *ModelRepository) SetStatus(ctx context.Context, id, status string) error {
	var name string
	err := r.db.conn.GetContext(ctx, &name,
		"UPDATE models SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING name", id, status)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrModelNotFound
		}
		return fmt.Errorf("failed to set model status: %w", err)
	}

	r.cache.Delete(name)
	return nil
}
