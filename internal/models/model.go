package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Model statuses
const (
	ModelStatusActive   = "active"
	ModelStatusInactive = "inactive"
)

// Category is a pricing tier assigned to a model based on where its base cost
// ranks among all active models.
type Category string

const (
	CategoryUltraBudget  Category = "ULTRA_BUDGET"
	CategoryBudget       Category = "BUDGET"
	CategoryMidRange     Category = "MID_RANGE"
	CategoryPremium      Category = "PREMIUM"
	CategoryUltraPremium Category = "ULTRA_PREMIUM"
)

// categoryMarkups maps each category to its markup percentage. Cheap models
// carry a higher relative markup than premium ones.
var categoryMarkups = map[Category]decimal.Decimal{
	CategoryUltraBudget:  decimal.NewFromFloat(10.0),
	CategoryBudget:       decimal.NewFromFloat(12.5),
	CategoryMidRange:     decimal.NewFromFloat(15.0),
	CategoryPremium:      decimal.NewFromFloat(5.5),
	CategoryUltraPremium: decimal.NewFromFloat(3.5),
}

// MarkupForCategory returns the markup percentage for a category. Unknown
// categories fall back to the premium markup.
func MarkupForCategory(c Category) decimal.Decimal {
	if m, ok := categoryMarkups[c]; ok {
		return m
	}
	return categoryMarkups[CategoryPremium]
}

// Model is one row of the model catalog. Base prices come from the provider
// (per 1M tokens); category, markup and effective prices are derived by the
// pricing engine and must be recomputed together.
type Model struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	DisplayName string `db:"display_name" json:"display_name"`
	Provider    string `db:"provider" json:"provider"`
	Status      string `db:"status" json:"status"`

	BaseInputPrice  decimal.Decimal `db:"base_input_price" json:"base_input_price"`
	BaseOutputPrice decimal.Decimal `db:"base_output_price" json:"base_output_price"`

	Category             *string             `db:"category" json:"category,omitempty"`
	MarkupPercent        decimal.NullDecimal `db:"markup_percent" json:"markup_percent,omitempty"`
	EffectiveInputPrice  decimal.NullDecimal `db:"effective_input_price" json:"effective_input_price,omitempty"`
	EffectiveOutputPrice decimal.NullDecimal `db:"effective_output_price" json:"effective_output_price,omitempty"`

	PricingUpdatedAt *time.Time `db:"pricing_updated_at" json:"pricing_updated_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// NewModelID generates a model identifier of the form model_<hex>.
func NewModelID() string {
	return fmt.Sprintf("model_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// TotalBaseCost is the ranking key used by the percentile assignment.
func (m *Model) TotalBaseCost() decimal.Decimal {
	return m.BaseInputPrice.Add(m.BaseOutputPrice)
}

// HasEffectivePricing reports whether the pricing engine has run for this model.
func (m *Model) HasEffectivePricing() bool {
	return m.EffectiveInputPrice.Valid && m.EffectiveOutputPrice.Valid
}

// ChargeablePrices returns the per-1M-token prices used to charge a tenant,
// falling back to base prices when effective prices were never computed. This
// is the manual-fallback path: a request must never fail purely because the
// engine's dedicated path did.
func (m *Model) ChargeablePrices() (input, output decimal.Decimal) {
	input = m.BaseInputPrice
	output = m.BaseOutputPrice
	if m.EffectiveInputPrice.Valid {
		input = m.EffectiveInputPrice.Decimal
	}
	if m.EffectiveOutputPrice.Valid {
		output = m.EffectiveOutputPrice.Decimal
	}
	return input, output
}
