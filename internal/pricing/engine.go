package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

const (
	// Effective per-1M-token prices are stored at this precision.
	pricePrecision = 6
	// Per-request costs are charged at this precision.
	costPrecision = 8
)

var million = decimal.NewFromInt(1_000_000)

// percentiles holds the category boundaries for one recalculation run.
type percentiles struct {
	p20, p40, p60, p80 decimal.Decimal
}

// PercentileBounds is the externally visible form of the category boundaries.
type PercentileBounds struct {
	P20 decimal.Decimal `json:"p20"`
	P40 decimal.Decimal `json:"p40"`
	P60 decimal.Decimal `json:"p60"`
	P80 decimal.Decimal `json:"p80"`
}

// RecalculationResult summarizes one pricing run.
type RecalculationResult struct {
	TotalModels int              `json:"total_models"`
	Percentiles PercentileBounds `json:"percentiles"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Engine assigns pricing categories to models based on where each model's
// total base cost ranks among all active models, and derives effective
// (marked-up) prices from the assignment.
type Engine struct {
	modelRepo *storage.ModelRepository
	logger    *utils.Logger
	now       func() time.Time
}

// NewEngine creates a pricing engine backed by the model repository.
func NewEngine(modelRepo *storage.ModelRepository) *Engine {
	return &Engine{
		modelRepo: modelRepo,
		logger:    utils.NewLogger("pricing"),
		now:       time.Now,
	}
}

// RecalculateAllPricing ranks every active model by total base cost, assigns
// categories by percentile band, derives effective prices and persists all of
// it in a single transaction. Running it twice over an unchanged catalog is a
// no-op in effect. The returned summary carries the percentile boundaries of
// the run, the number of models repriced and the shared update timestamp.
func (e *Engine) RecalculateAllPricing(ctx context.Context) (*RecalculationResult, error) {
	active, err := e.modelRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active models: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveModels
	}

	costs := make([]decimal.Decimal, len(active))
	for i, m := range active {
		costs[i] = m.TotalBaseCost()
	}
	bounds := computePercentiles(costs)

	updatedAt := e.now().UTC()
	updates := make([]storage.PricingUpdate, 0, len(active))
	for _, m := range active {
		category := assignCategory(m.TotalBaseCost(), bounds)
		markup := models.MarkupForCategory(category)
		updates = append(updates, storage.PricingUpdate{
			ModelID:              m.ID,
			Category:             category,
			MarkupPercent:        markup,
			EffectiveInputPrice:  applyMarkup(m.BaseInputPrice, markup),
			EffectiveOutputPrice: applyMarkup(m.BaseOutputPrice, markup),
		})
	}

	if err := e.modelRepo.ApplyPricing(ctx, updates, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to persist pricing: %w", err)
	}

	e.logger.Info("pricing recalculated",
		"models", len(updates), "p20", bounds.p20, "p80", bounds.p80)
	return &RecalculationResult{
		TotalModels: len(updates),
		Percentiles: PercentileBounds{
			P20: bounds.p20,
			P40: bounds.p40,
			P60: bounds.p60,
			P80: bounds.p80,
		},
		UpdatedAt: updatedAt,
	}, nil
}

// CostForRequest computes the charge for a request through the dedicated
// path: the model must exist, be active and carry effective pricing.
func (e *Engine) CostForRequest(ctx context.Context, modelName string, inputTokens, outputTokens int64) (decimal.Decimal, error) {
	m, err := e.modelRepo.GetActiveByName(ctx, modelName)
	if err != nil {
		return decimal.Zero, err
	}
	if !m.HasEffectivePricing() {
		return decimal.Zero, ErrPricingNotAvailable
	}
	return CostWithPrices(inputTokens, outputTokens, m.EffectiveInputPrice.Decimal, m.EffectiveOutputPrice.Decimal), nil
}

// CostWithPrices charges tokens against per-1M-token prices.
func CostWithPrices(inputTokens, outputTokens int64, inputPrice, outputPrice decimal.Decimal) decimal.Decimal {
	inputCost := decimal.NewFromInt(inputTokens).Div(million).Mul(inputPrice)
	outputCost := decimal.NewFromInt(outputTokens).Div(million).Mul(outputPrice)
	return inputCost.Add(outputCost).Round(costPrecision)
}

// applyMarkup derives an effective price: base * (1 + markup/100).
func applyMarkup(base, markupPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
	return base.Mul(factor).Round(pricePrecision)
}

// computePercentiles returns the 20th/40th/60th/80th percentiles of the cost
// distribution using linear interpolation between closest ranks.
func computePercentiles(costs []decimal.Decimal) percentiles {
	sorted := make([]decimal.Decimal, len(costs))
	copy(sorted, costs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	return percentiles{
		p20: percentile(sorted, decimal.RequireFromString("0.2")),
		p40: percentile(sorted, decimal.RequireFromString("0.4")),
		p60: percentile(sorted, decimal.RequireFromString("0.6")),
		p80: percentile(sorted, decimal.RequireFromString("0.8")),
	}
}

// percentile interpolates over an already-sorted slice. For quantile q the
// rank position is q*(n-1); fractional positions blend the two neighbors.
func percentile(sorted []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	pos := q.Mul(decimal.NewFromInt(int64(n - 1)))
	lower := pos.Floor()
	frac := pos.Sub(lower)

	idx := int(lower.IntPart())
	if idx >= n-1 {
		return sorted[n-1]
	}
	return sorted[idx].Add(frac.Mul(sorted[idx+1].Sub(sorted[idx])))
}

// assignCategory buckets a cost against the percentile boundaries. Boundaries
// belong to the cheaper band: a cost exactly at p20 is ULTRA_BUDGET.
func assignCategory(cost decimal.Decimal, p percentiles) models.Category {
	switch {
	case cost.LessThanOrEqual(p.p20):
		return models.CategoryUltraBudget
	case cost.LessThanOrEqual(p.p40):
		return models.CategoryBudget
	case cost.LessThanOrEqual(p.p60):
		return models.CategoryMidRange
	case cost.LessThanOrEqual(p.p80):
		return models.CategoryPremium
	default:
		return models.CategoryUltraPremium
	}
}
