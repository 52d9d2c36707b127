package pricing

import "errors"

var (
	// ErrNoActiveModels is returned when a pricing recalculation finds no
	// active models to rank.
	ErrNoActiveModels = errors.New("no active models available for pricing")

	// ErrPricingNotAvailable is returned by the dedicated cost path when the
	// model has no effective pricing yet.
	ErrPricingNotAvailable = errors.New("pricing not available for model")
)
