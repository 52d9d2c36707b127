package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
	"beaver_gateway/internal/utils"
)

type modelPricing struct {
	BaseInputPricePer1M       decimal.Decimal  `json:"base_input_price_per_1m"`
	BaseOutputPricePer1M      decimal.Decimal  `json:"base_output_price_per_1m"`
	EffectiveInputPricePer1M  decimal.Decimal  `json:"effective_input_price_per_1m"`
	EffectiveOutputPricePer1M decimal.Decimal  `json:"effective_output_price_per_1m"`
	MarkupPercent             *decimal.Decimal `json:"markup_percent"`
}

type modelEntry struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	Provider    string       `json:"provider"`
	Category    string       `json:"category"`
	Pricing     modelPricing `json:"pricing"`
}

type modelListResponse struct {
	Models []modelEntry `json:"models"`
	Total  int          `json:"total"`
}

// handleListModels returns the active catalog with current pricing.
func (d *Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	active, err := d.Models.ListActive(r.Context())
	if err != nil {
		d.Logger.Error("failed to list models", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]modelEntry, 0, len(active))
	for _, m := range active {
		category := string(models.CategoryPremium)
		if m.Category != nil {
			category = *m.Category
		}

		input, output := m.ChargeablePrices()
		pricing := modelPricing{
			BaseInputPricePer1M:       m.BaseInputPrice,
			BaseOutputPricePer1M:      m.BaseOutputPrice,
			EffectiveInputPricePer1M:  input,
			EffectiveOutputPricePer1M: output,
		}
		if m.MarkupPercent.Valid {
			pricing.MarkupPercent = &m.MarkupPercent.Decimal
		}

		entries = append(entries, modelEntry{
			ID:          m.Name,
			DisplayName: m.DisplayName,
			Provider:    m.Provider,
			Category:    category,
			Pricing:     pricing,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, modelListResponse{Models: entries, Total: len(entries)})
}
