package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"beaver_gateway/internal/middleware"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/utils"
)

// handleBalance returns the caller's current balance.
func (d *Dependencies) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	account, err := d.Accounts.GetByID(r.Context(), identity.AccountID)
	if err != nil {
		d.Logger.Error("failed to load account", "account", identity.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
		"balance":    account.Balance,
		"currency":   "USD",
	})
}

// handleTransactions returns the caller's most recent transactions.
func (d *Dependencies) handleTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	txns, err := d.Transactions.ListByAccount(r.Context(), identity.AccountID, limit)
	if err != nil {
		d.Logger.Error("failed to list transactions", "account", identity.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id":   identity.AccountID,
		"transactions": txns,
		"total":        len(txns),
	})
}

// handleUsage returns per-model usage analytics over a trailing window.
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	summary, err := d.Usage.SummarizeByAccountSince(r.Context(), identity.AccountID, start)
	if err != nil {
		d.Logger.Error("failed to summarize usage", "account", identity.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logs, err := d.Usage.ListByAccountSince(r.Context(), identity.AccountID, start, 1000)
	if err != nil {
		d.Logger.Error("failed to list usage", "account", identity.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type modelStats struct {
		ModelID      string          `json:"model_id"`
		Requests     int             `json:"requests"`
		InputTokens  int64           `json:"input_tokens"`
		OutputTokens int64           `json:"output_tokens"`
		Cost         decimal.Decimal `json:"cost"`
	}

	byModel := make(map[string]*modelStats)
	order := make([]string, 0)
	for _, log := range logs {
		stats, ok := byModel[log.ModelID]
		if !ok {
			stats = &modelStats{ModelID: log.ModelID, Cost: decimal.Zero}
			byModel[log.ModelID] = stats
			order = append(order, log.ModelID)
		}
		stats.Requests++
		stats.InputTokens += log.InputTokens
		stats.OutputTokens += log.OutputTokens
		stats.Cost = stats.Cost.Add(log.TotalCost)
	}

	entries := make([]modelStats, 0, len(order))
	for _, id := range order {
		entries = append(entries, *byModel[id])
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id":  identity.AccountID,
		"period_days": days,
		"start_date":  start.Format(time.RFC3339),
		"end_date":    end.Format(time.RFC3339),
		"summary": map[string]any{
			"total_requests":      summary.RequestCount,
			"total_input_tokens":  summary.InputTokens,
			"total_output_tokens": summary.OutputTokens,
			"total_tokens":        summary.InputTokens + summary.OutputTokens,
			"total_cost":          summary.TotalCost.Round(6),
		},
		"by_model": entries,
	})
}
