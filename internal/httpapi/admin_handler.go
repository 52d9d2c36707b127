package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beaver_gateway/internal/models"
	"beaver_gateway/internal/pricing"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

type adminCreateAccountRequest struct {
	Email          string          `json:"email"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// handleAdminCreateAccount creates a password-less account, for tenants that
// are provisioned out of band.
func (d *Dependencies) handleAdminCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req adminCreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.InitialBalance.IsNegative() {
		utils.RespondWithError(w, http.StatusBadRequest, "initial_balance must not be negative")
		return
	}

	account := &models.Account{
		ID:      models.NewAccountID(),
		Email:   req.Email,
		Balance: req.InitialBalance,
	}
	if err := d.Accounts.Create(r.Context(), account); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			utils.RespondWithError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		d.Logger.Error("failed to create account", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, account)
}

// handleAdminGetAccount returns one account by ID.
func (d *Dependencies) handleAdminGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := d.Accounts.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		d.Logger.Error("failed to load account", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, account)
}

type adminCreateAPIKeyRequest struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Plan      string `json:"plan"`
}

// handleAdminCreateAPIKey mints a new API key for an account. The plaintext
// is returned once.
func (d *Dependencies) handleAdminCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req adminCreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := d.Accounts.GetByID(r.Context(), req.AccountID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		d.Logger.Error("failed to load account", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	plan := req.Plan
	if plan == "" {
		plan = "free"
	}

	plaintext := models.GenerateAPIKey()
	apiKey := &models.APIKey{
		ID:        uuid.New(),
		KeyHash:   utils.HashString(plaintext),
		Name:      req.Name,
		AccountID: req.AccountID,
		Plan:      plan,
		IsActive:  true,
	}
	if err := d.APIKeys.Create(r.Context(), apiKey); err != nil {
		d.Logger.Error("failed to create API key", "account", req.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"id":         apiKey.ID,
		"api_key":    plaintext,
		"name":       apiKey.Name,
		"account_id": apiKey.AccountID,
		"plan":       apiKey.Plan,
	})
}

type adminTopUpRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// handleAdminTopUp credits an account balance.
func (d *Dependencies) handleAdminTopUp(w http.ResponseWriter, r *http.Request) {
	var req adminTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		utils.RespondWithError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	description := req.Description
	if description == "" {
		description = "Account top-up"
	}

	txn, err := d.Ledger.Credit(r.Context(), req.AccountID, req.Amount, description)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		d.Logger.Error("failed to top up account", "account", req.AccountID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"transaction": txn,
		"message":     "Balance topped up successfully",
	})
}

// handleAdminRecalculatePricing reruns the percentile assignment on demand and
// reports the run summary.
func (d *Dependencies) handleAdminRecalculatePricing(w http.ResponseWriter, r *http.Request) {
	result, err := d.Engine.RecalculateAllPricing(r.Context())
	if err != nil {
		if errors.Is(err, pricing.ErrNoActiveModels) {
			utils.RespondWithError(w, http.StatusConflict, "No active models available for pricing")
			return
		}
		d.Logger.Error("pricing recalculation failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "pricing recalculation failed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":      "Pricing recalculated successfully",
		"total_models": result.TotalModels,
		"percentiles":  result.Percentiles,
		"updated_at":   result.UpdatedAt,
	})
}
