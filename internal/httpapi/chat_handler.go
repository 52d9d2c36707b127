package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beaver_gateway/internal/auth"
	"beaver_gateway/internal/billing"
	"beaver_gateway/internal/logging"
	"beaver_gateway/internal/middleware"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/pricing"
	"beaver_gateway/internal/providers"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

type chatRequest struct {
	Messages    []providers.Message `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// handleChat runs the admission pipeline for one metered inference request:
// rate gate, quota gate, provider dispatch, cost computation, settlement.
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	modelName := r.PathValue("model")

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || !identity.ViaAPIKey {
		utils.RespondWithError(w, http.StatusUnauthorized, "API key required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	limiterKey := identity.APIKeyID.String()

	// Rate gate. A denied request consumes nothing.
	if !d.RateLimit.Allow(limiterKey, identity.Plan) {
		d.finishDenied(w, r, identity, modelName, start, http.StatusTooManyRequests,
			"Rate limit exceeded", "rate_limited")
		return
	}

	// Quota gate. The rate slot consumed above is deliberately not returned:
	// the request did hit the service inside this window.
	if !d.Quota.Increment(limiterKey, identity.Plan) {
		d.finishDenied(w, r, identity, modelName, start, http.StatusPaymentRequired,
			"Monthly quota exceeded", "quota_exceeded")
		return
	}

	model, err := d.Models.GetActiveByName(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			d.finishDenied(w, r, identity, modelName, start, http.StatusNotFound,
				fmt.Sprintf("Model '%s' not found or inactive", modelName), "model_not_found")
			return
		}
		d.Logger.Error("model lookup failed", "model", modelName, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp, err := d.Providers.Get(model.Provider).Chat(r.Context(), providers.ChatRequest{
		Model:       modelName,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		// The request reached an upstream and failed there. Record it with
		// zero cost so the attempt is visible, then reject.
		d.Ledger.LogFailedUsage(r.Context(), d.newUsageLog(identity, model, 0, 0))

		msg := err.Error()
		var provErr *providers.ProviderError
		if errors.As(err, &provErr) {
			msg = provErr.Message
		}
		d.finishDenied(w, r, identity, modelName, start, http.StatusPaymentRequired,
			fmt.Sprintf("%s error: %s", strings.ToUpper(model.Provider), msg), "provider_error")
		return
	}

	cost, err := d.Engine.CostForRequest(r.Context(), modelName, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		// Fallback: charge from the prices already on the catalog row rather
		// than failing a completed provider call.
		input, output := model.ChargeablePrices()
		cost = pricing.CostWithPrices(resp.InputTokens, resp.OutputTokens, input, output)
	}

	usageLog := d.newUsageLog(identity, model, resp.InputTokens, resp.OutputTokens)
	usageLog.TotalCost = cost

	if err := d.Ledger.SettleUsage(r.Context(), identity.AccountID, cost, usageLog); err != nil {
		if errors.Is(err, billing.ErrInsufficientBalance) {
			failed := d.newUsageLog(identity, model, resp.InputTokens, resp.OutputTokens)
			d.Ledger.LogFailedUsage(r.Context(), failed)
			d.finishDenied(w, r, identity, modelName, start, http.StatusPaymentRequired,
				err.Error(), "insufficient_balance")
			return
		}
		// The provider already answered; losing the audit records must not
		// turn a served response into a client-visible failure.
		d.Logger.Error("settlement failed after provider response", "account", identity.AccountID, "error", err)
		d.Metrics.IncAuditWriteFailure()
	}

	d.emitRecord(r, identity, modelName, model.Provider, "ok", resp.InputTokens, resp.OutputTokens, cost, start)
	d.Metrics.ObserveRequest(modelName, "ok", time.Since(start))

	utils.RespondWithJSON(w, http.StatusOK, chatResponse{
		ID:    fmt.Sprintf("beaver-%s", uuid.New()),
		Model: modelName,
		Choices: []chatChoice{
			{Message: chatMessage{Role: "assistant", Content: resp.Content}},
		},
		Usage: chatUsage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			TotalCost:    cost,
		},
	})
}

func (d *Dependencies) newUsageLog(identity *auth.Identity, model *models.Model, inputTokens, outputTokens int64) *models.UsageLog {
	return &models.UsageLog{
		ID:           uuid.New(),
		APIKeyID:     identity.APIKeyID,
		AccountID:    identity.AccountID,
		ModelID:      model.ID,
		Provider:     model.Provider,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalCost:    decimal.Zero,
	}
}

// finishDenied rejects the request and records the denial on the metrics and
// the request-log side channel.
func (d *Dependencies) finishDenied(w http.ResponseWriter, r *http.Request, identity *auth.Identity,
	modelName string, start time.Time, status int, message, outcome string) {

	d.emitRecord(r, identity, modelName, "", outcome, 0, 0, decimal.Zero, start)
	d.Metrics.ObserveRequest(modelName, outcome, time.Since(start))
	utils.RespondWithError(w, status, message)
}

// emitRecord pushes a request-log record to the sink. Best effort.
func (d *Dependencies) emitRecord(r *http.Request, identity *auth.Identity, modelName, provider, outcome string,
	inputTokens, outputTokens int64, cost decimal.Decimal, start time.Time) {

	rec := &logging.Record{
		AccountID:    identity.AccountID,
		APIKeyID:     identity.APIKeyID.String(),
		Model:        modelName,
		Provider:     provider,
		Outcome:      outcome,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalCost:    cost.String(),
		LatencyMs:    time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.Sink.Enqueue(r.Context(), rec); err != nil {
		d.Logger.Warn("failed to enqueue request log", "error", err)
	}
}
