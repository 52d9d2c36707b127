package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaver_gateway/internal/auth"
	"beaver_gateway/internal/billing"
	"beaver_gateway/internal/logging"
	"beaver_gateway/internal/metrics"
	"beaver_gateway/internal/middleware"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/pricing"
	"beaver_gateway/internal/providers"
	"beaver_gateway/internal/quota"
	"beaver_gateway/internal/ratelimit"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

// Fakes

type fakeAccountStore struct {
	accounts map[string]*models.Account
}

func (s *fakeAccountStore) Create(_ context.Context, a *models.Account) error {
	if _, exists := s.byEmail(a.Email); exists {
		return storage.ErrDuplicateEmail
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *fakeAccountStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, storage.ErrAccountNotFound
}

func (s *fakeAccountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	if a, ok := s.byEmail(email); ok {
		return a, nil
	}
	return nil, storage.ErrAccountNotFound
}

func (s *fakeAccountStore) byEmail(email string) (*models.Account, bool) {
	for _, a := range s.accounts {
		if a.Email == email {
			return a, true
		}
	}
	return nil, false
}

type fakeAPIKeyStore struct {
	keys map[string]*models.APIKey // by hash
}

func (s *fakeAPIKeyStore) Create(_ context.Context, k *models.APIKey) error {
	s.keys[k.KeyHash] = k
	return nil
}

func (s *fakeAPIKeyStore) GetByHash(_ context.Context, hash string) (*models.APIKey, error) {
	if k, ok := s.keys[hash]; ok {
		return k, nil
	}
	return nil, storage.ErrAPIKeyNotFound
}

func (s *fakeAPIKeyStore) ListByAccount(_ context.Context, accountID string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.AccountID == accountID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeAPIKeyStore) Deactivate(_ context.Context, id uuid.UUID) error {
	for _, k := range s.keys {
		if k.ID == id {
			k.IsActive = false
			return nil
		}
	}
	return storage.ErrAPIKeyNotFound
}

type fakeModelStore struct {
	models map[string]*models.Model
}

func (s *fakeModelStore) GetActiveByName(_ context.Context, name string) (*models.Model, error) {
	if m, ok := s.models[name]; ok {
		return m, nil
	}
	return nil, storage.ErrModelNotFound
}

func (s *fakeModelStore) ListActive(_ context.Context) ([]*models.Model, error) {
	var out []*models.Model
	for _, m := range s.models {
		out = append(out, m)
	}
	return out, nil
}

type fakeTransactionStore struct {
	txns []*models.Transaction
}

func (s *fakeTransactionStore) ListByAccount(_ context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, txn := range s.txns {
		if txn.AccountID == accountID && len(out) < limit {
			out = append(out, txn)
		}
	}
	return out, nil
}

type fakeUsageStore struct {
	logs []*models.UsageLog
}

func (s *fakeUsageStore) ListByAccountSince(_ context.Context, accountID string, since time.Time, limit int) ([]*models.UsageLog, error) {
	var out []*models.UsageLog
	for _, log := range s.logs {
		if log.AccountID == accountID && len(out) < limit {
			out = append(out, log)
		}
	}
	return out, nil
}

func (s *fakeUsageStore) SummarizeByAccountSince(_ context.Context, accountID string, _ time.Time) (*storage.UsageSummary, error) {
	summary := &storage.UsageSummary{TotalCost: decimal.Zero}
	for _, log := range s.logs {
		if log.AccountID != accountID {
			continue
		}
		summary.RequestCount++
		summary.InputTokens += log.InputTokens
		summary.OutputTokens += log.OutputTokens
		summary.TotalCost = summary.TotalCost.Add(log.TotalCost)
	}
	return summary, nil
}

type fakeRefreshTokenStore struct {
	tokens map[string]*models.RefreshToken
}

func (s *fakeRefreshTokenStore) Create(_ context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *fakeRefreshTokenStore) GetByToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := s.tokens[token]; ok {
		return t, nil
	}
	return nil, storage.ErrRefreshTokenNotFound
}

func (s *fakeRefreshTokenStore) Revoke(_ context.Context, token string) error {
	if t, ok := s.tokens[token]; ok {
		t.IsRevoked = true
	}
	return nil
}

type fakeEngine struct {
	cost        decimal.Decimal
	err         error
	recalcErr   error
	recalcCalls int
}

func (e *fakeEngine) CostForRequest(_ context.Context, _ string, _, _ int64) (decimal.Decimal, error) {
	if e.err != nil {
		return decimal.Zero, e.err
	}
	return e.cost, nil
}

func (e *fakeEngine) RecalculateAllPricing(_ context.Context) (*pricing.RecalculationResult, error) {
	e.recalcCalls++
	if e.recalcErr != nil {
		return nil, e.recalcErr
	}
	return &pricing.RecalculationResult{TotalModels: 1, UpdatedAt: time.Now()}, nil
}

type fakeLedger struct {
	settleErr   error
	settled     []*models.UsageLog
	settledCost []decimal.Decimal
	failed      []*models.UsageLog
	credits     []decimal.Decimal
}

func (l *fakeLedger) SettleUsage(_ context.Context, _ string, cost decimal.Decimal, log *models.UsageLog) error {
	if l.settleErr != nil {
		return l.settleErr
	}
	l.settled = append(l.settled, log)
	l.settledCost = append(l.settledCost, cost)
	return nil
}

func (l *fakeLedger) LogFailedUsage(_ context.Context, log *models.UsageLog) {
	log.TotalCost = decimal.Zero
	l.failed = append(l.failed, log)
}

func (l *fakeLedger) Credit(_ context.Context, accountID string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	l.credits = append(l.credits, amount)
	return &models.Transaction{
		ID:          models.NewTransactionID(),
		AccountID:   accountID,
		Amount:      amount,
		Type:        models.TransactionTypeTopUp,
		Description: description,
	}, nil
}

type fakeProvider struct {
	name string
	resp *providers.ChatResponse
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

type fakeRegistry struct {
	provider providers.Provider
}

func (r *fakeRegistry) Get(_ string) providers.Provider { return r.provider }

type denyLimiter struct{}

func (denyLimiter) Allow(_, _ string) bool { return false }

type denyTracker struct{}

func (denyTracker) Increment(_, _ string) bool { return false }

type countingMetrics struct {
	metrics.NoopMetrics
	auditFailures int
	outcomes      []string
}

func (m *countingMetrics) IncAuditWriteFailure() { m.auditFailures++ }

func (m *countingMetrics) ObserveRequest(_, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

// Test environment

type testEnv struct {
	deps     *Dependencies
	mux      *http.ServeMux
	apiKey   string
	account  *models.Account
	accounts *fakeAccountStore
	ledger   *fakeLedger
	engine   *fakeEngine
	sink     *logging.MemorySink
	metrics  *countingMetrics
	provider *fakeProvider
	issuer   *auth.TokenIssuer
	txns     *fakeTransactionStore
	usage    *fakeUsageStore
	refresh  *fakeRefreshTokenStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	account := &models.Account{
		ID:      "acc_test",
		Email:   "tenant@example.com",
		Balance: decimal.NewFromInt(10),
	}
	accounts := &fakeAccountStore{accounts: map[string]*models.Account{account.ID: account}}

	plaintext := models.GenerateAPIKey()
	apiKeys := &fakeAPIKeyStore{keys: map[string]*models.APIKey{}}
	apiKeys.keys[utils.HashString(plaintext)] = &models.APIKey{
		ID:        uuid.New(),
		KeyHash:   utils.HashString(plaintext),
		Name:      "test",
		AccountID: account.ID,
		Plan:      "free",
		IsActive:  true,
	}

	catalog := &fakeModelStore{models: map[string]*models.Model{
		"gpt-4o-mini": {
			ID:              "model_mini",
			Name:            "gpt-4o-mini",
			DisplayName:     "GPT-4o Mini",
			Provider:        "openai",
			Status:          models.ModelStatusActive,
			BaseInputPrice:  decimal.RequireFromString("0.15"),
			BaseOutputPrice: decimal.RequireFromString("0.6"),
		},
	}}

	env := &testEnv{
		apiKey:   plaintext,
		account:  account,
		accounts: accounts,
		ledger:   &fakeLedger{},
		txns:     &fakeTransactionStore{},
		usage:    &fakeUsageStore{},
		refresh:  &fakeRefreshTokenStore{tokens: map[string]*models.RefreshToken{}},
		engine:  &fakeEngine{cost: decimal.RequireFromString("0.0105")},
		sink:    logging.NewMemorySink(),
		metrics: &countingMetrics{},
		provider: &fakeProvider{
			name: "openai",
			resp: &providers.ChatResponse{Content: "hello", InputTokens: 1000, OutputTokens: 500},
		},
		issuer: auth.NewTokenIssuer([]byte("test-secret"), 15*time.Minute),
	}

	env.deps = &Dependencies{
		Accounts:        accounts,
		APIKeys:         apiKeys,
		Models:          catalog,
		Transactions:    env.txns,
		Usage:           env.usage,
		RefreshTokens:   env.refresh,
		Engine:          env.engine,
		Ledger:          env.ledger,
		Providers:       &fakeRegistry{provider: env.provider},
		RateLimit:       ratelimit.NewNoopLimiter(),
		Quota:           quota.NewNoopTracker(),
		Issuer:          env.issuer,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Sink:            env.sink,
		Metrics:         env.metrics,
		Logger:          utils.NewLogger("test", utils.Critical),
	}

	authMW := middleware.NewAuth(apiKeys, accounts, env.issuer)
	env.mux = NewRouter(env.deps, authMW)
	return env
}

func (e *testEnv) chat(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/models/gpt-4o-mini/chat", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func chatBody() map[string]any {
	return map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestChatSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.chat(t, chatBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.ID, "beaver-")
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
	assert.Equal(t, int64(1000), resp.Usage.InputTokens)
	assert.True(t, resp.Usage.TotalCost.Equal(decimal.RequireFromString("0.0105")))

	// Settlement carried the engine cost and the full usage log.
	require.Len(t, env.ledger.settled, 1)
	assert.True(t, env.ledger.settledCost[0].Equal(decimal.RequireFromString("0.0105")))
	assert.Equal(t, "model_mini", env.ledger.settled[0].ModelID)
	assert.Empty(t, env.ledger.failed)

	records := env.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Outcome)
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.deps.RateLimit = denyLimiter{}

	rec := env.chat(t, chatBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", errorMessage(t, rec))
	assert.Empty(t, env.ledger.settled)
	assert.Contains(t, env.metrics.outcomes, "rate_limited")
}

func TestChatQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Quota = denyTracker{}

	rec := env.chat(t, chatBody())
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Monthly quota exceeded", errorMessage(t, rec))
	assert.Empty(t, env.ledger.settled)
}

func TestChatQuotaDeniedDoesNotRefundRateSlot(t *testing.T) {
	env := newTestEnv(t)

	// The rate gate runs before the quota gate, so a quota denial still
	// consumed one slot in the current window.
	var rateCalls, quotaCalls int
	env.deps.RateLimit = funcLimiter(func(_, _ string) bool { rateCalls++; return true })
	env.deps.Quota = funcTracker(func(_, _ string) bool { quotaCalls++; return false })

	rec := env.chat(t, chatBody())
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 1, rateCalls)
	assert.Equal(t, 1, quotaCalls)
}

type funcLimiter func(key, plan string) bool

func (f funcLimiter) Allow(key, plan string) bool { return f(key, plan) }

type funcTracker func(key, plan string) bool

func (f funcTracker) Increment(key, plan string) bool { return f(key, plan) }

func TestChatUnknownModel(t *testing.T) {
	env := newTestEnv(t)

	payload, _ := json.Marshal(chatBody())
	req := httptest.NewRequest(http.MethodPost, "/v1/models/ghost-model/chat", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+env.apiKey)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "ghost-model")
}

func TestChatProviderError(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = &providers.ProviderError{Provider: "openai", Message: "upstream timeout"}

	rec := env.chat(t, chatBody())
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "OPENAI error: upstream timeout", errorMessage(t, rec))

	// The failed attempt is recorded with zero tokens and zero cost.
	require.Len(t, env.ledger.failed, 1)
	assert.Equal(t, int64(0), env.ledger.failed[0].InputTokens)
	assert.True(t, env.ledger.failed[0].TotalCost.IsZero())
	assert.Empty(t, env.ledger.settled)
}

func TestChatInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.settleErr = &billing.InsufficientBalanceError{
		Required:  decimal.RequireFromString("0.0105"),
		Available: decimal.RequireFromString("0.001"),
	}

	rec := env.chat(t, chatBody())
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Insufficient balance. Required: $0.010500, Available: $0.001000", errorMessage(t, rec))

	// Token counts survive on the zero-cost record.
	require.Len(t, env.ledger.failed, 1)
	assert.Equal(t, int64(1000), env.ledger.failed[0].InputTokens)
	assert.True(t, env.ledger.failed[0].TotalCost.IsZero())
}

func TestChatSettlementFailureStillResponds(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.settleErr = errors.New("connection reset")

	rec := env.chat(t, chatBody())

	// The provider answered, so the client still gets the response.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.metrics.auditFailures)
}

func TestChatCostFallback(t *testing.T) {
	env := newTestEnv(t)
	env.engine.err = pricing.ErrPricingNotAvailable

	rec := env.chat(t, chatBody())
	require.Equal(t, http.StatusOK, rec.Code)

	// 1000 in at 0.15/1M + 500 out at 0.6/1M from the base prices.
	expected := decimal.RequireFromString("0.00045")
	require.Len(t, env.ledger.settledCost, 1)
	assert.True(t, env.ledger.settledCost[0].Equal(expected),
		"cost = %s", env.ledger.settledCost[0])
}

func TestChatRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.issuer.IssueAccessToken(env.account.ID, env.account.Email)
	require.NoError(t, err)

	payload, _ := json.Marshal(chatBody())
	req := httptest.NewRequest(http.MethodPost, "/v1/models/gpt-4o-mini/chat", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key required", errorMessage(t, rec))
}

func TestChatEmptyMessages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.chat(t, map[string]any{"messages": []map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
