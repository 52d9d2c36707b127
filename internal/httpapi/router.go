package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beaver_gateway/internal/auth"
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

// Store interfaces cover the slices of the repositories the handlers use, so
// tests can substitute fakes without a database.

type ModelStore interface {
	GetActiveByName(ctx context.Context, name string) (*models.Model, error)
	ListActive(ctx context.Context) ([]*models.Model, error)
}

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type APIKeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type TransactionStore interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
}

type UsageStore interface {
	ListByAccountSince(ctx context.Context, accountID string, since time.Time, limit int) ([]*models.UsageLog, error)
	SummarizeByAccountSince(ctx context.Context, accountID string, since time.Time) (*storage.UsageSummary, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
}

// CostEngine is the pricing engine surface the handlers need.
type CostEngine interface {
	CostForRequest(ctx context.Context, modelName string, inputTokens, outputTokens int64) (decimal.Decimal, error)
	RecalculateAllPricing(ctx context.Context) (*pricing.RecalculationResult, error)
}

// Ledger settles and credits balances.
type Ledger interface {
	SettleUsage(ctx context.Context, accountID string, cost decimal.Decimal, log *models.UsageLog) error
	LogFailedUsage(ctx context.Context, log *models.UsageLog)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Transaction, error)
}

// ProviderRegistry resolves provider names to backends.
type ProviderRegistry interface {
	Get(name string) providers.Provider
}

// HealthChecker reports whether the backing store can serve queries.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Accounts      AccountStore
	APIKeys       APIKeyStore
	Models        ModelStore
	Transactions  TransactionStore
	Usage         UsageStore
	RefreshTokens RefreshTokenStore

	Engine    CostEngine
	Ledger    Ledger
	Providers ProviderRegistry
	RateLimit ratelimit.Limiter
	Quota     quota.Tracker

	Issuer          *auth.TokenIssuer
	RefreshTokenTTL time.Duration

	Sink    logging.Sink
	Metrics metrics.Metrics
	Logger  *utils.Logger
	Health  HealthChecker

	StartedAt time.Time
}

// NewRouter wires the dependencies into the route table.
func NewRouter(deps *Dependencies, authMW *middleware.Auth) *http.ServeMux {
	if deps.Logger == nil {
		deps.Logger = utils.NewLogger("httpapi")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.Sink == nil {
		deps.Sink = logging.NewNoopSink()
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, authMW)
	return mux
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, authMW *middleware.Auth) {
	authed := func(h http.HandlerFunc) http.Handler {
		return authMW.Authenticate(h)
	}

	// Metered inference surface (API key auth)
	mux.Handle("POST /v1/models/{model}/chat", authed(deps.handleChat))
	mux.Handle("GET /v1/models", authed(deps.handleListModels))

	// Account surface (API key or JWT)
	mux.Handle("GET /account/balance", authed(deps.handleBalance))
	mux.Handle("GET /account/transactions", authed(deps.handleTransactions))
	mux.Handle("GET /account/usage", authed(deps.handleUsage))

	// Auth surface (public)
	mux.HandleFunc("POST /auth/register", deps.handleRegister)
	mux.HandleFunc("POST /auth/login", deps.handleLogin)
	mux.HandleFunc("POST /auth/refresh", deps.handleRefresh)
	mux.HandleFunc("POST /auth/logout", deps.handleLogout)
	mux.Handle("GET /auth/me", authed(deps.handleMe))

	// Admin surface (JWT auth)
	mux.Handle("POST /admin/accounts", authed(deps.handleAdminCreateAccount))
	mux.Handle("GET /admin/accounts/{id}", authed(deps.handleAdminGetAccount))
	mux.Handle("POST /admin/api-keys", authed(deps.handleAdminCreateAPIKey))
	mux.Handle("POST /admin/top-up", authed(deps.handleAdminTopUp))
	mux.Handle("POST /admin/recalculate-pricing", authed(deps.handleAdminRecalculatePricing))

	// Operational surface
	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.HandleFunc("GET /status/uptime", deps.handleUptime)
	mux.Handle("GET /metrics", deps.Metrics.HTTPHandler())
}
