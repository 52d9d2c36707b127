package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"beaver_gateway/internal/auth"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity set by the auth
// middleware.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	return id, ok
}

// WithIdentity attaches an identity to a context. Exported for handler tests.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// AccountStore is the subset of the account repository the middleware needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// APIKeyStore is the subset of the API key repository the middleware needs.
type APIKeyStore interface {
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// Auth authenticates requests from the Authorization header. Opaque gateway
// keys are looked up by hash; anything else is treated as a JWT.
type Auth struct {
	apiKeys  APIKeyStore
	accounts AccountStore
	issuer   *auth.TokenIssuer
	logger   *utils.Logger
}

// NewAuth creates the auth middleware.
func NewAuth(apiKeys APIKeyStore, accounts AccountStore, issuer *auth.TokenIssuer) *Auth {
	return &Auth{
		apiKeys:  apiKeys,
		accounts: accounts,
		issuer:   issuer,
		logger:   utils.NewLogger("auth"),
	}
}

// Authenticate wraps a handler and rejects unauthenticated requests.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "invalid Authorization header")
			return
		}

		var identity *auth.Identity
		if models.IsGatewayKey(token) {
			id, status, msg := a.authenticateAPIKey(r.Context(), token)
			if id == nil {
				utils.RespondWithError(w, status, msg)
				return
			}
			identity = id
		} else {
			claims, err := a.issuer.ValidateAccessToken(token)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			identity = &auth.Identity{AccountID: claims.AccountID}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// authenticateAPIKey resolves an opaque key to an identity, or returns the
// HTTP status and message to reject with.
func (a *Auth) authenticateAPIKey(ctx context.Context, token string) (*auth.Identity, int, string) {
	key, err := a.apiKeys.GetByHash(ctx, utils.HashString(token))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, http.StatusUnauthorized, "unknown API key"
		}
		a.logger.Error("API key lookup failed", "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}

	if !key.IsActive {
		return nil, http.StatusForbidden, "API key is disabled"
	}

	account, err := a.accounts.GetByID(ctx, key.AccountID)
	if err != nil {
		a.logger.Error("account lookup failed", "account", key.AccountID, "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}

	// A balance already below zero fails fast before any provider work.
	if account.Balance.IsNegative() {
		return nil, http.StatusPaymentRequired, "account balance is negative"
	}

	return &auth.Identity{
		AccountID: key.AccountID,
		APIKeyID:  key.ID,
		Plan:      key.Plan,
		ViaAPIKey: true,
	}, 0, ""
}
