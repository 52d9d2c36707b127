package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beaver_gateway/internal/auth"
	"beaver_gateway/internal/middleware"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

type registerRequest struct {
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func newRefreshTokenValue() string {
	buf := make([]byte, 32)
	rand.Read(buf) //nolint:errcheck
	return hex.EncodeToString(buf)
}

// handleRegister creates an account with a hashed password and a default API
// key. The plaintext key is returned once; tokens require a separate login.
func (d *Dependencies) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.InitialBalance.IsNegative() {
		utils.RespondWithError(w, http.StatusBadRequest, "initial_balance must not be negative")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		d.Logger.Error("failed to hash password", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	account := &models.Account{
		ID:           models.NewAccountID(),
		Email:        req.Email,
		PasswordHash: &passwordHash,
		Balance:      req.InitialBalance,
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

	plaintext := models.GenerateAPIKey()
	apiKey := &models.APIKey{
		ID:        uuid.New(),
		KeyHash:   utils.HashString(plaintext),
		Name:      "Default Key",
		AccountID: account.ID,
		Plan:      "free",
		IsActive:  true,
	}
	if err := d.APIKeys.Create(r.Context(), apiKey); err != nil {
		d.Logger.Error("failed to create default API key", "account", account.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"account": map[string]any{
			"id":             account.ID,
			"email":          account.Email,
			"balance":        account.Balance,
			"email_verified": account.EmailVerified,
		},
		"api_key":    plaintext,
		"api_key_id": apiKey.ID,
		"message":    "Account created successfully. Please login to get JWT tokens.",
	})
}

// handleLogin verifies credentials and issues an access/refresh token pair.
func (d *Dependencies) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := d.Accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		// Same message for unknown email and wrong password.
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if account.PasswordHash == nil || !auth.CheckPassword(*account.PasswordHash, req.Password) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	d.issueTokens(w, r, account)
}

// handleRefresh rotates a refresh token and issues a new access token.
func (d *Dependencies) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := d.RefreshTokens.GetByToken(r.Context(), req.RefreshToken)
	if err != nil || stored.IsRevoked {
		utils.RespondWithError(w, http.StatusUnauthorized, "Refresh token not found or revoked")
		return
	}
	if stored.IsExpired() {
		utils.RespondWithError(w, http.StatusUnauthorized, "Refresh token has expired")
		return
	}

	account, err := d.Accounts.GetByID(r.Context(), stored.AccountID)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "User not found")
		return
	}

	// Rotate: the presented token is single use.
	if err := d.RefreshTokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		d.Logger.Error("failed to revoke refresh token", "account", account.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d.issueTokens(w, r, account)
}

// handleLogout revokes a refresh token. Always succeeds.
func (d *Dependencies) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		if err := d.RefreshTokens.Revoke(r.Context(), req.RefreshToken); err != nil {
			d.Logger.Warn("failed to revoke refresh token on logout", "error", err)
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// handleMe returns the caller's account and its API keys.
func (d *Dependencies) handleMe(w http.ResponseWriter, r *http.Request) {
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

	keys, err := d.APIKeys.ListByAccount(r.Context(), account.ID)
	if err != nil {
		d.Logger.Error("failed to list API keys", "account", account.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"id":             account.ID,
		"email":          account.Email,
		"balance":        account.Balance,
		"email_verified": account.EmailVerified,
		"api_keys":       keys,
		"created_at":     account.CreatedAt.Format(time.RFC3339),
	})
}

func (d *Dependencies) issueTokens(w http.ResponseWriter, r *http.Request, account *models.Account) {
	accessToken, err := d.Issuer.IssueAccessToken(account.ID, account.Email)
	if err != nil {
		d.Logger.Error("failed to issue access token", "account", account.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	refreshToken := &models.RefreshToken{
		ID:        models.NewRefreshTokenID(),
		Token:     newRefreshTokenValue(),
		AccountID: account.ID,
		ExpiresAt: time.Now().UTC().Add(d.RefreshTokenTTL),
	}
	if err := d.RefreshTokens.Create(r.Context(), refreshToken); err != nil {
		d.Logger.Error("failed to store refresh token", "account", account.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		TokenType:    "bearer",
		ExpiresIn:    int(d.Issuer.AccessTTL().Seconds()),
	})
}
