package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/akz4ol/sqlgateway/internal/authn"
	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/middleware"
	"github.com/rs/zerolog"
)

// AuthUserStore is the catalog subset the auth handler needs for login,
// password changes, and identity lookups.
type AuthUserStore interface {
	VerifyUserPassword(ctx context.Context, username, password string) (domain.User, error)
	ChangeUserPassword(ctx context.Context, userID, newPasswordHash string) error
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// AuthKeyVerifier validates a bearer API key presented as a login token.
type AuthKeyVerifier interface {
	VerifyApiKey(ctx context.Context, secret string) (domain.APIKey, error)
}

// AuthHandler implements /api/auth/*.
type AuthHandler struct {
	users  AuthUserStore
	keys   AuthKeyVerifier
	signer *crypto.TokenSigner
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAuthHandler builds the auth handler.
func NewAuthHandler(users AuthUserStore, keys AuthKeyVerifier, signer *crypto.TokenSigner, ttl time.Duration, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, keys: keys, signer: signer, ttl: ttl, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	if req.Token != "" {
		key, err := h.keys.VerifyApiKey(r.Context(), req.Token)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid API key")
			return
		}
		WriteSuccess(w, map[string]interface{}{"apiKey": map[string]string{"id": key.ID, "name": key.Name}})
		return
	}

	user, err := h.users.VerifyUserPassword(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	token, err := h.signer.Sign(user.ID, user.Username, h.ttl)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "token_error", "failed to issue session token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authn.CookieName(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	WriteSuccess(w, map[string]interface{}{
		"user": map[string]interface{}{
			"id":                 user.ID,
			"username":           user.Username,
			"mustChangePassword": user.MustChangePassword,
		},
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   authn.CookieName(),
		Value:  "",
		MaxAge: -1,
		Path:   "/",
	})
	WriteSuccess(w, map[string]bool{"loggedOut": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.UserID == "" {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "login required")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	user, err := h.users.VerifyUserPassword(r.Context(), identity.Username, req.CurrentPassword)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "current password is incorrect")
		return
	}

	newHash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "hash_error", "failed to hash new password")
		return
	}

	if err := h.users.ChangeUserPassword(r.Context(), user.ID, newHash); err != nil {
		WriteError(w, http.StatusInternalServerError, "update_error", "failed to update password")
		return
	}

	WriteSuccess(w, map[string]bool{"changed": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.UserID == "" && !identity.IsAPIKey {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "login required")
		return
	}

	if identity.IsAPIKey {
		WriteSuccess(w, map[string]interface{}{"apiKeyId": identity.APIKeyID, "apiKeyName": identity.APIKeyName})
		return
	}

	WriteSuccess(w, map[string]interface{}{"id": identity.UserID, "username": identity.Username})
}
