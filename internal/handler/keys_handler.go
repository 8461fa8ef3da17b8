package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akz4ol/sqlgateway/internal/catalog"
	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// KeyStore is the catalog subset the API key handler needs.
type KeyStore interface {
	CreateApiKey(ctx context.Context, name string) (domain.APIKey, error)
	ListApiKeys(ctx context.Context) ([]domain.APIKey, error)
	RevokeApiKey(ctx context.Context, id string) error
	DeleteApiKey(ctx context.Context, id string) error
}

// KeysHandler implements /api/keys/*.
type KeysHandler struct {
	store  KeyStore
	logger zerolog.Logger
}

// NewKeysHandler builds the API key handler.
func NewKeysHandler(store KeyStore, logger zerolog.Logger) *KeysHandler {
	return &KeysHandler{store: store, logger: logger}
}

// List handles GET /api/keys.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListApiKeys(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", err.Error())
		return
	}
	WriteSuccess(w, keys)
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/keys. The plaintext secret is returned exactly
// once, in this response, and never again.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "missing_name", "name is required")
		return
	}

	key, err := h.store.CreateApiKey(r.Context(), req.Name)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_error", err.Error())
		return
	}
	WriteSuccessStatus(w, http.StatusCreated, key)
}

// Revoke handles POST /api/keys/:id/revoke.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.RevokeApiKey(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrLastActiveKey) {
			WriteError(w, http.StatusConflict, "last_active_key", "cannot revoke the last active API key")
			return
		}
		WriteError(w, http.StatusInternalServerError, "revoke_error", err.Error())
		return
	}
	WriteSuccess(w, map[string]bool{"revoked": true})
}

// Delete handles DELETE /api/keys/:id.
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteApiKey(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrLastActiveKey) {
			WriteError(w, http.StatusConflict, "last_active_key", "cannot delete the last active API key")
			return
		}
		WriteError(w, http.StatusInternalServerError, "delete_error", err.Error())
		return
	}
	WriteSuccess(w, map[string]bool{"deleted": true})
}
