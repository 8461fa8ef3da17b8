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

// DatabaseStore is the catalog subset the databases handler needs.
type DatabaseStore interface {
	ListDatabases(ctx context.Context) ([]domain.Database, error)
	GetDatabaseByAlias(ctx context.Context, alias string) (domain.Database, error)
	SetDatabaseEnabled(ctx context.Context, alias string, enabled bool) error
	UpdatePermissions(ctx context.Context, alias string, perms domain.Permissions) error
	RenameAlias(ctx context.Context, oldAlias, newAlias string) error
}

// DatabasesHandler implements /api/databases/*.
type DatabasesHandler struct {
	store  DatabaseStore
	logger zerolog.Logger
}

// NewDatabasesHandler builds the databases handler.
func NewDatabasesHandler(store DatabaseStore, logger zerolog.Logger) *DatabasesHandler {
	return &DatabasesHandler{store: store, logger: logger}
}

// List handles GET /api/databases.
func (h *DatabasesHandler) List(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.store.ListDatabases(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", err.Error())
		return
	}
	WriteSuccess(w, dbs)
}

// Get handles GET /api/databases/:alias.
func (h *DatabasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	db, err := h.store.GetDatabaseByAlias(r.Context(), alias)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "database not found")
		return
	}
	WriteSuccess(w, db)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled handles PUT /api/databases/:alias/enabled.
func (h *DatabasesHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if _, err := h.store.GetDatabaseByAlias(r.Context(), alias); err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "database not found")
		return
	}

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	if err := h.store.SetDatabaseEnabled(r.Context(), alias, req.Enabled); err != nil {
		WriteError(w, http.StatusInternalServerError, "update_error", err.Error())
		return
	}
	WriteSuccess(w, map[string]bool{"enabled": req.Enabled})
}

type permissionsRequest struct {
	Select   bool `json:"select"`
	Insert   bool `json:"insert"`
	Update   bool `json:"update"`
	Delete   bool `json:"delete"`
	Create   bool `json:"create"`
	Alter    bool `json:"alter"`
	Drop     bool `json:"drop"`
	Truncate bool `json:"truncate"`
}

// SetPermissions handles PUT /api/databases/:alias/permissions.
func (h *DatabasesHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if _, err := h.store.GetDatabaseByAlias(r.Context(), alias); err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "database not found")
		return
	}

	var req permissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	perms := domain.Permissions{
		Select: req.Select, Insert: req.Insert, Update: req.Update, Delete: req.Delete,
		Create: req.Create, Alter: req.Alter, Drop: req.Drop, Truncate: req.Truncate,
	}
	if err := h.store.UpdatePermissions(r.Context(), alias, perms); err != nil {
		WriteError(w, http.StatusInternalServerError, "update_error", err.Error())
		return
	}
	WriteSuccess(w, perms)
}

type renameAliasRequest struct {
	Alias string `json:"alias"`
}

// Rename handles PUT /api/databases/:alias/alias.
func (h *DatabasesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if _, err := h.store.GetDatabaseByAlias(r.Context(), alias); err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "database not found")
		return
	}

	var req renameAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	if err := h.store.RenameAlias(r.Context(), alias, req.Alias); err != nil {
		if errors.Is(err, catalog.ErrAliasTaken) {
			WriteError(w, http.StatusConflict, "alias_taken", "alias already in use")
			return
		}
		if errors.Is(err, catalog.ErrAliasInvalid) {
			WriteError(w, http.StatusBadRequest, "alias_invalid", "alias must be 1-64 characters of letters, digits, underscore, or hyphen, and cannot start with a digit")
			return
		}
		WriteError(w, http.StatusInternalServerError, "rename_error", err.Error())
		return
	}
	WriteSuccess(w, map[string]string{"alias": req.Alias})
}
