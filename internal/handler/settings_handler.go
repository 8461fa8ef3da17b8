package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SettingsStore is the catalog subset the settings handler needs.
type SettingsStore interface {
	GetSettingOrDefault(ctx context.Context, key, def string) string
	SetSetting(ctx context.Context, key, value string) error
}

var settingDefaults = map[string]string{
	domain.SettingMCPEnabled:           "true",
	domain.SettingMaxActiveDatabases:   "10",
	domain.SettingMaxActiveConnections: "5",
}

// SettingsHandler implements /api/settings/*.
type SettingsHandler struct {
	store  SettingsStore
	logger zerolog.Logger
}

// NewSettingsHandler builds the settings handler.
func NewSettingsHandler(store SettingsStore, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, logger: logger}
}

// List handles GET /api/settings.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(settingDefaults))
	for key, def := range settingDefaults {
		out[key] = h.store.GetSettingOrDefault(r.Context(), key, def)
	}
	WriteSuccess(w, out)
}

// Get handles GET /api/settings/:key.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	def, known := settingDefaults[key]
	if !known {
		WriteError(w, http.StatusNotFound, "unknown_setting", "unrecognized setting key")
		return
	}
	WriteSuccess(w, map[string]string{"key": key, "value": h.store.GetSettingOrDefault(r.Context(), key, def)})
}

type setSettingRequest struct {
	Value string `json:"value"`
}

// Set handles PUT /api/settings/:key.
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, known := settingDefaults[key]; !known {
		WriteError(w, http.StatusNotFound, "unknown_setting", "unrecognized setting key")
		return
	}

	var req setSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	if err := h.store.SetSetting(r.Context(), key, req.Value); err != nil {
		WriteError(w, http.StatusInternalServerError, "set_error", err.Error())
		return
	}
	WriteSuccess(w, map[string]string{"key": key, "value": req.Value})
}
