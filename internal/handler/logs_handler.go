package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/akz4ol/sqlgateway/internal/catalog"
	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/rs/zerolog"
)

// LogStore is the catalog subset the logs handler needs.
type LogStore interface {
	QueryLogs(ctx context.Context, filter domain.LogFilter, limit, offset int) (domain.LogPage, error)
	Stats(ctx context.Context, since time.Time) (catalog.LogStats, error)
}

// LogsHandler implements /api/logs/*.
type LogsHandler struct {
	store  LogStore
	logger zerolog.Logger
}

// NewLogsHandler builds the logs handler.
func NewLogsHandler(store LogStore, logger zerolog.Logger) *LogsHandler {
	return &LogsHandler{store: store, logger: logger}
}

// List handles GET /api/logs.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.LogFilter
	filter.Endpoint = q.Get("endpoint")
	if status := q.Get("status"); status != "" {
		if n, err := strconv.Atoi(status); err == nil {
			filter.Status = n
		}
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = &t
		}
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			offset = n
		}
	}

	page, err := h.store.QueryLogs(r.Context(), filter, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query_error", err.Error())
		return
	}
	WriteSuccess(w, page)
}

// Stats handles GET /api/logs/stats.
func (h *LogsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			since = t
		}
	}

	stats, err := h.store.Stats(r.Context(), since)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "stats_error", err.Error())
		return
	}
	WriteSuccess(w, stats)
}
