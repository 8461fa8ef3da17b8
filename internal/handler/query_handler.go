package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akz4ol/sqlgateway/internal/executor"
	"github.com/akz4ol/sqlgateway/internal/session"
	"github.com/rs/zerolog"
)

// QueryRunner is the subset of executor.Executor the query handler needs.
type QueryRunner interface {
	Run(ctx context.Context, sessionID, dbAlias, sqlText string) (executor.Result, error)
}

// QueryHandler implements POST /api/query: a synchronous REST path that
// exercises the same classify-and-enforce pipeline as the mysql_query tool.
type QueryHandler struct {
	exec   QueryRunner
	logger zerolog.Logger
}

// NewQueryHandler builds the query handler.
func NewQueryHandler(exec QueryRunner, logger zerolog.Logger) *QueryHandler {
	return &QueryHandler{exec: exec, logger: logger}
}

type queryRequest struct {
	Database string `json:"database"`
	SQL      string `json:"sql"`
}

// Run handles POST /api/query. The query runs in the session named by the
// mcp-session-id header when the caller sends one, and in the process-local
// context (sessionID "") otherwise.
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.SQL == "" {
		WriteError(w, http.StatusBadRequest, "missing_sql", "sql is required")
		return
	}

	sessionID := r.Header.Get("mcp-session-id")

	result, err := h.exec.Run(r.Context(), sessionID, req.Database, req.SQL)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoCurrentDatabase):
			WriteError(w, http.StatusBadRequest, "no_current_database", "no database is active; specify one or switch first")
		case errors.Is(err, executor.ErrPermissionDenied):
			WriteError(w, http.StatusForbidden, "permission_denied", err.Error())
		case errors.Is(err, executor.ErrDatabaseDisabled):
			WriteError(w, http.StatusForbidden, "database_disabled", err.Error())
		case errors.Is(err, executor.ErrQuery):
			WriteError(w, http.StatusBadGateway, "query_failed", err.Error())
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	WriteSuccess(w, result)
}
