package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sessionHeader = "mcp-session-id"

// SessionCloser lets the HTTP transport release per-session dispatcher and
// database-activation state on DELETE.
type SessionCloser interface {
	CloseSession(sessionID string)
}

// HTTPHandler exposes the dispatcher over a single HTTP endpoint: POST to
// send a JSON-RPC message, GET to open an SSE stream (unused by the three
// synchronous tools but kept for MCP client compatibility), DELETE to close
// the session.
type HTTPHandler struct {
	dispatcher Dispatcher
	closer     SessionCloser
	logger     zerolog.Logger
}

// NewHTTPHandler builds the /mcp HTTP transport handler.
func NewHTTPHandler(d Dispatcher, closer SessionCloser, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{dispatcher: d, closer: closer, logger: logger}
}

// ServeHTTP implements http.Handler for POST/GET/DELETE on the MCP endpoint.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleStream(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := h.dispatcher.Handle(r.Context(), sessionID, body)

	w.Header().Set(sessionHeader, sessionID)
	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("http transport: failed to encode response")
	}
}

// handleStream opens a long-lived SSE connection. The gateway's three tools
// are request/response only, so the stream sends a single ": connected"
// comment and then stays open, silent, until the client disconnects.
func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	<-r.Context().Done()
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID != "" {
		h.closer.CloseSession(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}
