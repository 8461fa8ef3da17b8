package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/go-chi/chi/v5"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// ConnectionStore is the catalog subset the connections handler needs.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, conn domain.Connection) (domain.Connection, error)
	UpdateConnection(ctx context.Context, conn domain.Connection) error
	DeleteConnection(ctx context.Context, id string) error
	GetConnection(ctx context.Context, id string) (domain.Connection, error)
	ListConnections(ctx context.Context) ([]domain.Connection, error)
	AddDiscoveredDatabases(ctx context.Context, connID string, realNames []string) ([]domain.Database, error)
}

// Encrypter seals a connection password for storage.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// PoolInvalidator forces a connection's pool to be recreated after its
// credentials change.
type PoolInvalidator interface {
	RecreatePool(connID string)
}

// ConnectionsHandler implements /api/connections/*.
type ConnectionsHandler struct {
	store     ConnectionStore
	crypto    Encrypter
	pools     PoolInvalidator
	logger    zerolog.Logger
}

// NewConnectionsHandler builds the connections handler.
func NewConnectionsHandler(store ConnectionStore, enc Encrypter, pools PoolInvalidator, logger zerolog.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{store: store, crypto: enc, pools: pools, logger: logger}
}

type connectionRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type connectionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

func toConnectionResponse(c domain.Connection) connectionResponse {
	return connectionResponse{ID: c.ID, Name: c.Name, Host: c.Host, Port: c.Port, User: c.User, CreatedAt: c.CreatedAt}
}

// List handles GET /api/connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.store.ListConnections(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", err.Error())
		return
	}
	out := make([]connectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionResponse(c))
	}
	WriteSuccess(w, out)
}

// Get handles GET /api/connections/:id.
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "connection not found")
		return
	}
	WriteSuccess(w, toConnectionResponse(conn))
}

// Create handles POST /api/connections.
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	ciphertext, err := h.crypto.Encrypt([]byte(req.Password))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "encrypt_error", "failed to encrypt password")
		return
	}

	conn, err := h.store.CreateConnection(r.Context(), domain.Connection{
		Name: req.Name, Host: req.Host, Port: req.Port, User: req.User, PasswordCiphertext: ciphertext,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_error", err.Error())
		return
	}
	WriteSuccessStatus(w, http.StatusCreated, toConnectionResponse(conn))
}

// Update handles PUT /api/connections/:id.
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	ciphertext, err := h.crypto.Encrypt([]byte(req.Password))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "encrypt_error", "failed to encrypt password")
		return
	}

	if err := h.store.UpdateConnection(r.Context(), domain.Connection{
		ID: id, Name: req.Name, Host: req.Host, Port: req.Port, User: req.User, PasswordCiphertext: ciphertext,
	}); err != nil {
		WriteError(w, http.StatusInternalServerError, "update_error", err.Error())
		return
	}

	h.pools.RecreatePool(id)
	WriteSuccess(w, map[string]bool{"updated": true})
}

// Delete handles DELETE /api/connections/:id.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteConnection(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, "delete_error", err.Error())
		return
	}
	h.pools.RecreatePool(id)
	WriteSuccess(w, map[string]bool{"deleted": true})
}

// Test handles POST /api/connections/:id/test: dials the upstream MySQL
// server directly (bypassing the pool manager) to verify credentials.
func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "connection not found")
		return
	}

	password, err := h.crypto.Decrypt(conn.PasswordCiphertext)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "decrypt_error", "failed to decrypt stored password")
		return
	}

	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	cfg.User = conn.User
	cfg.Passwd = string(password)
	cfg.Timeout = 5 * time.Second

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		WriteSuccess(w, map[string]interface{}{"reachable": false, "error": err.Error()})
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		WriteSuccess(w, map[string]interface{}{"reachable": false, "error": err.Error()})
		return
	}
	WriteSuccess(w, map[string]interface{}{"reachable": true})
}

// Discover handles POST /api/connections/:id/discover: lists schemas on
// the upstream server and registers any not already in the catalog.
func (h *ConnectionsHandler) Discover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "connection not found")
		return
	}

	password, err := h.crypto.Decrypt(conn.PasswordCiphertext)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "decrypt_error", "failed to decrypt stored password")
		return
	}

	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	cfg.User = conn.User
	cfg.Passwd = string(password)
	cfg.Timeout = 5 * time.Second

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		WriteError(w, http.StatusBadGateway, "dial_error", err.Error())
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		WriteError(w, http.StatusBadGateway, "discover_error", err.Error())
		return
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			WriteError(w, http.StatusInternalServerError, "scan_error", err.Error())
			return
		}
		if isSystemSchema(name) {
			continue
		}
		names = append(names, name)
	}

	registered, err := h.store.AddDiscoveredDatabases(r.Context(), id, names)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "register_error", err.Error())
		return
	}

	WriteSuccess(w, registered)
}

func isSystemSchema(name string) bool {
	switch name {
	case "information_schema", "mysql", "performance_schema", "sys":
		return true
	default:
		return false
	}
}
