// Package dispatcher implements the JSON-RPC 2.0 tool surface shared by the
// stdio and HTTP transports: initialize, tools/list, and tools/call for the
// three tools list_databases, switch_database, and mysql_query.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/executor"
	"github.com/akz4ol/sqlgateway/internal/session"
	"github.com/rs/zerolog"
)

// Stage is a session's position in the MCP lifecycle.
type Stage int

const (
	StageNew Stage = iota
	StageInitializing
	StageReady
	StageClosed
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeMCPDisabled    = -32000
)

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Catalog is the subset of catalog.Store the dispatcher reads directly.
type Catalog interface {
	ListDatabases(ctx context.Context) ([]domain.Database, error)
	GetDatabaseByAlias(ctx context.Context, alias string) (domain.Database, error)
	GetConnection(ctx context.Context, id string) (domain.Connection, error)
	GetSettingOrDefault(ctx context.Context, key, def string) string
}

// Sessions is the subset of session.Manager the dispatcher needs.
type Sessions interface {
	ActivateDatabase(sessionID, alias, connectionID string) error
	SetCurrentDatabase(ctx context.Context, sessionID, alias string) error
	CurrentDatabase(sessionID string) (string, error)
	ActiveDatabases(sessionID string) []string
	CloseSession(sessionID string)
}

// Executor runs one SQL statement against the resolved database.
type Executor interface {
	Run(ctx context.Context, sessionID, dbAlias, sqlText string) (executor.Result, error)
}

// Dispatcher implements the MCP tool surface.
type Dispatcher struct {
	catalog  Catalog
	sessions Sessions
	exec     Executor
	logger   zerolog.Logger

	mu     sync.Mutex
	stages map[string]Stage
}

// New builds a Dispatcher.
func New(cat Catalog, sessions Sessions, exec Executor, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:  cat,
		sessions: sessions,
		exec:     exec,
		logger:   logger,
		stages:   make(map[string]Stage),
	}
}

func (d *Dispatcher) stage(sessionID string) Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stages[sessionID]
}

func (d *Dispatcher) setStage(sessionID string, s Stage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stages[sessionID] = s
}

// CloseSession transitions sessionID to Closed and releases its database
// activation state.
func (d *Dispatcher) CloseSession(sessionID string) {
	d.setStage(sessionID, StageClosed)
	d.sessions.CloseSession(sessionID)
}

// Handle processes one JSON-RPC request for sessionID and returns the
// response to send back (nil for notifications, which expect no reply).
func (d *Dispatcher) Handle(ctx context.Context, sessionID string, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, codeParseError, "invalid JSON-RPC payload")
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "malformed JSON-RPC request")
	}
	if len(req.ID) == 0 {
		return nil
	}

	enabled := d.catalog.GetSettingOrDefault(ctx, domain.SettingMCPEnabled, "true")
	if enabled == "false" && req.Method != "initialize" {
		return errorResponse(req.ID, codeMCPDisabled, "MCP tool surface is disabled")
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(sessionID, req)
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, sessionID, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (d *Dispatcher) handleInitialize(sessionID string, req Request) *Response {
	d.setStage(sessionID, StageReady)
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "sqlgateway", "version": "1.0.0"},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		},
	}
}

var toolDefinitions = []map[string]interface{}{
	{
		"name":        "list_databases",
		"description": "List enabled databases grouped by connection, with whether each is active and which is current",
		"inputSchema": map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	},
	{
		"name":        "switch_database",
		"description": "Make a database the current target for subsequent queries",
		"inputSchema": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"alias": map[string]interface{}{"type": "string"}},
			"required":   []string{"alias"},
		},
	},
	{
		"name":        "mysql_query",
		"description": "Run a SQL statement against a database, honoring its permission mask",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"database": map[string]interface{}{"type": "string"},
				"sql":      map[string]interface{}{"type": "string"},
			},
			"required": []string{"sql"},
		},
	},
}

func (d *Dispatcher) handleToolsList(req Request) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"tools": toolDefinitions}}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, sessionID string, req Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "malformed tool call params")
	}

	switch params.Name {
	case "list_databases":
		return d.callListDatabases(ctx, sessionID, req.ID)
	case "switch_database":
		return d.callSwitchDatabase(ctx, sessionID, req.ID, params.Arguments)
	case "mysql_query":
		return d.callMysqlQuery(ctx, sessionID, req.ID, params.Arguments)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
	}
}

// callListDatabases reports every enabled database, grouped by the
// connection it belongs to. Disabled databases are invisible to the tool
// surface entirely.
func (d *Dispatcher) callListDatabases(ctx context.Context, sessionID string, id json.RawMessage) *Response {
	dbs, err := d.catalog.ListDatabases(ctx)
	if err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}

	active := make(map[string]bool)
	for _, a := range d.sessions.ActiveDatabases(sessionID) {
		active[a] = true
	}
	current, _ := d.sessions.CurrentDatabase(sessionID)

	connNames := make(map[string]string)
	var connOrder []string
	grouped := make(map[string][]map[string]interface{})

	for _, db := range dbs {
		if !db.Enabled {
			continue
		}

		connName, ok := connNames[db.ConnectionID]
		if !ok {
			conn, err := d.catalog.GetConnection(ctx, db.ConnectionID)
			if err != nil {
				return errorResponse(id, codeInternalError, err.Error())
			}
			connName = conn.Name
			connNames[db.ConnectionID] = connName
			connOrder = append(connOrder, db.ConnectionID)
		}

		grouped[db.ConnectionID] = append(grouped[db.ConnectionID], map[string]interface{}{
			"alias":          db.Alias,
			"realName":       db.RealName,
			"connectionName": connName,
			"isActive":       active[db.Alias],
			"isCurrent":      db.Alias == current,
			"permissions":    permissionsMap(db.Permissions),
		})
	}

	out := make([]map[string]interface{}, 0, len(connOrder))
	for _, connID := range connOrder {
		out = append(out, map[string]interface{}{
			"connectionId":   connID,
			"connectionName": connNames[connID],
			"databases":      grouped[connID],
		})
	}
	return toolResult(id, out)
}

func (d *Dispatcher) callSwitchDatabase(ctx context.Context, sessionID string, id json.RawMessage, args json.RawMessage) *Response {
	var p struct {
		Alias string `json:"alias"`
	}
	if err := json.Unmarshal(args, &p); err != nil || p.Alias == "" {
		return errorResponse(id, codeInvalidParams, "switch_database requires an alias")
	}

	db, err := d.catalog.GetDatabaseByAlias(ctx, p.Alias)
	if err != nil {
		return errorResponse(id, codeInvalidParams, fmt.Sprintf("unknown database alias %q", p.Alias))
	}
	if !db.Enabled {
		return errorResponse(id, codeInvalidParams, fmt.Sprintf("database %q is disabled", p.Alias))
	}

	if err := d.sessions.ActivateDatabase(sessionID, db.Alias, db.ConnectionID); err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}
	if err := d.sessions.SetCurrentDatabase(ctx, sessionID, db.Alias); err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}

	conn, err := d.catalog.GetConnection(ctx, db.ConnectionID)
	if err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}

	return toolResult(id, map[string]interface{}{
		"alias":          db.Alias,
		"realName":       db.RealName,
		"connectionName": conn.Name,
		"permissions":    permissionsMap(db.Permissions),
	})
}

func permissionsMap(p domain.Permissions) map[string]bool {
	return map[string]bool{
		"select":   p.Select,
		"insert":   p.Insert,
		"update":   p.Update,
		"delete":   p.Delete,
		"create":   p.Create,
		"alter":    p.Alter,
		"drop":     p.Drop,
		"truncate": p.Truncate,
	}
}

func (d *Dispatcher) callMysqlQuery(ctx context.Context, sessionID string, id json.RawMessage, args json.RawMessage) *Response {
	var p struct {
		Database string `json:"database"`
		SQL      string `json:"sql"`
	}
	if err := json.Unmarshal(args, &p); err != nil || p.SQL == "" {
		return errorResponse(id, codeInvalidParams, "mysql_query requires sql")
	}

	result, err := d.exec.Run(ctx, sessionID, p.Database, p.SQL)
	if err != nil {
		code := codeInternalError
		if errors.Is(err, session.ErrNoCurrentDatabase) || errors.Is(err, executor.ErrPermissionDenied) {
			code = codeInvalidParams
		}
		return errorResponse(id, code, err.Error())
	}

	if result.Kind.IsRead() {
		return toolResult(id, map[string]interface{}{
			"rows":     result.Rows,
			"fields":   result.Columns,
			"rowCount": result.RowCount,
		})
	}
	return toolResult(id, map[string]interface{}{
		"rows": []map[string]interface{}{{
			"affectedRows": result.RowsAffected,
			"insertId":     result.LastInsertID,
			"changedRows":  result.RowsAffected,
		}},
		"fields":   []string{"affectedRows", "insertId", "changedRows"},
		"rowCount": result.RowsAffected,
	})
}

func toolResult(id json.RawMessage, content interface{}) *Response {
	encoded, _ := json.Marshal(content)
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(encoded)},
			},
		},
	}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}
