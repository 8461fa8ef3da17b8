package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/executor"
	"github.com/akz4ol/sqlgateway/internal/policy"
	"github.com/akz4ol/sqlgateway/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	databases   []domain.Database
	byAlias     map[string]domain.Database
	connections map[string]domain.Connection
	mcpSetting  string
}

func (f *fakeCatalog) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	return f.databases, nil
}

func (f *fakeCatalog) GetDatabaseByAlias(ctx context.Context, alias string) (domain.Database, error) {
	db, ok := f.byAlias[alias]
	if !ok {
		return domain.Database{}, errors.New("unknown alias")
	}
	return db, nil
}

func (f *fakeCatalog) GetConnection(ctx context.Context, id string) (domain.Connection, error) {
	conn, ok := f.connections[id]
	if !ok {
		return domain.Connection{ID: id}, nil
	}
	return conn, nil
}

func (f *fakeCatalog) GetSettingOrDefault(ctx context.Context, key, def string) string {
	if f.mcpSetting != "" {
		return f.mcpSetting
	}
	return def
}

type fakeExecutor struct {
	result Result
	err    error
}

func (f *fakeExecutor) Run(ctx context.Context, sessionID, dbAlias, sqlText string) (executor.Result, error) {
	return executor.Result(f.result), f.err
}

// Result aliases executor.Result to keep the fakes below short.
type Result = executor.Result

func newDispatcher(cat *fakeCatalog, sessions Sessions, exec Executor) *Dispatcher {
	return New(cat, sessions, exec, zerolog.Nop())
}

func newTestSessions(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(noopSettings{}, noopPoolCloser{}, zerolog.Nop(), 10, 5)
	t.Cleanup(m.Stop)
	return m
}

type noopSettings struct{}

func (noopSettings) GetSetting(ctx context.Context, key string) (string, error) { return "", errors.New("not found") }
func (noopSettings) SetSetting(ctx context.Context, key, value string) error    { return nil }

type noopPoolCloser struct{}

func (noopPoolCloser) ClosePool(string) {}

func callParams(t *testing.T, name string, args interface{}) json.RawMessage {
	t.Helper()
	argBytes, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(toolCallParams{Name: name, Arguments: argBytes})
	require.NoError(t, err)
	return params
}

func request(t *testing.T, method string, params json.RawMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: params})
	require.NoError(t, err)
	return raw
}

func TestHandleInitializeTransitionsToReady(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	resp := d.Handle(context.Background(), "sess-1", request(t, "initialize", nil))
	require.Nil(t, resp.Error)
	require.Equal(t, StageReady, d.stage("sess-1"))
}

func TestHandleToolsListReturnsThreeTools(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/list", nil))
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]map[string]interface{})
	require.Len(t, tools, 3)
}

func TestHandleUnknownMethodReturnsMethodNotFound(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	resp := d.Handle(context.Background(), "sess-1", request(t, "bogus", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleDisabledMCPBlocksEverythingButInitialize(t *testing.T) {
	cat := &fakeCatalog{mcpSetting: "false"}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/list", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMCPDisabled, resp.Error.Code)

	resp = d.Handle(context.Background(), "sess-1", request(t, "initialize", nil))
	require.Nil(t, resp.Error)
}

func TestToolsCallListDatabasesReportsActiveAndCurrentGroupedByConnection(t *testing.T) {
	cat := &fakeCatalog{
		databases: []domain.Database{
			{Alias: "orders", RealName: "orders_db", ConnectionID: "conn-1", Enabled: true,
				Permissions: domain.Permissions{Select: true}},
			{Alias: "billing", RealName: "billing_db", ConnectionID: "conn-1", Enabled: true},
			{Alias: "archive", RealName: "old", ConnectionID: "conn-1", Enabled: false},
		},
		connections: map[string]domain.Connection{
			"conn-1": {ID: "conn-1", Name: "primary"},
		},
	}
	sessions := newTestSessions(t)
	require.NoError(t, sessions.ActivateDatabase("sess-1", "orders", "conn-1"))
	require.NoError(t, sessions.SetCurrentDatabase(context.Background(), "sess-1", "orders"))

	d := newDispatcher(cat, sessions, &fakeExecutor{})
	params := callParams(t, "list_databases", map[string]interface{}{})

	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	require.Len(t, content, 1)

	var groups []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &groups))
	require.Len(t, groups, 1)
	require.Equal(t, "primary", groups[0]["connectionName"])

	dbs := groups[0]["databases"].([]interface{})
	require.Len(t, dbs, 2) // the disabled "archive" database is invisible

	orders := dbs[0].(map[string]interface{})
	require.Equal(t, "orders", orders["alias"])
	require.Equal(t, "orders_db", orders["realName"])
	require.Equal(t, "primary", orders["connectionName"])
	require.Equal(t, true, orders["isActive"])
	require.Equal(t, true, orders["isCurrent"])
	perms := orders["permissions"].(map[string]interface{})
	require.Equal(t, true, perms["select"])

	billing := dbs[1].(map[string]interface{})
	require.Equal(t, false, billing["isActive"])
}

func TestToolsCallSwitchDatabaseRejectsUnknownAlias(t *testing.T) {
	cat := &fakeCatalog{byAlias: map[string]domain.Database{}}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	params := callParams(t, "switch_database", map[string]interface{}{"alias": "ghost"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestToolsCallSwitchDatabaseRejectsDisabled(t *testing.T) {
	cat := &fakeCatalog{byAlias: map[string]domain.Database{
		"orders": {Alias: "orders", Enabled: false},
	}}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	params := callParams(t, "switch_database", map[string]interface{}{"alias": "orders"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestToolsCallSwitchDatabaseActivatesAndSetsCurrent(t *testing.T) {
	cat := &fakeCatalog{
		byAlias: map[string]domain.Database{
			"orders": {Alias: "orders", RealName: "orders_db", Enabled: true, ConnectionID: "conn-1",
				Permissions: domain.Permissions{Select: true}},
		},
		connections: map[string]domain.Connection{
			"conn-1": {ID: "conn-1", Name: "primary"},
		},
	}
	sessions := newTestSessions(t)
	d := newDispatcher(cat, sessions, &fakeExecutor{})

	params := callParams(t, "switch_database", map[string]interface{}{"alias": "orders"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))
	require.Nil(t, resp.Error)

	current, err := sessions.CurrentDatabase("sess-1")
	require.NoError(t, err)
	require.Equal(t, "orders", current)

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &body))
	require.Equal(t, "orders", body["alias"])
	require.Equal(t, "orders_db", body["realName"])
	require.Equal(t, "primary", body["connectionName"])
	perms := body["permissions"].(map[string]interface{})
	require.Equal(t, true, perms["select"])
}

func TestToolsCallMysqlQueryRequiresSQL(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	params := callParams(t, "mysql_query", map[string]interface{}{"database": "orders"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestToolsCallMysqlQueryMapsNoCurrentDatabaseToInvalidParams(t *testing.T) {
	cat := &fakeCatalog{}
	exec := &fakeExecutor{err: session.ErrNoCurrentDatabase}
	d := newDispatcher(cat, newTestSessions(t), exec)

	params := callParams(t, "mysql_query", map[string]interface{}{"sql": "SELECT 1"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestToolsCallMysqlQueryMapsPermissionDeniedToInvalidParams(t *testing.T) {
	cat := &fakeCatalog{}
	exec := &fakeExecutor{err: executor.ErrPermissionDenied}
	d := newDispatcher(cat, newTestSessions(t), exec)

	params := callParams(t, "mysql_query", map[string]interface{}{"sql": "DELETE FROM orders"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestToolsCallMysqlQueryReturnsReadResult(t *testing.T) {
	cat := &fakeCatalog{}
	exec := &fakeExecutor{result: Result{
		Kind:     policy.OpSelect,
		Columns:  []string{"id"},
		Rows:     []map[string]any{{"id": 1}},
		RowCount: 1,
	}}
	d := newDispatcher(cat, newTestSessions(t), exec)

	params := callParams(t, "mysql_query", map[string]interface{}{"sql": "SELECT 1"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &body))
	require.Equal(t, float64(1), body["rowCount"])
}

func TestToolsCallMysqlQueryReturnsWriteResult(t *testing.T) {
	cat := &fakeCatalog{}
	exec := &fakeExecutor{result: Result{
		Kind:         policy.OpInsert,
		RowsAffected: 3,
		LastInsertID: 42,
	}}
	d := newDispatcher(cat, newTestSessions(t), exec)

	params := callParams(t, "mysql_query", map[string]interface{}{"sql": "INSERT INTO orders VALUES (1)"})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &body))
	rows := body["rows"].([]interface{})
	row := rows[0].(map[string]interface{})
	require.Equal(t, float64(3), row["affectedRows"])
	require.Equal(t, float64(42), row["insertId"])
}

func TestHandleToolsCallUnknownToolIsInvalidParams(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	params := callParams(t, "not_a_tool", map[string]interface{}{})
	resp := d.Handle(context.Background(), "sess-1", request(t, "tools/call", params))

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHandleInvalidJSONIsParseError(t *testing.T) {
	cat := &fakeCatalog{}
	d := newDispatcher(cat, newTestSessions(t), &fakeExecutor{})

	resp := d.Handle(context.Background(), "sess-1", []byte("not json"))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}
