// Package executor runs classified SQL statements against the correct
// tenant database, enforcing the policy decision and shaping read vs
// write results for the tool dispatcher and REST query endpoint.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/policy"
	"github.com/akz4ol/sqlgateway/internal/pool"
	"github.com/akz4ol/sqlgateway/internal/session"
)

var (
	// ErrPermissionDenied is returned when the active database's
	// permission mask forbids the classified operation.
	ErrPermissionDenied = errors.New("executor: permission denied")
	// ErrQuery wraps any error returned by the underlying MySQL driver.
	ErrQuery = errors.New("executor: query failed")
	// ErrDatabaseDisabled is returned when the resolved database has been
	// administratively disabled.
	ErrDatabaseDisabled = errors.New("executor: database is disabled")
)

// Catalog is the subset of catalog.Store the executor depends on.
type Catalog interface {
	GetDatabaseByAlias(ctx context.Context, alias string) (domain.Database, error)
	GetConnection(ctx context.Context, id string) (domain.Connection, error)
	TouchDatabase(ctx context.Context, alias string) error
}

// Decrypter recovers a connection's plaintext password for dialing.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Result is the shaped outcome of running one SQL statement.
type Result struct {
	Kind         policy.OperationKind
	Columns      []string          `json:"columns,omitempty"`
	Rows         []map[string]any  `json:"rows,omitempty"`
	RowCount     int               `json:"rowCount"`
	RowsAffected int64             `json:"rowsAffected,omitempty"`
	LastInsertID int64             `json:"lastInsertId,omitempty"`
}

// Executor wires the policy, pool, and session layers into one query path.
type Executor struct {
	catalog   Catalog
	pools     *pool.Manager
	sessions  *session.Manager
	decrypter Decrypter
}

// New builds an Executor.
func New(cat Catalog, pools *pool.Manager, sessions *session.Manager, decrypter Decrypter) *Executor {
	return &Executor{catalog: cat, pools: pools, sessions: sessions, decrypter: decrypter}
}

// Run resolves sessionID's current database (or dbAlias if explicitly
// given), classifies sql, checks permissions, and executes it.
func (e *Executor) Run(ctx context.Context, sessionID, dbAlias, sqlText string) (Result, error) {
	alias := dbAlias
	if alias == "" {
		var err error
		alias, err = e.sessions.CurrentDatabase(sessionID)
		if err != nil {
			return Result{}, err
		}
	}

	db, err := e.catalog.GetDatabaseByAlias(ctx, alias)
	if err != nil {
		return Result{}, fmt.Errorf("executor: resolve database %q: %w", alias, err)
	}
	if !db.Enabled {
		return Result{}, ErrDatabaseDisabled
	}

	kind := policy.Classify(sqlText)
	if allowed, reason := policy.Allow(kind, db.Permissions, db.Alias); !allowed {
		return Result{}, fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
	}

	// An explicit database argument behaves as SetCurrentDatabase(alias)
	// followed by Execute: it activates the database and becomes current
	// for subsequent calls that omit the argument.
	if dbAlias != "" {
		if err := e.sessions.ActivateDatabase(sessionID, db.Alias, db.ConnectionID); err != nil {
			return Result{}, fmt.Errorf("executor: activate database %q: %w", db.Alias, err)
		}
		if err := e.sessions.SetCurrentDatabase(ctx, sessionID, db.Alias); err != nil {
			return Result{}, fmt.Errorf("executor: set current database %q: %w", db.Alias, err)
		}
	}

	conn, err := e.catalog.GetConnection(ctx, db.ConnectionID)
	if err != nil {
		return Result{}, fmt.Errorf("executor: resolve connection: %w", err)
	}
	password, err := e.decrypter.Decrypt(conn.PasswordCiphertext)
	if err != nil {
		return Result{}, fmt.Errorf("executor: decrypt connection password: %w", err)
	}

	sqlDB, err := e.pools.Acquire(ctx, conn.ID, pool.Dialer{
		Host: conn.Host, Port: conn.Port, User: conn.User, Password: string(password),
	})
	if err != nil {
		return Result{}, fmt.Errorf("executor: acquire pool: %w", err)
	}

	result, err := e.execOnPool(ctx, sqlDB, db.RealName, kind, sqlText)
	if err != nil {
		return Result{}, err
	}

	_ = e.catalog.TouchDatabase(ctx, alias)
	return result, nil
}

func (e *Executor) execOnPool(ctx context.Context, sqlDB *sql.DB, realDBName string, kind policy.OperationKind, sqlText string) (Result, error) {
	txOpts := &sql.TxOptions{ReadOnly: kind.IsRead()}
	tx, err := sqlDB.BeginTx(ctx, txOpts)
	if err != nil {
		return Result{}, fmt.Errorf("%w: begin: %v", ErrQuery, err)
	}
	defer tx.Rollback()

	quoted := "`" + strings.ReplaceAll(realDBName, "`", "``") + "`"
	if _, err := tx.ExecContext(ctx, "USE "+quoted); err != nil {
		return Result{}, fmt.Errorf("%w: use database: %v", ErrQuery, err)
	}

	var result Result
	result.Kind = kind

	if kind.IsRead() {
		result, err = e.runRead(ctx, tx, sqlText)
	} else {
		result, err = e.runWrite(ctx, tx, sqlText)
	}
	if err != nil {
		return Result{}, err
	}
	result.Kind = kind

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("%w: commit: %v", ErrQuery, err)
	}
	return result, nil
}

func (e *Executor) runRead(ctx context.Context, tx *sql.Tx, sqlText string) (Result, error) {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("%w: columns: %v", ErrQuery, err)
	}

	var out []map[string]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("%w: scan: %v", ErrQuery, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	return Result{Columns: cols, Rows: out, RowCount: len(out)}, nil
}

func (e *Executor) runWrite(ctx context.Context, tx *sql.Tx, sqlText string) (Result, error) {
	res, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

// normalizeValue turns byte slices (MySQL's native text encoding for most
// scalar types) into strings so results marshal to readable JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
