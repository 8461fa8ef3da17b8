// Package catalog implements the gateway's embedded transactional store:
// registered MySQL connections, the databases discovered under them,
// per-database permissions, local users, API keys, audit logs, and
// free-form settings. It is backed by a single SQLite file in WAL mode.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/akz4ol/sqlgateway/internal/crypto"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is the catalog's embedded persistence layer.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates or attaches to the SQLite catalog file at path, enables WAL
// mode and foreign keys, and runs any pending migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; a single conn avoids
	// "database is locked" errors surfacing from Go's own pool.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health reports whether the catalog file is reachable.
func (s *Store) Health() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

// Ready reports whether the catalog is ready to serve requests. For an
// embedded SQLite store, readiness and liveness are the same check.
func (s *Store) Ready() bool {
	return s.Health()
}

// execRetry runs fn, retrying with exponential backoff when SQLite reports
// the database as busy under write contention from concurrent goroutines.
func execRetry(ctx context.Context, fn func() error) error {
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + time.Duration(rand.Intn(5))*time.Millisecond):
		}
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

var migrations = []struct {
	version string
	stmt    string
}{
	{"0001_connections", `
		CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			user TEXT NOT NULL,
			password_ciphertext BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"0002_databases", `
		CREATE TABLE IF NOT EXISTS databases (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			real_name TEXT NOT NULL,
			alias TEXT NOT NULL UNIQUE,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_accessed DATETIME,
			perm_select INTEGER NOT NULL DEFAULT 1,
			perm_insert INTEGER NOT NULL DEFAULT 0,
			perm_update INTEGER NOT NULL DEFAULT 0,
			perm_delete INTEGER NOT NULL DEFAULT 0,
			perm_create INTEGER NOT NULL DEFAULT 0,
			perm_alter INTEGER NOT NULL DEFAULT 0,
			perm_drop INTEGER NOT NULL DEFAULT 0,
			perm_truncate INTEGER NOT NULL DEFAULT 0
		)`},
	{"0003_databases_connection_idx", `
		CREATE INDEX IF NOT EXISTS idx_databases_connection ON databases(connection_id)`},
	{"0004_users", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_login_at DATETIME,
			active INTEGER NOT NULL DEFAULT 1,
			must_change_password INTEGER NOT NULL DEFAULT 0
		)`},
	{"0005_api_keys", `
		CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			preview TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME,
			active INTEGER NOT NULL DEFAULT 1
		)`},
	{"0006_logs", `
		CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_key_id TEXT,
			user_id TEXT,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			request TEXT NOT NULL,
			response TEXT NOT NULL,
			status INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"0007_logs_created_idx", `
		CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)`},
	{"0008_settings", `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`},
}

// migrate applies every pending migration in order, recording each one in
// schema_migrations so reruns are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	ordered := make([]string, 0, len(migrations))
	for _, m := range migrations {
		ordered = append(ordered, m.version)
	}
	sort.Strings(ordered)

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.version, err)
		}
		s.logger.Info().Str("version", m.version).Msg("catalog migration applied")
	}

	return nil
}

// BootstrapResult carries the one-time plaintext credentials minted by a
// fresh Bootstrap call. Both fields are empty when Bootstrap finds an
// existing user and performs no work.
type BootstrapResult struct {
	AdminPassword       string
	DefaultAPIKeySecret string
}

// Bootstrap creates the initial admin user and a default API key in a
// single transaction, but only when the users table is empty. It is safe
// to call on every startup; the generated credentials are shown to the
// operator exactly once, at first-run time.
func (s *Store) Bootstrap(ctx context.Context, adminUsername string) (result BootstrapResult, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap begin: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap count users: %w", err)
	}
	if count > 0 {
		return BootstrapResult{}, false, nil
	}

	const adminPassword = "admin"
	adminPasswordHash, err := crypto.HashPassword(adminPassword)
	if err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap hash admin password: %w", err)
	}

	defaultKeySecret, err := crypto.GenerateToken(32)
	if err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap generate default key: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at, active, must_change_password) VALUES (?, ?, ?, ?, 1, 1)`,
		newID(), adminUsername, adminPasswordHash, now,
	); err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap insert admin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, secret_hash, preview, created_at, active) VALUES (?, ?, ?, ?, ?, 1)`,
		newID(), "default", hashSecret(defaultKeySecret), previewSecret(defaultKeySecret), now,
	); err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap insert default key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return BootstrapResult{}, false, fmt.Errorf("catalog: bootstrap commit: %w", err)
	}
	return BootstrapResult{AdminPassword: adminPassword, DefaultAPIKeySecret: defaultKeySecret}, true, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
