// Package pool manages one outbound MySQL connection pool per registered
// catalog connection. Pools are created lazily on first use and evicted
// under the session manager's LRU policy.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// ErrConnectionRefused is returned when a newly dialed pool fails its probe
// ping, meaning the upstream MySQL server rejected or could not be reached.
var ErrConnectionRefused = errors.New("pool: upstream connection refused")

// Manager owns a *sql.DB per catalog connection ID, keyed by connection ID,
// and dials lazily: a pool is only created (and probed) when first acquired.
type Manager struct {
	mu     sync.Mutex
	pools  map[string]*sql.DB
	logger zerolog.Logger
}

// NewManager constructs an empty pool manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		pools:  make(map[string]*sql.DB),
		logger: logger,
	}
}

// Dialer describes how to reach a registered MySQL server, decoupling the
// pool manager from the catalog's encrypted-at-rest storage.
type Dialer struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (d Dialer) dsn() string {
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.ParseTime = true
	cfg.Timeout = 5 * time.Second
	return cfg.FormatDSN()
}

// Acquire returns the pool for connID, creating and probing it on first use.
// A failed probe leaves no pool entry behind so the next call retries cleanly.
func (m *Manager) Acquire(ctx context.Context, connID string, dial Dialer) (*sql.DB, error) {
	m.mu.Lock()
	if db, ok := m.pools[connID]; ok {
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	db, err := sql.Open("mysql", dial.dsn())
	if err != nil {
		return nil, fmt.Errorf("pool: open %s: %w", connID, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(probeCtx); err != nil {
		db.Close()
		m.logger.Warn().Str("connection_id", connID).Err(err).Msg("pool probe failed")
		return nil, fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}

	m.mu.Lock()
	if existing, ok := m.pools[connID]; ok {
		m.mu.Unlock()
		db.Close()
		return existing, nil
	}
	m.pools[connID] = db
	m.mu.Unlock()

	m.logger.Info().Str("connection_id", connID).Msg("pool created")
	return db, nil
}

// RecreatePool closes and drops any existing pool for connID, forcing the
// next Acquire to dial and probe a fresh connection. Used after a
// connection's credentials change.
func (m *Manager) RecreatePool(connID string) {
	m.mu.Lock()
	db, ok := m.pools[connID]
	delete(m.pools, connID)
	m.mu.Unlock()

	if ok {
		db.Close()
	}
}

// ClosePool closes and removes the pool for connID if present, used when
// the session manager evicts an unreferenced database.
func (m *Manager) ClosePool(connID string) {
	m.RecreatePool(connID)
}

// CloseAll closes every open pool, used during graceful shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*sql.DB)
	m.mu.Unlock()

	for id, db := range pools {
		if err := db.Close(); err != nil {
			m.logger.Warn().Str("connection_id", id).Err(err).Msg("error closing pool")
		}
	}
}

// Open reports how many pools are currently live, for health/metrics use.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}
