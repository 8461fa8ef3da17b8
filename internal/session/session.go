// Package session tracks which databases are "active" (recently used, up to
// a cap) and which one is current, per execution context. In stdio mode there is a
// single process-wide context; in HTTP mode each client gets its own
// session keyed by an opaque ID, swept for inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNoCurrentDatabase is returned when an operation requires an active
// database but none has been selected in the caller's context.
var ErrNoCurrentDatabase = errors.New("session: no database is currently selected")

const sweepInterval = 10 * time.Minute
const idleTimeout = 30 * time.Minute

// SettingsStore is the subset of the catalog needed to persist the
// process-local current-database selection across restarts.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// PoolCloser lets the session manager release pools for databases evicted
// under the active-database cap.
type PoolCloser interface {
	ClosePool(connectionID string)
}

// aliasState tracks one active database alias: the connection it resolves
// to and when it was last touched, for LRU eviction.
type aliasState struct {
	connectionID string
	lastAccessed time.Time
}

type contextState struct {
	active   map[string]aliasState // alias -> state
	connRefs map[string]int        // connection id -> number of active aliases referencing it
	current  string
	lastUse  time.Time
}

func newContextState() *contextState {
	return &contextState{
		active:   make(map[string]aliasState),
		connRefs: make(map[string]int),
	}
}

// Manager is the dual-mode database activation tracker.
type Manager struct {
	mu        sync.Mutex
	processLocal *contextState // used when sessionID == ""
	sessions  map[string]*contextState
	settings  SettingsStore
	pools     PoolCloser
	logger    zerolog.Logger

	maxActiveDatabases   int
	maxActiveConnections int

	stopSweep chan struct{}
}

// NewManager constructs a session manager, priming the process-local
// context from any persisted currentDatabaseAlias setting.
func NewManager(settings SettingsStore, pools PoolCloser, logger zerolog.Logger, maxActiveDatabases, maxActiveConnections int) *Manager {
	if maxActiveDatabases <= 0 {
		maxActiveDatabases = domain.DefaultMaxActiveDatabases
	}
	if maxActiveConnections <= 0 {
		maxActiveConnections = domain.DefaultMaxActiveConnections
	}

	m := &Manager{
		processLocal:         newContextState(),
		sessions:             make(map[string]*contextState),
		settings:             settings,
		pools:                pools,
		logger:               logger,
		maxActiveDatabases:   maxActiveDatabases,
		maxActiveConnections: maxActiveConnections,
		stopSweep:            make(chan struct{}),
	}

	if alias, err := settings.GetSetting(context.Background(), domain.SettingCurrentDatabaseAlias); err == nil && alias != "" {
		m.processLocal.current = alias
		m.processLocal.active[alias] = aliasState{lastAccessed: time.Now()}
	}

	go m.sweepLoop()
	return m
}

// Stop halts the idle-session sweeper.
func (m *Manager) Stop() {
	close(m.stopSweep)
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for id, st := range m.sessions {
		if st.lastUse.Before(cutoff) {
			delete(m.sessions, id)
			m.logger.Debug().Str("session_id", id).Msg("session swept for inactivity")
		}
	}
}

func (m *Manager) stateFor(sessionID string) *contextState {
	if sessionID == "" {
		m.processLocal.lastUse = time.Now()
		return m.processLocal
	}
	st, ok := m.sessions[sessionID]
	if !ok {
		st = newContextState()
		m.sessions[sessionID] = st
	}
	st.lastUse = time.Now()
	return st
}

// ActivateDatabase marks alias (backed by connectionID) as active in
// sessionID's context, evicting the least-recently-activated database
// (alphabetically-first alias on a tie) when the cap is exceeded. The
// current database is never evicted. Activating pushes connectionID into
// the context's activeConnections set; if that now exceeds
// maxActiveConnections, pools for any connection id no longer referenced
// by an active database are closed.
func (m *Manager) ActivateDatabase(sessionID, alias, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateFor(sessionID)
	if existing, ok := st.active[alias]; ok {
		existing.lastAccessed = time.Now()
		st.active[alias] = existing
		return nil
	}

	if len(st.active) >= m.maxActiveDatabases {
		if victim, ok := m.lruVictim(st); ok {
			m.evictLocked(st, victim)
		} else {
			m.logger.Warn().Str("alias", alias).Msg("session: active-database cap reached but only the current database is active; skipping eviction")
		}
	}

	st.active[alias] = aliasState{connectionID: connectionID, lastAccessed: time.Now()}
	st.connRefs[connectionID]++

	m.enforceConnectionCapLocked(st)
	return nil
}

// evictLocked removes alias from st.active and drops its connection id from
// activeConnections (closing the pool) once no remaining active database
// references it. Caller must hold m.mu.
func (m *Manager) evictLocked(st *contextState, alias string) {
	info, ok := st.active[alias]
	if !ok {
		return
	}
	delete(st.active, alias)
	if info.connectionID == "" {
		return
	}
	st.connRefs[info.connectionID]--
	if st.connRefs[info.connectionID] <= 0 {
		delete(st.connRefs, info.connectionID)
		m.pools.ClosePool(info.connectionID)
	}
}

// enforceConnectionCapLocked closes pools for any connection id tracked in
// activeConnections that no active database references, until the set is
// back within maxActiveConnections. Caller must hold m.mu.
func (m *Manager) enforceConnectionCapLocked(st *contextState) {
	if len(st.connRefs) <= m.maxActiveConnections {
		return
	}

	referenced := make(map[string]bool, len(st.active))
	for _, info := range st.active {
		if info.connectionID != "" {
			referenced[info.connectionID] = true
		}
	}

	for connID := range st.connRefs {
		if len(st.connRefs) <= m.maxActiveConnections {
			break
		}
		if !referenced[connID] {
			delete(st.connRefs, connID)
			m.pools.ClosePool(connID)
		}
	}
}

// lruVictim picks the least-recently-activated alias, excluding the
// current database, breaking ties alphabetically.
func (m *Manager) lruVictim(st *contextState) (string, bool) {
	type candidate struct {
		alias string
		at    time.Time
	}
	var candidates []candidate
	for alias, info := range st.active {
		if alias == st.current {
			continue
		}
		candidates = append(candidates, candidate{alias, info.lastAccessed})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].at.Equal(candidates[j].at) {
			return candidates[i].alias < candidates[j].alias
		}
		return candidates[i].at.Before(candidates[j].at)
	})
	return candidates[0].alias, true
}

// DeactivateDatabase removes alias from sessionID's active set, dropping its
// connection id from activeConnections if no other active database in this
// context still uses it.
func (m *Manager) DeactivateDatabase(sessionID, alias string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(sessionID)
	if info, ok := st.active[alias]; ok {
		delete(st.active, alias)
		if info.connectionID != "" {
			st.connRefs[info.connectionID]--
			if st.connRefs[info.connectionID] <= 0 {
				delete(st.connRefs, info.connectionID)
			}
		}
	}
	if st.current == alias {
		st.current = ""
	}
}

// SetCurrentDatabase makes alias the current database for sessionID,
// persisting the selection only for the process-local (stdio) context.
func (m *Manager) SetCurrentDatabase(ctx context.Context, sessionID, alias string) error {
	m.mu.Lock()
	st := m.stateFor(sessionID)
	if existing, ok := st.active[alias]; ok {
		existing.lastAccessed = time.Now()
		st.active[alias] = existing
	} else {
		st.active[alias] = aliasState{lastAccessed: time.Now()}
	}
	st.current = alias
	isProcessLocal := sessionID == ""
	m.mu.Unlock()

	if isProcessLocal {
		if err := m.settings.SetSetting(ctx, domain.SettingCurrentDatabaseAlias, alias); err != nil {
			return fmt.Errorf("session: persist current database: %w", err)
		}
	}
	return nil
}

// CurrentDatabase returns the current database alias for sessionID.
func (m *Manager) CurrentDatabase(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(sessionID)
	if st.current == "" {
		return "", ErrNoCurrentDatabase
	}
	return st.current, nil
}

// ActiveDatabases lists every alias currently active in sessionID's context.
func (m *Manager) ActiveDatabases(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(sessionID)
	out := make([]string, 0, len(st.active))
	for alias := range st.active {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// CloseSession drops sessionID's context entirely, used on HTTP DELETE of
// an mcp-session-id.
func (m *Manager) CloseSession(sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
