package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errSettingNotFound = errors.New("setting not found")

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) GetSetting(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", errSettingNotFound
	}
	return v, nil
}

func (f *fakeSettings) SetSetting(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

type fakePoolCloser struct {
	mu     sync.Mutex
	closed []string
}

func (f *fakePoolCloser) ClosePool(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connectionID)
}

func newTestManager(t *testing.T, maxDatabases, maxConnections int) (*Manager, *fakeSettings, *fakePoolCloser) {
	t.Helper()
	settings := newFakeSettings()
	pools := &fakePoolCloser{}
	m := NewManager(settings, pools, zerolog.Nop(), maxDatabases, maxConnections)
	t.Cleanup(m.Stop)
	return m, settings, pools
}

func TestCurrentDatabaseRoundTripProcessLocal(t *testing.T) {
	m, settings, _ := newTestManager(t, 10, 5)
	ctx := context.Background()

	_, err := m.CurrentDatabase("")
	require.ErrorIs(t, err, ErrNoCurrentDatabase)

	require.NoError(t, m.SetCurrentDatabase(ctx, "", "orders"))

	current, err := m.CurrentDatabase("")
	require.NoError(t, err)
	require.Equal(t, "orders", current)

	persisted, err := settings.GetSetting(ctx, domain.SettingCurrentDatabaseAlias)
	require.NoError(t, err)
	require.Equal(t, "orders", persisted)
}

func TestHTTPSessionCurrentDatabaseIsNotPersisted(t *testing.T) {
	m, settings, _ := newTestManager(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, m.SetCurrentDatabase(ctx, "session-1", "billing"))

	current, err := m.CurrentDatabase("session-1")
	require.NoError(t, err)
	require.Equal(t, "billing", current)

	_, err = settings.GetSetting(ctx, domain.SettingCurrentDatabaseAlias)
	require.Error(t, err)

	_, err = m.CurrentDatabase("")
	require.ErrorIs(t, err, ErrNoCurrentDatabase)
}

func TestActivateDatabaseEvictsLRUWhenOverCap(t *testing.T) {
	m, _, pools := newTestManager(t, 2, 5)

	require.NoError(t, m.ActivateDatabase("", "a", "conn-a"))
	require.NoError(t, m.ActivateDatabase("", "b", "conn-b"))
	require.NoError(t, m.ActivateDatabase("", "c", "conn-c"))

	active := m.ActiveDatabases("")
	require.Len(t, active, 2)
	require.NotContains(t, active, "a")
	require.Contains(t, pools.closed, "conn-a")
}

func TestActivateDatabaseNeverEvictsCurrent(t *testing.T) {
	m, _, _ := newTestManager(t, 1, 5)
	ctx := context.Background()

	require.NoError(t, m.SetCurrentDatabase(ctx, "", "primary"))
	require.NoError(t, m.ActivateDatabase("", "secondary", "conn-b"))

	current, err := m.CurrentDatabase("")
	require.NoError(t, err)
	require.Equal(t, "primary", current)
}

func TestActivateDatabaseSharingAConnectionDoesNotDoubleCount(t *testing.T) {
	m, _, pools := newTestManager(t, 10, 1)

	require.NoError(t, m.ActivateDatabase("", "a", "conn-1"))
	require.NoError(t, m.ActivateDatabase("", "b", "conn-1"))

	require.Empty(t, pools.closed)
	require.ElementsMatch(t, []string{"a", "b"}, m.ActiveDatabases(""))
}

func TestActivateDatabaseEvictionKeepsSharedConnectionOpenWhileStillReferenced(t *testing.T) {
	m, _, pools := newTestManager(t, 2, 5)

	require.NoError(t, m.ActivateDatabase("", "a", "conn-1"))
	require.NoError(t, m.ActivateDatabase("", "b", "conn-1"))
	require.NoError(t, m.ActivateDatabase("", "c", "conn-2"))

	active := m.ActiveDatabases("")
	require.NotContains(t, active, "a")
	require.Contains(t, active, "b")
	require.NotContains(t, pools.closed, "conn-1")
}

func TestDeactivateDatabaseClearsCurrent(t *testing.T) {
	m, _, _ := newTestManager(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, m.SetCurrentDatabase(ctx, "", "orders"))
	m.DeactivateDatabase("", "orders")

	_, err := m.CurrentDatabase("")
	require.ErrorIs(t, err, ErrNoCurrentDatabase)
}

func TestCloseSessionDropsContext(t *testing.T) {
	m, _, _ := newTestManager(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, m.SetCurrentDatabase(ctx, "session-1", "orders"))
	m.CloseSession("session-1")

	_, err := m.CurrentDatabase("session-1")
	require.ErrorIs(t, err, ErrNoCurrentDatabase)
}
