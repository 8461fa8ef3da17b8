package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRunsMigrationsAndIsHealthy(t *testing.T) {
	store := newTestStore(t)
	require.True(t, store.Health())
	require.True(t, store.Ready())
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, created, err := store.Bootstrap(ctx, "admin")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, result.AdminPassword)
	require.NotEmpty(t, result.DefaultAPIKeySecret)

	second, createdAgain, err := store.Bootstrap(ctx, "admin")
	require.NoError(t, err)
	require.False(t, createdAgain)
	require.Empty(t, second.AdminPassword)
	require.Empty(t, second.DefaultAPIKeySecret)

	key, err := store.VerifyApiKey(ctx, result.DefaultAPIKeySecret)
	require.NoError(t, err)
	require.Equal(t, "default", key.Name)

	user, err := store.VerifyUserPassword(ctx, "admin", result.AdminPassword)
	require.NoError(t, err)
	require.True(t, user.MustChangePassword)
}
