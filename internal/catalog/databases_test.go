package catalog

import (
	"context"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/stretchr/testify/require"
)

func createTestConnection(t *testing.T, store *Store) domain.Connection {
	t.Helper()
	conn, err := store.CreateConnection(context.Background(), domain.Connection{
		Name: "conn", Host: "h", Port: 3306, User: "u", PasswordCiphertext: []byte("ct"),
	})
	require.NoError(t, err)
	return conn
}

func TestAddDiscoveredDatabasesDedupesAliases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"orders", "orders"})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "orders", created[0].Alias)
	require.Equal(t, "orders_2", created[1].Alias)
	require.True(t, created[0].Permissions.Select)
	require.False(t, created[0].Permissions.Insert)
}

func TestAddDiscoveredDatabasesNormalizesLeadingDigitAndLength(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	longName := ""
	for i := 0; i < 100; i++ {
		longName += "a"
	}

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"2024_orders", longName})
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.True(t, isValidAlias(created[0].Alias), "alias %q must match the grammar", created[0].Alias)
	require.False(t, created[0].Alias[0] >= '0' && created[0].Alias[0] <= '9')

	require.True(t, isValidAlias(created[1].Alias), "alias %q must match the grammar", created[1].Alias)
	require.LessOrEqual(t, len(created[1].Alias), maxAliasLength)
}

func TestRenameAliasRejectsMalformedAlias(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"orders"})
	require.NoError(t, err)

	err = store.RenameAlias(ctx, created[0].Alias, "9starts-with-digit")
	require.ErrorIs(t, err, ErrAliasInvalid)

	err = store.RenameAlias(ctx, created[0].Alias, "has a space")
	require.ErrorIs(t, err, ErrAliasInvalid)
}

func TestGetDatabaseByAliasAndSetEnabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"billing"})
	require.NoError(t, err)
	alias := created[0].Alias

	db, err := store.GetDatabaseByAlias(ctx, alias)
	require.NoError(t, err)
	require.Equal(t, "billing", db.RealName)

	require.NoError(t, store.SetDatabaseEnabled(ctx, alias, false))
	db, err = store.GetDatabaseByAlias(ctx, alias)
	require.NoError(t, err)
	require.False(t, db.Enabled)
}

func TestSetDatabaseEnabledUnknownAlias(t *testing.T) {
	store := newTestStore(t)
	err := store.SetDatabaseEnabled(context.Background(), "ghost", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePermissions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"reports"})
	require.NoError(t, err)
	alias := created[0].Alias

	perms := domain.Permissions{Select: true, Insert: true, Update: true}
	require.NoError(t, store.UpdatePermissions(ctx, alias, perms))

	db, err := store.GetDatabaseByAlias(ctx, alias)
	require.NoError(t, err)
	require.Equal(t, perms, db.Permissions)
}

func TestRenameAliasRejectsCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"alpha", "beta"})
	require.NoError(t, err)

	err = store.RenameAlias(ctx, created[0].Alias, created[1].Alias)
	require.ErrorIs(t, err, ErrAliasTaken)

	require.NoError(t, store.RenameAlias(ctx, created[0].Alias, "alpha_renamed"))
	db, err := store.GetDatabaseByAlias(ctx, "alpha_renamed")
	require.NoError(t, err)
	require.Equal(t, "alpha", db.RealName)
}

func TestDeleteConnectionCascadesDatabases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conn := createTestConnection(t, store)

	created, err := store.AddDiscoveredDatabases(ctx, conn.ID, []string{"cascaded"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteConnection(ctx, conn.ID))

	_, err = store.GetDatabaseByAlias(ctx, created[0].Alias)
	require.ErrorIs(t, err, ErrNotFound)
}
