package catalog

import (
	"context"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestConnectionCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn, err := store.CreateConnection(ctx, domain.Connection{
		Name: "prod", Host: "db.internal", Port: 3306, User: "app",
		PasswordCiphertext: []byte("ciphertext"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, conn.ID)

	fetched, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, "prod", fetched.Name)

	conn.Name = "prod-renamed"
	require.NoError(t, store.UpdateConnection(ctx, conn))

	updated, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, "prod-renamed", updated.Name)

	list, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteConnection(ctx, conn.ID))
	_, err = store.GetConnection(ctx, conn.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConnectionNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteConnection(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListConnectionPasswordCiphertextsAndRotationUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn, err := store.CreateConnection(ctx, domain.Connection{
		Name: "a", Host: "h", Port: 3306, User: "u", PasswordCiphertext: []byte("old"),
	})
	require.NoError(t, err)

	ciphertexts, err := store.ListConnectionPasswordCiphertexts(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("old"), ciphertexts[conn.ID])

	require.NoError(t, store.UpdateConnectionCiphertext(ctx, conn.ID, []byte("new")))

	fetched, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), fetched.PasswordCiphertext)
}
