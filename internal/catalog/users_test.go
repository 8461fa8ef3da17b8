package catalog

import (
	"context"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/stretchr/testify/require"
)

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, err := crypto.HashPassword("s3cret!")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "alice", hash)
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "alice", hash)
	require.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestVerifyUserPasswordAndChangePassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, err := crypto.HashPassword("first-password")
	require.NoError(t, err)
	user, err := store.CreateUser(ctx, "bob", hash)
	require.NoError(t, err)

	_, err = store.VerifyUserPassword(ctx, "bob", "wrong-password")
	require.Error(t, err)

	verified, err := store.VerifyUserPassword(ctx, "bob", "first-password")
	require.NoError(t, err)
	require.Equal(t, user.ID, verified.ID)

	newHash, err := crypto.HashPassword("second-password")
	require.NoError(t, err)
	require.NoError(t, store.ChangeUserPassword(ctx, user.ID, newHash))

	_, err = store.VerifyUserPassword(ctx, "bob", "first-password")
	require.Error(t, err)
	_, err = store.VerifyUserPassword(ctx, "bob", "second-password")
	require.NoError(t, err)
}
