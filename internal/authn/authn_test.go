package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	user domain.User
	err  error
}

func (f fakeUsers) GetUser(ctx context.Context, id string) (domain.User, error) {
	return f.user, f.err
}

type fakeKeys struct {
	key domain.APIKey
	err error
}

func (f fakeKeys) VerifyApiKey(ctx context.Context, secret string) (domain.APIKey, error) {
	return f.key, f.err
}

func TestAuthenticateViaCookieJWT(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	token, err := signer.Sign("user-1", "alice", time.Hour)
	require.NoError(t, err)

	auth := New(signer, fakeUsers{user: domain.User{ID: "user-1", Username: "alice", Active: true}}, fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)
	req.AddCookie(&http.Cookie{Name: CookieName(), Value: token})

	identity, clearCookie, err := auth.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, clearCookie)
	require.Equal(t, "user-1", identity.UserID)
	require.False(t, identity.IsAPIKey)
}

func TestAuthenticateInvalidCookieSignalsClear(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	auth := New(signer, fakeUsers{}, fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)
	req.AddCookie(&http.Cookie{Name: CookieName(), Value: "garbage"})

	_, clearCookie, err := auth.Authenticate(context.Background(), req)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.True(t, clearCookie)
}

func TestAuthenticateViaBearerJWT(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	token, err := signer.Sign("user-2", "bob", time.Hour)
	require.NoError(t, err)

	auth := New(signer, fakeUsers{user: domain.User{ID: "user-2", Username: "bob", Active: true}}, fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, _, err := auth.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "bob", identity.Username)
}

func TestAuthenticateViaBearerAPIKey(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	auth := New(signer, fakeUsers{}, fakeKeys{key: domain.APIKey{ID: "key-1", Name: "ci"}})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)
	req.Header.Set("Authorization", "Bearer gwk_some_secret")

	identity, _, err := auth.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, identity.IsAPIKey)
	require.Equal(t, "key-1", identity.APIKeyID)
}

func TestAuthenticateNoCredentials(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	auth := New(signer, fakeUsers{}, fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)

	_, clearCookie, err := auth.Authenticate(context.Background(), req)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.False(t, clearCookie)
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	signer := crypto.NewTokenSigner("secret")
	token, err := signer.Sign("user-3", "carol", time.Hour)
	require.NoError(t, err)

	auth := New(signer, fakeUsers{user: domain.User{ID: "user-3", Username: "carol", Active: false}}, fakeKeys{err: ErrUnauthenticated})

	req := httptest.NewRequest(http.MethodGet, "/api/databases", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, _, err = auth.Authenticate(context.Background(), req)
	require.ErrorIs(t, err, ErrUnauthenticated)
}
