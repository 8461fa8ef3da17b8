// Package authn resolves a request's identity from, in order: a session
// cookie JWT, a bearer JWT, or a bearer API key.
package authn

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/akz4ol/sqlgateway/internal/domain"
)

// ErrUnauthenticated is returned when none of the three credential sources
// resolves to a valid identity.
var ErrUnauthenticated = errors.New("authn: no valid credentials presented")

const sessionCookieName = "auth_token"

// UserLookup fetches a catalog user by ID for cookie/bearer-JWT auth.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// APIKeyVerifier validates a bearer API key secret.
type APIKeyVerifier interface {
	VerifyApiKey(ctx context.Context, secret string) (domain.APIKey, error)
}

// Authenticator implements the three-source authentication chain.
type Authenticator struct {
	signer *crypto.TokenSigner
	users  UserLookup
	keys   APIKeyVerifier
}

// New builds an Authenticator.
func New(signer *crypto.TokenSigner, users UserLookup, keys APIKeyVerifier) *Authenticator {
	return &Authenticator{signer: signer, users: users, keys: keys}
}

// Authenticate resolves r's identity, returning ErrUnauthenticated if none
// of the three sources succeeds. clearCookie is true when a cookie was
// present but invalid, signaling the caller should clear it in the response.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (identity domain.Identity, clearCookie bool, err error) {
	identity.IsLocalhost = isLocalhost(r.RemoteAddr)

	if cookie, cerr := r.Cookie(sessionCookieName); cerr == nil && cookie.Value != "" {
		id, aerr := a.fromJWT(ctx, cookie.Value)
		if aerr == nil {
			id.IsLocalhost = identity.IsLocalhost
			return id, false, nil
		}
		clearCookie = true
	}

	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
		if id, aerr := a.fromJWT(ctx, token); aerr == nil {
			id.IsLocalhost = identity.IsLocalhost
			return id, clearCookie, nil
		}

		key, aerr := a.keys.VerifyApiKey(ctx, token)
		if aerr == nil {
			return domain.Identity{
				APIKeyID:    key.ID,
				APIKeyName:  key.Name,
				IsAPIKey:    true,
				IsLocalhost: identity.IsLocalhost,
			}, clearCookie, nil
		}
	}

	return domain.Identity{}, clearCookie, ErrUnauthenticated
}

func (a *Authenticator) fromJWT(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := a.signer.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := a.users.GetUser(ctx, claims.UserID)
	if err != nil || !user.Active {
		return domain.Identity{}, ErrUnauthenticated
	}

	return domain.Identity{UserID: user.ID, Username: user.Username}, nil
}

// CookieName exposes the session cookie's name for handlers that must set
// or clear it directly.
func CookieName() string {
	return sessionCookieName
}

func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
