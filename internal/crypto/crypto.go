// Package crypto provides password-at-rest encryption, token generation,
// password hashing, and JWT signing for the gateway.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

var (
	// ErrCryptoTamper is returned when ciphertext fails AEAD authentication,
	// meaning it was corrupted or encrypted under a different key.
	ErrCryptoTamper = errors.New("crypto: ciphertext authentication failed")
	// ErrBadCredentials is returned when a password does not match its hash.
	ErrBadCredentials = errors.New("crypto: invalid credentials")
	// ErrTokenInvalid is returned when a JWT fails signature or claim validation.
	ErrTokenInvalid = errors.New("crypto: invalid token")
)

const (
	keySize   = 32 // 256-bit AES key
	nonceSize = 12 // 96-bit GCM nonce

	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 2
	argonKeyLen  = 32
	saltSize     = 16
)

// MasterKey wraps a 256-bit AEAD key used to encrypt connection passwords
// at rest. It is generated once and persisted to a file with 0600 perms.
type MasterKey struct {
	key [keySize]byte
}

// NewMasterKey loads the master key from path, generating and persisting a
// fresh one if the file does not exist.
func NewMasterKey(path string) (*MasterKey, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return generateMasterKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: read master key: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil || len(decoded) != keySize {
		return nil, fmt.Errorf("crypto: master key file %s is malformed", path)
	}

	mk := &MasterKey{}
	copy(mk.key[:], decoded)
	return mk, nil
}

func generateMasterKey(path string) (*MasterKey, error) {
	mk := &MasterKey{}
	if _, err := io.ReadFull(cryptorand.Reader, mk.key[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("crypto: create master key dir: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(mk.key[:])
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("crypto: persist master key: %w", err)
	}

	return mk, nil
}

// RotateMasterKey generates a fresh master key, decrypts every entry of
// ciphertexts with old and re-seals it under the new key, then persists the
// new key to path only once re-encryption succeeds.
func RotateMasterKey(path string, old *MasterKey, ciphertexts [][]byte) (*MasterKey, [][]byte, error) {
	next := &MasterKey{}
	if _, err := io.ReadFull(cryptorand.Reader, next.key[:]); err != nil {
		return nil, nil, fmt.Errorf("crypto: generate rotated key: %w", err)
	}

	reencrypted := make([][]byte, len(ciphertexts))
	for i, ct := range ciphertexts {
		plain, err := old.Decrypt(ct)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: rotate: decrypt entry %d: %w", i, err)
		}
		newCt, err := next.Encrypt(plain)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: rotate: encrypt entry %d: %w", i, err)
		}
		reencrypted[i] = newCt
	}

	encoded := base64.StdEncoding.EncodeToString(next.key[:])
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, nil, fmt.Errorf("crypto: persist rotated master key: %w", err)
	}

	return next, reencrypted, nil
}

// Encrypt seals plaintext with AES-256-GCM, returning nonce||ciphertext||tag.
func (mk *MasterKey) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(mk.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(cryptorand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A corrupt ciphertext or one
// sealed under a different key returns ErrCryptoTamper.
func (mk *MasterKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrCryptoTamper
	}

	block, err := aes.NewCipher(mk.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCryptoTamper
	}
	return plain, nil
}

// GenerateToken returns a CSPRNG-sourced, URL-safe token of at least n bytes
// of entropy, suitable for API keys and session identifiers.
func GenerateToken(n int) (string, error) {
	if n < 32 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(cryptorand.Reader, buf); err != nil {
		return "", fmt.Errorf("crypto: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ConstantTimeEqual compares two strings without leaking timing information.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashPassword derives a memory-hard argon2id hash for storage, encoding the
// salt and parameters alongside the digest.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(cryptorand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// VerifyPassword checks a plaintext password against a hash produced by
// HashPassword, returning ErrBadCredentials on mismatch.
func VerifyPassword(password, encoded string) error {
	parts := splitHash(encoded)
	if len(parts) != 6 || parts[0] != "argon2id" {
		return fmt.Errorf("crypto: malformed password hash")
	}

	var memory, opsTime uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[1], "%d", &memory); err != nil {
		return fmt.Errorf("crypto: malformed password hash: %w", err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &opsTime); err != nil {
		return fmt.Errorf("crypto: malformed password hash: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads); err != nil {
		return fmt.Errorf("crypto: malformed password hash: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("crypto: decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("crypto: decode digest: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, opsTime, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrBadCredentials
	}
	return nil
}

func splitHash(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '$' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies session JWTs with an HMAC secret.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner builds a signer from a configured secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Sign issues a JWT for userID/username that expires after ttl.
func (s *TokenSigner) Sign(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("crypto: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a JWT, returning its claims.
func (s *TokenSigner) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
