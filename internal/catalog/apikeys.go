package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/crypto"
)

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func previewSecret(secret string) string {
	if len(secret) <= 16 {
		return secret
	}
	return secret[:8] + "…" + secret[len(secret)-8:]
}

// CreateApiKey mints a new bearer secret, persists its hash, and returns
// both the catalog record and the one-time plaintext secret.
func (s *Store) CreateApiKey(ctx context.Context, name string) (domain.APIKey, error) {
	secret, err := crypto.GenerateToken(32)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("catalog: generate api key secret: %w", err)
	}

	key := domain.APIKey{
		ID:        newID(),
		Name:      name,
		Secret:    secret,
		Preview:   previewSecret(secret),
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}

	err = execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO api_keys (id, name, secret_hash, preview, created_at, active)
			VALUES (?, ?, ?, ?, ?, 1)`,
			key.ID, key.Name, hashSecret(secret), key.Preview, key.CreatedAt,
		)
		return err
	})
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("catalog: create api key: %w", err)
	}
	return key, nil
}

// ListApiKeys returns every key with its redacted preview, never the secret.
func (s *Store) ListApiKeys(ctx context.Context) ([]domain.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, preview, created_at, last_used_at, active FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list api keys: %w", err)
	}
	defer rows.Close()

	var out []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var lastUsed *time.Time
		if err := rows.Scan(&k.ID, &k.Name, &k.Preview, &k.CreatedAt, &lastUsed, &k.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan api key: %w", err)
		}
		k.LastUsedAt = lastUsed
		out = append(out, k)
	}
	return out, rows.Err()
}

// VerifyApiKey checks a bearer secret against every active key's hash and,
// on success, stamps last_used_at for the matching key.
func (s *Store) VerifyApiKey(ctx context.Context, secret string) (domain.APIKey, error) {
	hash := hashSecret(secret)

	var k domain.APIKey
	var lastUsed *time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, preview, created_at, last_used_at, active
		FROM api_keys WHERE secret_hash = ? AND active = 1`, hash,
	).Scan(&k.ID, &k.Name, &k.Preview, &k.CreatedAt, &lastUsed, &k.Active)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("catalog: verify api key: %w", mapErr(err))
	}
	k.LastUsedAt = lastUsed

	_ = execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), k.ID)
		return err
	})

	return k, nil
}

// RevokeApiKey deactivates a key, refusing to leave the catalog with zero
// active keys.
func (s *Store) RevokeApiKey(ctx context.Context, id string) error {
	return s.guardLastActiveKey(ctx, id, `UPDATE api_keys SET active = 0 WHERE id = ?`)
}

// DeleteApiKey removes a key outright, with the same last-active-key guard
// as RevokeApiKey.
func (s *Store) DeleteApiKey(ctx context.Context, id string) error {
	return s.guardLastActiveKey(ctx, id, `DELETE FROM api_keys WHERE id = ?`)
}

func (s *Store) guardLastActiveKey(ctx context.Context, id, mutateStmt string) error {
	err := execRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var activeCount int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys WHERE active = 1`).Scan(&activeCount); err != nil {
			return err
		}

		var isActive bool
		if err := tx.QueryRowContext(ctx, `SELECT active FROM api_keys WHERE id = ?`, id).Scan(&isActive); err != nil {
			return mapErr(err)
		}
		if isActive && activeCount <= 1 {
			return ErrLastActiveKey
		}

		if _, err := tx.ExecContext(ctx, mutateStmt, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("catalog: remove api key: %w", err)
	}
	return nil
}
