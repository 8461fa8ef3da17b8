package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
)

// CreateConnection persists a new outbound MySQL connection. passwordCiphertext
// is produced by the crypto package before this call; the catalog never
// handles plaintext passwords.
func (s *Store) CreateConnection(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	conn.ID = newID()
	conn.CreatedAt = time.Now().UTC()

	err := execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO connections (id, name, host, port, user, password_ciphertext, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conn.ID, conn.Name, conn.Host, conn.Port, conn.User, conn.PasswordCiphertext, conn.CreatedAt,
		)
		return err
	})
	if err != nil {
		return domain.Connection{}, fmt.Errorf("catalog: create connection: %w", err)
	}
	return conn, nil
}

// UpdateConnection overwrites a connection's mutable fields by ID.
func (s *Store) UpdateConnection(ctx context.Context, conn domain.Connection) error {
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE connections SET name = ?, host = ?, port = ?, user = ?, password_ciphertext = ?
			WHERE id = ?`,
			conn.Name, conn.Host, conn.Port, conn.User, conn.PasswordCiphertext, conn.ID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: update connection: %w", err)
	}
	return nil
}

// DeleteConnection removes a connection and cascades to every database
// registered under it (enforced by the databases.connection_id foreign key).
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: delete connection: %w", err)
	}
	return nil
}

// GetConnection fetches a connection by ID.
func (s *Store) GetConnection(ctx context.Context, id string) (domain.Connection, error) {
	var c domain.Connection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, host, port, user, password_ciphertext, created_at
		FROM connections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.User, &c.PasswordCiphertext, &c.CreatedAt)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("catalog: get connection: %w", mapErr(err))
	}
	return c, nil
}

// ListConnections returns every registered connection, ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, host, port, user, password_ciphertext, created_at
		FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.User, &c.PasswordCiphertext, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListConnectionPasswordCiphertexts returns every connection's ciphertext,
// keyed by connection ID, for use during master-key rotation.
func (s *Store) ListConnectionPasswordCiphertexts(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, password_ciphertext FROM connections`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list ciphertexts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var ct []byte
		if err := rows.Scan(&id, &ct); err != nil {
			return nil, fmt.Errorf("catalog: scan ciphertext: %w", err)
		}
		out[id] = ct
	}
	return out, rows.Err()
}

// UpdateConnectionCiphertext overwrites only the encrypted password for a
// connection, used by master-key rotation.
func (s *Store) UpdateConnectionCiphertext(ctx context.Context, id string, ciphertext []byte) error {
	return execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE connections SET password_ciphertext = ? WHERE id = ?`, ciphertext, id)
		return err
	})
}
