package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/akz4ol/sqlgateway/internal/domain"
)

// CreateUser registers a local account with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error) {
	u := domain.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
		Active:       true,
	}

	err := execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, username, password_hash, created_at, active, must_change_password)
			VALUES (?, ?, ?, ?, 1, 0)`,
			u.ID, u.Username, u.PasswordHash, u.CreatedAt,
		)
		if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUsername
		}
		return err
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("catalog: create user: %w", err)
	}
	return u, nil
}

// VerifyUserPassword looks up username and checks password against its
// stored hash, stamping last_login_at on success.
func (s *Store) VerifyUserPassword(ctx context.Context, username, password string) (domain.User, error) {
	var u domain.User
	var lastLogin *time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, last_login_at, active, must_change_password
		FROM users WHERE username = ? AND active = 1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastLogin, &u.Active, &u.MustChangePassword)
	if err != nil {
		return domain.User{}, fmt.Errorf("catalog: verify user: %w", mapErr(err))
	}
	u.LastLoginAt = lastLogin

	if err := crypto.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.User{}, err
	}

	_ = execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, time.Now().UTC(), u.ID)
		return err
	})

	return u, nil
}

// ChangeUserPassword overwrites a user's password hash and clears the
// must-change-password flag.
func (s *Store) ChangeUserPassword(ctx context.Context, userID, newPasswordHash string) error {
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, must_change_password = 0 WHERE id = ?`,
			newPasswordHash, userID,
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
		return fmt.Errorf("catalog: change password: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var lastLogin *time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, last_login_at, active, must_change_password
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastLogin, &u.Active, &u.MustChangePassword)
	if err != nil {
		return domain.User{}, fmt.Errorf("catalog: get user: %w", mapErr(err))
	}
	u.LastLoginAt = lastLogin
	return u, nil
}
