package catalog

import (
	"context"
	"fmt"
)

// GetSetting reads a free-form setting value, returning ErrNotFound when
// the key has never been set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("catalog: get setting %q: %w", key, mapErr(err))
	}
	return value, nil
}

// GetSettingOrDefault reads a setting, falling back to def when unset.
func (s *Store) GetSettingOrDefault(ctx context.Context, key, def string) string {
	v, err := s.GetSetting(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// SetSetting upserts a free-form setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	err := execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("catalog: set setting %q: %w", key, err)
	}
	return nil
}
