package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
)

const maxAliasLength = 64

var (
	aliasSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	aliasGrammar   = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]{0,63}$`)
)

// isValidAlias reports whether alias matches the catalog's grammar: 1-64
// characters of [A-Za-z0-9_-], not starting with a digit.
func isValidAlias(alias string) bool {
	return aliasGrammar.MatchString(alias)
}

// aliasCandidate lowercases a real schema name into the alias grammar
// (letters, digits, underscore, hyphen; not starting with a digit; capped at
// 64 chars), collapsing runs of disallowed characters.
func aliasCandidate(realName string) string {
	cleaned := aliasSanitizer.ReplaceAllString(realName, "_")
	cleaned = strings.Trim(cleaned, "_-")
	cleaned = strings.ToLower(cleaned)
	if cleaned == "" {
		cleaned = "db"
	}
	if cleaned[0] >= '0' && cleaned[0] <= '9' {
		cleaned = "db_" + cleaned
	}
	if len(cleaned) > maxAliasLength {
		cleaned = strings.TrimRight(cleaned[:maxAliasLength], "_-")
		if cleaned == "" {
			cleaned = "db"
		}
	}
	return cleaned
}

// AddDiscoveredDatabases registers the schemas in realNames that are not yet
// registered under connID, generating a unique alias for each (colliding
// names get _2, _3, ... suffixes) and defaulting every permission except
// SELECT to false. It returns only the databases it added.
func (s *Store) AddDiscoveredDatabases(ctx context.Context, connID string, realNames []string) ([]domain.Database, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: add databases begin: %w", err)
	}
	defer tx.Rollback()

	existing := make(map[string]bool)
	known := make(map[string]bool) // real names already registered under connID
	rows, err := tx.QueryContext(ctx, `SELECT alias, connection_id, real_name FROM databases`)
	if err != nil {
		return nil, fmt.Errorf("catalog: add databases load aliases: %w", err)
	}
	for rows.Next() {
		var a, c, n string
		if err := rows.Scan(&a, &c, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: scan alias: %w", err)
		}
		existing[a] = true
		if c == connID {
			known[n] = true
		}
	}
	rows.Close()

	var created []domain.Database
	now := time.Now().UTC()
	for _, realName := range realNames {
		if known[realName] {
			continue
		}
		base := aliasCandidate(realName)
		alias := base
		for n := 2; existing[alias]; n++ {
			alias = fmt.Sprintf("%s_%d", base, n)
		}
		existing[alias] = true

		db := domain.Database{
			ID:           newID(),
			ConnectionID: connID,
			RealName:     realName,
			Alias:        alias,
			Enabled:      true,
			Permissions:  domain.Permissions{Select: true},
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO databases (id, connection_id, real_name, alias, enabled, last_accessed,
				perm_select, perm_insert, perm_update, perm_delete, perm_create, perm_alter, perm_drop, perm_truncate)
			VALUES (?, ?, ?, ?, 1, ?, 1, 0, 0, 0, 0, 0, 0, 0)`,
			db.ID, db.ConnectionID, db.RealName, db.Alias, now,
		); err != nil {
			return nil, fmt.Errorf("catalog: insert database %s: %w", realName, err)
		}
		created = append(created, db)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: add databases commit: %w", err)
	}
	return created, nil
}

func scanDatabase(scan func(dest ...any) error) (domain.Database, error) {
	var d domain.Database
	var lastAccessed *time.Time
	err := scan(&d.ID, &d.ConnectionID, &d.RealName, &d.Alias, &d.Enabled, &lastAccessed,
		&d.Permissions.Select, &d.Permissions.Insert, &d.Permissions.Update, &d.Permissions.Delete,
		&d.Permissions.Create, &d.Permissions.Alter, &d.Permissions.Drop, &d.Permissions.Truncate)
	if err != nil {
		return domain.Database{}, err
	}
	if lastAccessed != nil {
		d.LastAccessed = *lastAccessed
	}
	return d, nil
}

const databaseColumns = `id, connection_id, real_name, alias, enabled, last_accessed,
	perm_select, perm_insert, perm_update, perm_delete, perm_create, perm_alter, perm_drop, perm_truncate`

// ListDatabases returns every registered database, ordered by alias.
func (s *Store) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+databaseColumns+` FROM databases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list databases: %w", err)
	}
	defer rows.Close()

	var out []domain.Database
	for rows.Next() {
		d, err := scanDatabase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan database: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDatabaseByAlias fetches one database by its stable alias.
func (s *Store) GetDatabaseByAlias(ctx context.Context, alias string) (domain.Database, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+databaseColumns+` FROM databases WHERE alias = ?`, alias)
	d, err := scanDatabase(row.Scan)
	if err != nil {
		return domain.Database{}, fmt.Errorf("catalog: get database %q: %w", alias, mapErr(err))
	}
	return d, nil
}

// TouchDatabase updates a database's last-accessed timestamp.
func (s *Store) TouchDatabase(ctx context.Context, alias string) error {
	return execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE databases SET last_accessed = ? WHERE alias = ?`, time.Now().UTC(), alias)
		return err
	})
}

// SetDatabaseEnabled toggles whether a database may be activated in a
// session or process context.
func (s *Store) SetDatabaseEnabled(ctx context.Context, alias string, enabled bool) error {
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE databases SET enabled = ? WHERE alias = ?`, enabled, alias)
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
		return fmt.Errorf("catalog: set database enabled: %w", err)
	}
	return nil
}

// UpdatePermissions overwrites the permission mask for a database.
func (s *Store) UpdatePermissions(ctx context.Context, alias string, perms domain.Permissions) error {
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE databases SET perm_select = ?, perm_insert = ?, perm_update = ?, perm_delete = ?,
				perm_create = ?, perm_alter = ?, perm_drop = ?, perm_truncate = ?
			WHERE alias = ?`,
			perms.Select, perms.Insert, perms.Update, perms.Delete,
			perms.Create, perms.Alter, perms.Drop, perms.Truncate, alias,
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
		return fmt.Errorf("catalog: update permissions: %w", err)
	}
	return nil
}

// RenameAlias renames a database's alias, rejecting both malformed aliases
// and collisions with an existing one.
func (s *Store) RenameAlias(ctx context.Context, oldAlias, newAlias string) error {
	if !isValidAlias(newAlias) {
		return ErrAliasInvalid
	}

	err := execRetry(ctx, func() error {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM databases WHERE alias = ?`, newAlias).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return ErrAliasTaken
		}

		res, err := s.db.ExecContext(ctx, `UPDATE databases SET alias = ? WHERE alias = ?`, newAlias, oldAlias)
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
		return fmt.Errorf("catalog: rename alias: %w", err)
	}
	return nil
}
