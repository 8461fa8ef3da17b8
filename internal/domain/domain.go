// Package domain holds the catalog's core record types.
package domain

import "time"

// Connection is a registered outbound MySQL server.
type Connection struct {
	ID                string
	Name              string
	Host              string
	Port              int
	User              string
	PasswordCiphertext []byte
	CreatedAt         time.Time
}

// Permissions is the eight-bit operation permission mask for one Database.
type Permissions struct {
	Select   bool
	Insert   bool
	Update   bool
	Delete   bool
	Create   bool
	Alter    bool
	Drop     bool
	Truncate bool
}

// Database is one catalog entry: a real MySQL schema exposed under a
// stable alias, scoped to one Connection.
type Database struct {
	ID           string
	ConnectionID string
	RealName     string
	Alias        string
	Enabled      bool
	LastAccessed time.Time
	Permissions  Permissions
}

// User is a catalog account used by the REST configuration surface.
type User struct {
	ID                string
	Username          string
	PasswordHash      string
	CreatedAt         time.Time
	LastLoginAt       *time.Time
	Active            bool
	MustChangePassword bool
}

// APIKey is a bearer credential for the JSON-RPC tool surface and REST API.
type APIKey struct {
	ID         string
	Name       string
	Secret     string // only populated at creation time
	Preview    string // first8…last8, safe to display
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Active     bool
}

// LogEntry is one append-only audit record.
type LogEntry struct {
	ID         int64
	APIKeyID   *string
	UserID     *string
	Endpoint   string
	Method     string
	Request    string
	Response   string
	Status     int
	DurationMS int64
	CreatedAt  time.Time
}

// LogFilter narrows QueryLogs results.
type LogFilter struct {
	Endpoint string
	Status   int
	Since    *time.Time
	Until    *time.Time
}

// LogPage is one page of audit log entries.
type LogPage struct {
	Entries []LogEntry
	Total   int64
	Limit   int
	Offset  int
}

// Well-known setting keys.
const (
	SettingCurrentDatabaseAlias = "currentDatabaseAlias"
	SettingMCPEnabled           = "mcpEnabled"
	SettingMaxActiveDatabases   = "maxActiveDatabases"
	SettingMaxActiveConnections = "maxActiveConnections"
)

// Default resource caps, used when the configured cap is not positive. The
// settings keys of the same names are stored and served by the settings API;
// the session manager does not read them.
const (
	DefaultMaxActiveDatabases   = 10
	DefaultMaxActiveConnections = 5
)

// Identity is the sum type produced by authentication: either a User or an
// APIKey authenticated the request, never both.
type Identity struct {
	UserID      string
	Username    string
	APIKeyID    string
	APIKeyName  string
	IsAPIKey    bool
	IsLocalhost bool // logging-only side channel, never used in auth decisions
}
