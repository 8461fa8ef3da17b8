// Package policy classifies SQL statements and checks them against a
// database's permission mask. The full SQL grammar is treated as an
// out-of-scope external concern: statements are not parsed, and
// classification uses the first significant keyword only.
package policy

import (
	"fmt"
	"strings"

	"github.com/akz4ol/sqlgateway/internal/domain"
)

// OperationKind enumerates the SQL statement categories the gateway
// permission mask distinguishes.
type OperationKind int

const (
	OpUnknown OperationKind = iota
	OpSelect
	OpInsert
	OpUpdate
	OpDelete
	OpCreate
	OpAlter
	OpDrop
	OpTruncate
)

func (k OperationKind) String() string {
	switch k {
	case OpSelect:
		return "SELECT"
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpCreate:
		return "CREATE"
	case OpAlter:
		return "ALTER"
	case OpDrop:
		return "DROP"
	case OpTruncate:
		return "TRUNCATE"
	default:
		return "UNKNOWN"
	}
}

// IsRead reports whether an operation only reads existing data, determining
// whether the executor opens a read-only transaction.
func (k OperationKind) IsRead() bool {
	return k == OpSelect
}

var keywordKind = map[string]OperationKind{
	"SELECT":   OpSelect,
	"SHOW":     OpSelect,
	"DESCRIBE": OpSelect,
	"DESC":     OpSelect,
	"EXPLAIN":  OpSelect,
	"WITH":     OpSelect,
	"INSERT":   OpInsert,
	"REPLACE":  OpInsert,
	"UPDATE":   OpUpdate,
	"DELETE":   OpDelete,
	"CREATE":   OpCreate,
	"ALTER":    OpAlter,
	"DROP":     OpDrop,
	"TRUNCATE": OpTruncate,
}

// Classify determines the OperationKind of a SQL statement by examining its
// first significant keyword, skipping leading whitespace and comments.
func Classify(sql string) OperationKind {
	word := firstKeyword(sql)
	if kind, ok := keywordKind[word]; ok {
		return kind
	}
	return OpUnknown
}

func firstKeyword(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = strings.TrimSpace(s[i+1:])
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = strings.TrimSpace(s[i+2:])
				continue
			}
			return ""
		}
		break
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// Allow reports whether perms grants kind against the database identified by
// alias, along with a human-readable reason naming both the operation and
// the database when it does not.
func Allow(kind OperationKind, perms domain.Permissions, alias string) (bool, string) {
	switch kind {
	case OpSelect:
		return boolReason(perms.Select, kind, alias)
	case OpInsert:
		return boolReason(perms.Insert, kind, alias)
	case OpUpdate:
		return boolReason(perms.Update, kind, alias)
	case OpDelete:
		return boolReason(perms.Delete, kind, alias)
	case OpCreate:
		return boolReason(perms.Create, kind, alias)
	case OpAlter:
		return boolReason(perms.Alter, kind, alias)
	case OpDrop:
		return boolReason(perms.Drop, kind, alias)
	case OpTruncate:
		return boolReason(perms.Truncate, kind, alias)
	default:
		return false, fmt.Sprintf("statement against %q could not be classified for permission enforcement", alias)
	}
}

func boolReason(allowed bool, kind OperationKind, alias string) (bool, string) {
	if allowed {
		return true, ""
	}
	return false, fmt.Sprintf("%s is not permitted on database %q", kind, alias)
}
