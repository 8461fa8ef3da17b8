package policy

import (
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]OperationKind{
		"select * from users":               OpSelect,
		"  SELECT 1":                        OpSelect,
		"-- a comment\nSELECT 1":            OpSelect,
		"/* block */ INSERT INTO t VALUES()": OpInsert,
		"UPDATE t SET x = 1":                OpUpdate,
		"DELETE FROM t":                     OpDelete,
		"CREATE TABLE t (id INT)":           OpCreate,
		"ALTER TABLE t ADD COLUMN x INT":    OpAlter,
		"DROP TABLE t":                      OpDrop,
		"TRUNCATE TABLE t":                  OpTruncate,
		"SHOW TABLES":                       OpSelect,
		"":                                   OpUnknown,
		"frobnicate everything":             OpUnknown,
	}

	for sql, want := range cases {
		assert.Equal(t, want, Classify(sql), "sql=%q", sql)
	}
}

func TestAllow(t *testing.T) {
	perms := domain.Permissions{Select: true, Insert: false}

	ok, reason := Allow(OpSelect, perms, "test")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = Allow(OpInsert, perms, "test")
	assert.False(t, ok)
	assert.Contains(t, reason, "INSERT")
	assert.Contains(t, reason, "test")

	ok, _ = Allow(OpUnknown, perms, "test")
	assert.False(t, ok)
}
