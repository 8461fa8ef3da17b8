package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []domain.LogEntry
	err     error
}

func (f *fakeStore) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestRecordRedactsPasswordFieldsAtAnyDepth(t *testing.T) {
	store := &fakeStore{}
	logger := NewLogger(store, zerolog.Nop())

	logger.Record(context.Background(), Entry{
		Endpoint: "/api/connections",
		Method:   "POST",
		Request: map[string]interface{}{
			"host": "db.internal",
			"auth": map[string]interface{}{"password": "hunter2"},
		},
		Response: map[string]interface{}{"id": "conn-1"},
		Status:   201,
	})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.Contains(t, entry.Request, "[redacted]")
	require.NotContains(t, entry.Request, "hunter2")
	require.Equal(t, "/api/connections", entry.Endpoint)
}

func TestRecordAttachesCallerIdentity(t *testing.T) {
	store := &fakeStore{}
	logger := NewLogger(store, zerolog.Nop())

	logger.Record(context.Background(), Entry{
		Endpoint: "/mcp",
		Method:   "POST",
		APIKeyID: "key-1",
	})

	require.Len(t, store.entries, 1)
	require.NotNil(t, store.entries[0].APIKeyID)
	require.Equal(t, "key-1", *store.entries[0].APIKeyID)
	require.Nil(t, store.entries[0].UserID)
}

func TestRecordTruncatesOversizedBody(t *testing.T) {
	store := &fakeStore{}
	logger := NewLogger(store, zerolog.Nop())

	big := make([]byte, maxBodySize*2)
	for i := range big {
		big[i] = 'a'
	}

	logger.Record(context.Background(), Entry{
		Endpoint: "/api/query",
		Response: map[string]interface{}{"blob": string(big)},
	})

	require.Len(t, store.entries, 1)
	require.Contains(t, store.entries[0].Response, "...[truncated]")
	require.LessOrEqual(t, len(store.entries[0].Response), maxBodySize+len("...[truncated]"))
}

func TestRecordCountsPersistFailuresWithoutReturningError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	logger := NewLogger(store, zerolog.Nop())

	require.Equal(t, int64(0), logger.FailedCount())
	logger.Record(context.Background(), Entry{Endpoint: "/api/query"})
	require.Equal(t, int64(1), logger.FailedCount())
}
