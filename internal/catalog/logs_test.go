package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestQueryLogsFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status := 200
		if i == 2 {
			status = 500
		}
		require.NoError(t, store.AppendLog(ctx, domain.LogEntry{
			Endpoint: "/api/query", Method: "POST", Request: "{}", Response: "{}", Status: status, DurationMS: 10,
		}))
	}

	page, err := store.QueryLogs(ctx, domain.LogFilter{}, 2, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.Len(t, page.Entries, 2)

	filtered, err := store.QueryLogs(ctx, domain.LogFilter{Status: 500}, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), filtered.Total)
}

func TestStatsSummarizesErrorsAndAverage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendLog(ctx, domain.LogEntry{Endpoint: "/a", Method: "GET", Status: 200, DurationMS: 5}))
	require.NoError(t, store.AppendLog(ctx, domain.LogEntry{Endpoint: "/a", Method: "GET", Status: 500, DurationMS: 15}))

	stats, err := store.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalRequests)
	require.Equal(t, int64(1), stats.ErrorRequests)
	require.Equal(t, float64(10), stats.AvgDurationMS)
}

func TestPurgeLogsOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendLog(ctx, domain.LogEntry{Endpoint: "/old", Method: "GET", Status: 200}))

	n, err := store.PurgeLogsOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	page, err := store.QueryLogs(ctx, domain.LogFilter{}, 50, 0)
	require.NoError(t, err)
	require.Empty(t, page.Entries)
}
