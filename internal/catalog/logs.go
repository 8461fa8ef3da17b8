package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
)

// AppendLog writes one audit record. Failures are returned to the caller,
// who (per the audit logger's non-blocking contract) counts rather than
// surfaces them.
func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	entry.CreatedAt = time.Now().UTC()
	err := execRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO logs (api_key_id, user_id, endpoint, method, request, response, status, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.APIKeyID, entry.UserID, entry.Endpoint, entry.Method, entry.Request, entry.Response,
			entry.Status, entry.DurationMS, entry.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("catalog: append log: %w", err)
	}
	return nil
}

// QueryLogs returns a page of log entries matching filter, newest first.
func (s *Store) QueryLogs(ctx context.Context, filter domain.LogFilter, limit, offset int) (domain.LogPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var conds []string
	var args []any
	if filter.Endpoint != "" {
		conds = append(conds, "endpoint = ?")
		args = append(args, filter.Endpoint)
	}
	if filter.Status != 0 {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.Until)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs `+where, args...).Scan(&total); err != nil {
		return domain.LogPage{}, fmt.Errorf("catalog: count logs: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_key_id, user_id, endpoint, method, request, response, status, duration_ms, created_at
		FROM logs `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return domain.LogPage{}, fmt.Errorf("catalog: query logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.APIKeyID, &e.UserID, &e.Endpoint, &e.Method, &e.Request, &e.Response,
			&e.Status, &e.DurationMS, &e.CreatedAt); err != nil {
			return domain.LogPage{}, fmt.Errorf("catalog: scan log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.LogPage{}, err
	}

	return domain.LogPage{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// LogStats summarizes request volume, error count (status >= 400) and
// average duration for the log entries since a given time.
type LogStats struct {
	TotalRequests  int64
	ErrorRequests  int64
	AvgDurationMS  float64
	RequestsByHour map[string]int64
}

// Stats computes aggregate log statistics since the given time.
func (s *Store) Stats(ctx context.Context, since time.Time) (LogStats, error) {
	var stats LogStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0), COALESCE(AVG(duration_ms), 0)
		FROM logs WHERE created_at >= ?`, since,
	).Scan(&stats.TotalRequests, &stats.ErrorRequests, &stats.AvgDurationMS)
	if err != nil {
		return LogStats{}, fmt.Errorf("catalog: log stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', created_at) AS hour, COUNT(*)
		FROM logs WHERE created_at >= ? GROUP BY hour ORDER BY hour`, since)
	if err != nil {
		return LogStats{}, fmt.Errorf("catalog: log stats by hour: %w", err)
	}
	defer rows.Close()

	stats.RequestsByHour = make(map[string]int64)
	for rows.Next() {
		var hour string
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return LogStats{}, err
		}
		stats.RequestsByHour[hour] = count
	}

	return stats, rows.Err()
}

// PurgeLogsOlderThan deletes every log entry recorded before cutoff,
// returning the number of rows removed.
func (s *Store) PurgeLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := execRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: purge logs: %w", err)
	}
	return n, nil
}
