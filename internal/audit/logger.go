// Package audit persists a record of every tool call and REST request:
// endpoint, caller identity, truncated request/response bodies with
// passwords redacted, status, and duration. Logging never blocks or fails
// the call it describes; persistence failures are counted, not surfaced.
package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/rs/zerolog"
)

// maxBodySize caps the request/response text stored per entry; oversized
// bodies are truncated and flagged.
const maxBodySize = 64 * 1024

// Store is the subset of catalog.Store the audit logger writes to.
type Store interface {
	AppendLog(ctx context.Context, entry domain.LogEntry) error
}

// Logger records audit entries without blocking the caller on failure.
type Logger struct {
	store       Store
	logger      zerolog.Logger
	failedCount atomic.Int64
}

// NewLogger builds an audit logger backed by store.
func NewLogger(store Store, logger zerolog.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Entry describes one request/response pair to record.
type Entry struct {
	APIKeyID   string
	UserID     string
	Endpoint   string
	Method     string
	Request    interface{}
	Response   interface{}
	Status     int
	DurationMS int64
}

// Record redacts passwords, truncates oversized bodies and writes entry to
// the store before returning. It never returns an error — failures are
// counted via FailedCount.
func (l *Logger) Record(ctx context.Context, e Entry) {
	entry := domain.LogEntry{
		Endpoint:   e.Endpoint,
		Method:     e.Method,
		Request:    truncate(redactJSON(e.Request)),
		Response:   truncate(redactJSON(e.Response)),
		Status:     e.Status,
		DurationMS: e.DurationMS,
	}
	if e.APIKeyID != "" {
		entry.APIKeyID = &e.APIKeyID
	}
	if e.UserID != "" {
		entry.UserID = &e.UserID
	}

	if err := l.store.AppendLog(ctx, entry); err != nil {
		l.failedCount.Add(1)
		l.logger.Warn().Err(err).Str("endpoint", e.Endpoint).Msg("audit log write failed")
	}
}

// FailedCount reports how many Record calls failed to persist since startup.
func (l *Logger) FailedCount() int64 {
	return l.failedCount.Load()
}

// redactJSON marshals v and recursively blanks any object field whose key
// looks like a credential, regardless of nesting depth.
func redactJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}

	redact(generic)
	redacted, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(redacted)
}

var sensitiveKeys = map[string]bool{
	"password":           true,
	"passwd":             true,
	"secret":              true,
	"token":              true,
	"apikey":             true,
	"api_key":            true,
	"passwordciphertext": true,
}

func redact(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if sensitiveKeys[lower(k)] {
				val[k] = "[redacted]"
				continue
			}
			redact(child)
		}
	case []interface{}:
		for _, item := range val {
			redact(item)
		}
	}
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func truncate(s string) string {
	if len(s) <= maxBodySize {
		return s
	}
	return s[:maxBodySize] + "...[truncated]"
}

// Since supports the log-retention purge CLI: it returns the cutoff time
// for purging entries older than ttl.
func Since(ttl time.Duration) time.Time {
	return time.Now().Add(-ttl)
}
