package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/akz4ol/sqlgateway/internal/audit"
)

// Audit returns middleware that records every request/response pair
// through logger. Bodies are captured best-effort and redacted by the
// logger before persistence. The entry is recorded after the wrapped
// handler returns, and a recording failure never changes the response.
func Audit(logger *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(io.LimitReader(r.Body, 64*1024))
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			wrapped := wrapResponseWriter(w)
			var respBuf bytes.Buffer
			capture := &captureWriter{responseWriter: wrapped, buf: &respBuf}

			start := time.Now()
			next.ServeHTTP(capture, r)
			duration := time.Since(start)

			identity := GetIdentity(r.Context())
			logger.Record(r.Context(), audit.Entry{
				APIKeyID:   identity.APIKeyID,
				UserID:     identity.UserID,
				Endpoint:   r.URL.Path,
				Method:     r.Method,
				Request:    rawJSON(reqBody),
				Response:   rawJSON(respBuf.Bytes()),
				Status:     wrapped.status,
				DurationMS: duration.Milliseconds(),
			})
		})
	}
}

// rawJSON passes already-serialized bytes through audit.Logger's
// redaction pass unchanged, the way json.RawMessage would.
type rawJSON []byte

func (b rawJSON) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

// captureWriter tees response bytes into buf while still writing them to
// the real ResponseWriter, so the client sees an unmodified response.
type captureWriter struct {
	*responseWriter
	buf *bytes.Buffer
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.responseWriter.Write(b)
}
