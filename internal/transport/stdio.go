// Package transport implements the two ways the JSON-RPC tool dispatcher is
// exposed: newline-delimited JSON over stdio, and a single HTTP endpoint
// keyed by an mcp-session-id header.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/akz4ol/sqlgateway/internal/dispatcher"
	"github.com/rs/zerolog"
)

// Dispatcher is the subset of dispatcher.Dispatcher the transports need.
type Dispatcher interface {
	Handle(ctx context.Context, sessionID string, raw []byte) *dispatcher.Response
}

// StdioTransport runs the dispatcher over newline-delimited JSON-RPC
// messages on stdin/stdout, using the empty session ID (the process-local
// context).
type StdioTransport struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewStdio builds a stdio transport.
func NewStdio(d Dispatcher, logger zerolog.Logger) *StdioTransport {
	return &StdioTransport{dispatcher: d, logger: logger}
}

// Serve reads one JSON-RPC request per line from in and writes one response
// per line to out, until in is closed or ctx is canceled.
func (t *StdioTransport) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := t.dispatcher.Handle(ctx, "", append([]byte(nil), line...))
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			t.logger.Error().Err(err).Msg("stdio transport: failed to write response")
		}
	}
	return scanner.Err()
}
