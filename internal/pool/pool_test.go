package pool

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAcquireFailedProbeLeavesNoPoolEntry(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ctx := context.Background()

	_, err := m.Acquire(ctx, "conn-1", Dialer{Host: "127.0.0.1", Port: 1, User: "u", Password: "p"})
	require.ErrorIs(t, err, ErrConnectionRefused)
	require.Equal(t, 0, m.Open())

	// A second failed attempt should behave identically rather than
	// returning a stale cached pool.
	_, err = m.Acquire(ctx, "conn-1", Dialer{Host: "127.0.0.1", Port: 1, User: "u", Password: "p"})
	require.ErrorIs(t, err, ErrConnectionRefused)
}

func TestRecreatePoolOnUnknownConnectionIsNoop(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.RecreatePool("never-acquired")
	require.Equal(t, 0, m.Open())
}

func TestCloseAllResetsOpenCount(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.CloseAll()
	require.Equal(t, 0, m.Open())
}
