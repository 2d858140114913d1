package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harun/templog/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	archived []Record
	err      error
}

func (a *recordingArchiver) Archive(_ context.Context, records []Record) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	a.archived = append(a.archived, records...)
	return len(records), nil
}

func seedSessions(t *testing.T, store *Store, clkAdvance func(), sessions ...[]uint8) {
	ctx := context.Background()
	for _, samples := range sessions {
		require.NoError(t, store.BeginSession(ctx))
		for _, v := range samples {
			require.NoError(t, store.AddSample(ctx, v))
		}
		clkAdvance()
	}
}

func TestNewCompactor(t *testing.T) {
	store, _, _ := setupTestStore(t)

	_, err := NewCompactor(nil, nil, "", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCompactor(store, nil, "not a schedule", zerolog.Nop())
	assert.Error(t, err)

	c, err := NewCompactor(store, nil, "@daily", zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestCompactor_StartStop(t *testing.T) {
	store, _, _ := setupTestStore(t)

	t.Run("without schedule", func(t *testing.T) {
		c, err := NewCompactor(store, nil, "", zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, c.Start())
		assert.False(t, c.IsRunning())
		assert.NoError(t, c.Stop())
	})

	t.Run("with schedule", func(t *testing.T) {
		c, err := NewCompactor(store, nil, "0 3 * * *", zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, c.Start())
		assert.True(t, c.IsRunning())
		assert.Error(t, c.Start())

		require.NoError(t, c.Stop())
		assert.False(t, c.IsRunning())
	})
}

func TestCompactor_CompactNow(t *testing.T) {
	ctx := tracing.WithActor(context.Background(), "test")
	store, _, clk := setupTestStore(t)
	seedSessions(t, store, func() { clk.Add(time.Minute) }, []uint8{1}, []uint8{2, 3}, []uint8{4})

	archiver := &recordingArchiver{}
	c, err := NewCompactor(store, archiver, "", zerolog.Nop())
	require.NoError(t, err)

	records, err := c.CompactNow(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Equal(t, []Record{
		{StartAt: 1000, Temperatures: Samples{1}},
		{StartAt: 1060, Temperatures: Samples{2, 3}},
	}, archiver.archived)

	remaining, err := store.ReadSessions(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []Record{{StartAt: 1120, Temperatures: Samples{4}}}, remaining)
}

func TestCompactor_ArchiveFailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	store, _, clk := setupTestStore(t)
	seedSessions(t, store, func() { clk.Add(time.Minute) }, []uint8{1}, []uint8{2})

	c, err := NewCompactor(store, &recordingArchiver{err: errors.New("disk full")}, "", zerolog.Nop())
	require.NoError(t, err)

	_, err = c.CompactNow(ctx)
	assert.Error(t, err)

	records, err := store.ReadSessions(ctx, false)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCompactor_WithoutArchiver(t *testing.T) {
	ctx := context.Background()
	store, _, clk := setupTestStore(t)
	seedSessions(t, store, func() { clk.Add(time.Minute) }, []uint8{1}, []uint8{2})

	c, err := NewCompactor(store, nil, "", zerolog.Nop())
	require.NoError(t, err)

	records, err := c.CompactNow(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	remaining, err := store.ReadSessions(ctx, false)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
