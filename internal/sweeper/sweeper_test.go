package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	runs atomic.Int32
	n    int
	err  error
}

func (c *countingCleaner) CleanupStale(context.Context) (int, error) {
	c.runs.Add(1)
	return c.n, c.err
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := &countingCleaner{n: 2}
	s, err := New(c, 20*time.Millisecond, logger)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return c.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	runs := c.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, runs, c.runs.Load(), "no sweeps after Stop")
	assert.Equal(t, int64(2*runs), s.Removed())
}

func TestSweepErrorIsReported(t *testing.T) {
	logger, hook := test.NewNullLogger()
	boom := errors.New("redis down")
	s, err := New(&countingCleaner{err: boom}, time.Minute, logger)
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "sweep failed", hook.LastEntry().Message)
	assert.Zero(t, s.Removed())
}

func TestSweepAgainstStore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore(store.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_, err := mem.CreateRoom(ctx, models.Participant{Address: "0xH"}, models.ModeCasual)
	require.NoError(t, err)
	_, err = mem.FindMatch(ctx, models.Participant{Address: "0xQ"})
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	s, err := New(mem, 0, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(store.DefaultLimits.RoomMaxAge)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
