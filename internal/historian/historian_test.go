package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/cardclash/internal/cache"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]models.MatchResult
	err     error
}

func (m *memorySink) RecordBatch(_ context.Context, rs []models.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, rs)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func setup(t *testing.T, sink Sink, batch int) (*miniredis.Miniredis, *cache.ResultPublisher, *Service) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	pub := cache.NewResultPublisher(rdb, "")
	logger, _ := test.NewNullLogger()
	svc := NewService(rdb, sink, Config{Queue: pub.Queue(), BatchSize: batch, FlushDelay: 20 * time.Millisecond}, logger)
	return mr, pub, svc
}

func result(room string) models.MatchResult {
	return models.MatchResult{RoomID: room, Player: "0xH", Opponent: "0xG", Side: models.SideHost, Winner: models.SideHost}
}

func TestHistorianDrainsQueue(t *testing.T) {
	sink := &memorySink{}
	_, pub, svc := setup(t, sink, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	for _, room := range []string{"R1", "R2", "R3"} {
		require.NoError(t, pub.PublishMatchResult(ctx, result(room)))
	}
	require.Eventually(t, func() bool { return sink.count() >= 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("historian did not stop")
	}
	assert.Equal(t, 3, sink.count(), "the tail is flushed on shutdown")
	assert.Equal(t, 3, svc.Flushed())
	assert.Equal(t, "R1", sink.batches[0][0].RoomID)
}

func TestHistorianDeadLetters(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	mr, _, svc := setup(t, sink, 10)
	ctx := context.Background()

	svc.appendToBatch(ctx, result("R1"))
	svc.Flush(ctx)

	items, err := mr.List(svc.DeadLetterQueue())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Zero(t, svc.Flushed())
}

func TestHistorianSkipsGarbage(t *testing.T) {
	sink := &memorySink{}
	mr, pub, svc := setup(t, sink, 1)
	_, err := mr.Lpush(pub.Queue(), "not json")
	require.NoError(t, err)
	require.NoError(t, pub.PublishMatchResult(context.Background(), result("R9")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}
