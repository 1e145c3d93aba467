// internal/store/memory_test.go
package store_test

import (
	"context"
	"testing"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/jason-s-yu/cardclash/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock *storetest.Clock) store.Store {
		return store.NewMemoryStore(store.WithClock(clock.Now), store.WithLimits(storetest.Limits))
	})
}

// TestMemoryStoreCodeCollision forces the generator to repeat itself and checks
// that a live code is never handed out twice.
func TestMemoryStoreCodeCollision(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	i := 0
	s := store.NewMemoryStore(store.WithCodeGenerator(func() string {
		c := codes[i%len(codes)]
		i++
		return c
	}))
	ctx := context.Background()

	first, err := s.CreateRoom(ctx, models.Participant{Address: "0x1"}, models.ModeCasual)
	require.NoError(t, err)
	second, err := s.CreateRoom(ctx, models.Participant{Address: "0x2"}, models.ModeCasual)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)
}

func TestMemoryStoreCodeSpaceExhausted(t *testing.T) {
	s := store.NewMemoryStore(store.WithCodeGenerator(func() string { return "SAME00" }))
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, models.Participant{Address: "0x1"}, models.ModeCasual)
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, models.Participant{Address: "0x2"}, models.ModeCasual)
	assert.ErrorIs(t, err, store.ErrCodeSpaceExhausted)
}

// TestMemoryStoreSnapshotsAreCopies guards against callers mutating stored state.
func TestMemoryStoreSnapshotsAreCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	code, err := s.CreateRoom(ctx, models.Participant{Address: "0x1"}, models.ModeCasual)
	require.NoError(t, err)

	r, err := s.GetRoom(ctx, code)
	require.NoError(t, err)
	r.Status = models.RoomFinished

	again, err := s.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, again.Status)
}
