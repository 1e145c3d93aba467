// Package storetest holds the behavioural contract every store.Store must meet.
// Implementations call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source shared by a store under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Limits used by every store built for the suite.
var Limits = store.Limits{RoomMaxAge: 10 * time.Minute, MatchmakingTimeout: time.Minute}

// Factory builds a fresh, empty store driven by clock and Limits.
type Factory func(t *testing.T, clock *Clock) store.Store

func player(n string) models.Participant {
	return models.Participant{Address: "0x" + n, DisplayName: n}
}

func hand(powers ...int) []models.CardRef {
	h := make([]models.CardRef, len(powers))
	for i, p := range powers {
		h[i] = models.CardRef{ID: fmt.Sprintf("card-%d", i), Power: p}
	}
	return h
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(t *testing.T, s store.Store, clock *Clock){
		"ScenarioA":               testScenarioA,
		"JoinErrors":              testJoinErrors,
		"SingleHandSubmission":    testSingleHandSubmission,
		"PairingSafety":           testPairingSafety,
		"ScenarioB":               testScenarioB,
		"EnqueueIdempotent":       testEnqueueIdempotent,
		"Cancel":                  testCancel,
		"SeatedPlayerCannotQueue": testSeatedPlayerCannotQueue,
		"LeaveRoom":               testLeaveRoom,
		"CleanupStale":            testCleanupStale,
		"DistinctKeys":            testDistinctKeys,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			clock := NewClock()
			fn(t, newStore(t, clock), clock)
		})
	}
}

func testScenarioA(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	h, g := player("H"), player("G")

	code, err := s.CreateRoom(ctx, h, models.ModeCasual)
	require.NoError(t, err)
	require.Len(t, code, game.RoomCodeLength)

	var statuses []models.RoomStatus
	observe := func() *models.Room {
		r, err := s.GetRoom(ctx, code)
		require.NoError(t, err)
		statuses = append(statuses, r.Status)
		return r
	}

	r := observe()
	assert.Equal(t, models.RoomWaiting, r.Status)
	assert.Equal(t, h, r.Host)

	clock.Advance(time.Second)
	require.NoError(t, s.JoinRoom(ctx, code, g))
	assert.Equal(t, models.RoomReady, observe().Status)

	clock.Advance(time.Second)
	require.NoError(t, s.SubmitHand(ctx, code, models.SideHost, hand(100, 20)))
	r = observe()
	assert.Equal(t, models.RoomReady, r.Status)
	assert.Equal(t, 120, *r.HostPower)

	clock.Advance(time.Second)
	require.NoError(t, s.SubmitHand(ctx, code, models.SideGuest, hand(95)))
	r = observe()
	assert.Equal(t, models.RoomPlaying, r.Status)
	require.NotNil(t, r.StartedAt)
	assert.True(t, r.StartedAt.Equal(clock.Now()))

	require.NoError(t, s.FinishRoom(ctx, code, models.SideHost))
	r = observe()
	assert.Equal(t, models.RoomFinished, r.Status)
	require.NotNil(t, r.Winner)
	assert.Equal(t, models.SideHost, *r.Winner)
	assert.NotNil(t, r.FinishedAt)

	assert.ErrorIs(t, s.FinishRoom(ctx, code, models.SideGuest), game.ErrRoomNotPlaying)

	for i := 1; i < len(statuses); i++ {
		assert.GreaterOrEqual(t, statuses[i].Rank(), statuses[i-1].Rank(), "status regressed: %v", statuses)
	}

	byPlayer, err := s.GetRoomByPlayer(ctx, g.Address)
	require.NoError(t, err)
	assert.Equal(t, code, byPlayer.ID)
}

func testJoinErrors(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	assert.ErrorIs(t, s.JoinRoom(ctx, "NOPE42", player("G")), game.ErrRoomNotFound)

	code, err := s.CreateRoom(ctx, player("H"), models.ModeRanked)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, code, player("G")))
	assert.ErrorIs(t, s.JoinRoom(ctx, code, player("C")), game.ErrRoomFull)

	r, err := s.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "0xG", r.Guest.Address)

	_, err = s.CreateRoom(ctx, player("X"), models.Mode("blitz"))
	assert.ErrorIs(t, err, game.ErrInvalidMode)

	_, err = s.GetRoom(ctx, "NOPE42")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}

func testSingleHandSubmission(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	code, err := s.CreateRoom(ctx, player("H"), models.ModeCasual)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, code, player("G")))

	require.NoError(t, s.SubmitHand(ctx, code, models.SideGuest, hand(7, 8)))
	assert.ErrorIs(t, s.SubmitHand(ctx, code, models.SideGuest, hand(50)), game.ErrHandAlreadySubmitted)

	r, err := s.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, hand(7, 8), r.GuestHand)
	assert.Equal(t, 15, *r.GuestPower)
	assert.ErrorIs(t, s.SubmitHand(ctx, "NOPE42", models.SideHost, hand(1)), game.ErrRoomNotFound)
}

func testPairingSafety(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	const n = 10

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.FindMatch(ctx, player(fmt.Sprintf("P%d", i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rooms := map[string]*models.Room{}
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("0xP%d", i)
		e, err := s.GetMatchmakingStatus(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, models.EntryMatched, e.Status, "player %s left unmatched", addr)
		if _, ok := rooms[e.MatchedRoom]; !ok {
			r, err := s.GetRoom(ctx, e.MatchedRoom)
			require.NoError(t, err)
			rooms[e.MatchedRoom] = r
		}
	}
	assert.Len(t, rooms, n/2)

	seats := map[string]string{}
	for code, r := range rooms {
		require.NotNil(t, r.Guest)
		assert.Equal(t, models.RoomReady, r.Status)
		assert.Equal(t, models.ModeRanked, r.Mode)
		assert.NotEqual(t, r.Host.Address, r.Guest.Address)
		for _, addr := range []string{r.Host.Address, r.Guest.Address} {
			prev, dup := seats[addr]
			assert.False(t, dup, "%s seated in %s and %s", addr, prev, code)
			seats[addr] = code
		}
	}
	assert.Len(t, seats, n)
}

func testScenarioB(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	players := []models.Participant{player("A"), player("B"), player("C")}

	var wg sync.WaitGroup
	codes := make([]string, len(players))
	for i, p := range players {
		wg.Add(1)
		go func(i int, p models.Participant) {
			defer wg.Done()
			code, err := s.FindMatch(ctx, p)
			assert.NoError(t, err)
			codes[i] = code
		}(i, p)
	}
	wg.Wait()

	formed := map[string]bool{}
	for _, c := range codes {
		if c != "" {
			formed[c] = true
		}
	}
	assert.Len(t, formed, 1, "exactly one pair forms")

	waiting := 0
	for _, p := range players {
		e, err := s.GetMatchmakingStatus(ctx, p.Address)
		require.NoError(t, err)
		if e.Status == models.EntryWaiting {
			waiting++
			assert.Empty(t, e.MatchedRoom)
		}
	}
	assert.Equal(t, 1, waiting)
}

func testEnqueueIdempotent(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	a, b := player("A"), player("B")

	code, err := s.FindMatch(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, code)
	code, err = s.FindMatch(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, code, "re-enqueue while waiting must not pair a player with itself")

	code, err = s.FindMatch(ctx, b)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	again, err := s.FindMatch(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, code, again, "matched player gets its room back")

	r, err := s.GetRoomByPlayer(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, code, r.ID)
	assert.Equal(t, a, r.Host)
	assert.Equal(t, b, *r.Guest)
}

func testCancel(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	a, b, c := player("A"), player("B"), player("C")

	_, err := s.FindMatch(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.CancelMatchmaking(ctx, a.Address))
	e, err := s.GetMatchmakingStatus(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, models.EntryCancelled, e.Status)

	code, err := s.FindMatch(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, code, "cancelled entries are never paired")

	code, err = s.FindMatch(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	require.NoError(t, s.CancelMatchmaking(ctx, b.Address))
	e, err = s.GetMatchmakingStatus(ctx, b.Address)
	require.NoError(t, err)
	assert.Equal(t, models.EntryMatched, e.Status, "cancel after match is a no-op")
	assert.Equal(t, code, e.MatchedRoom)

	require.NoError(t, s.CancelMatchmaking(ctx, "0xNobody"))
	_, err = s.GetMatchmakingStatus(ctx, "0xNobody")
	assert.ErrorIs(t, err, game.ErrEntryNotFound)
}

func testSeatedPlayerCannotQueue(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	h := player("H")
	code, err := s.CreateRoom(ctx, h, models.ModeCasual)
	require.NoError(t, err)

	_, err = s.FindMatch(ctx, h)
	assert.ErrorIs(t, err, game.ErrAlreadyInRoom)
	_, err = s.CreateRoom(ctx, h, models.ModeCasual)
	assert.ErrorIs(t, err, game.ErrAlreadyInRoom)

	require.NoError(t, s.LeaveRoom(ctx, code, h.Address))
	_, err = s.FindMatch(ctx, h)
	assert.NoError(t, err, "a cancelled room frees the seat")
}

func testLeaveRoom(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	h, g := player("H"), player("G")
	code, err := s.CreateRoom(ctx, h, models.ModeCasual)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, code, g))

	assert.ErrorIs(t, s.LeaveRoom(ctx, code, "0xStranger"), game.ErrNotParticipant)
	assert.ErrorIs(t, s.LeaveRoom(ctx, "NOPE42", h.Address), game.ErrRoomNotFound)

	require.NoError(t, s.LeaveRoom(ctx, code, g.Address))
	r, err := s.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomCancelled, r.Status)

	_, err = s.GetRoomByPlayer(ctx, g.Address)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	r, err = s.GetRoomByPlayer(ctx, h.Address)
	require.NoError(t, err)
	assert.Equal(t, models.RoomCancelled, r.Status)

	require.NoError(t, s.LeaveRoom(ctx, code, h.Address))
	assert.ErrorIs(t, s.SubmitHand(ctx, code, models.SideHost, hand(1)), game.ErrRoomTerminal)
}

func testCleanupStale(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()

	old, err := s.CreateRoom(ctx, player("Old"), models.ModeCasual)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, old, player("OldGuest")))
	require.NoError(t, s.SubmitHand(ctx, old, models.SideHost, hand(1)))
	require.NoError(t, s.SubmitHand(ctx, old, models.SideGuest, hand(2)))
	_, err = s.FindMatch(ctx, player("Queued"))
	require.NoError(t, err)

	clock.Advance(Limits.MatchmakingTimeout)
	fresh, err := s.FindMatch(ctx, player("Fresh"))
	require.NoError(t, err)
	require.NotEmpty(t, fresh, "Fresh pairs with the still-present Queued entry")

	_, err = s.FindMatch(ctx, player("Late"))
	require.NoError(t, err)

	removed, err := s.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the Queued entry has aged out")
	_, err = s.GetMatchmakingStatus(ctx, "0xQueued")
	assert.ErrorIs(t, err, game.ErrEntryNotFound)

	clock.Advance(Limits.RoomMaxAge)
	removed, err = s.CleanupStale(ctx)
	require.NoError(t, err)
	// the playing room, the matched room, and the Fresh and Late entries
	assert.Equal(t, 4, removed)

	_, err = s.GetRoom(ctx, old)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	_, err = s.GetRoomByPlayer(ctx, "0xOldGuest")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	_, err = s.GetRoom(ctx, fresh)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)

	removed, err = s.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "sweeping twice is harmless")

	code, err := s.FindMatch(ctx, player("Next"))
	require.NoError(t, err)
	assert.Empty(t, code, "swept entries are never paired")
}

func testDistinctKeys(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	a, err := s.CreateRoom(ctx, player("A"), models.ModeCasual)
	require.NoError(t, err)
	b, err := s.CreateRoom(ctx, player("B"), models.ModeCasual)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	ra, err := s.GetRoom(ctx, a)
	require.NoError(t, err)
	rb, err := s.GetRoom(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, ra.Key, rb.Key)
	assert.NotEqual(t, ra.ID, ra.Key.String())
}
