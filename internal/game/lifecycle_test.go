// internal/game/lifecycle_test.go
package game

import (
	"math"
	"testing"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hostH  = models.Participant{Address: "0xH", DisplayName: "Host"}
	guestG = models.Participant{Address: "0xG", DisplayName: "Guest"}
)

func hand(powers ...int) []models.CardRef {
	h := make([]models.CardRef, len(powers))
	for i, p := range powers {
		h[i] = models.CardRef{ID: string(rune('a' + i)), Power: p}
	}
	return h
}

func newTestRoom(t *testing.T) *models.Room {
	t.Helper()
	r, err := NewRoom("ABC123", hostH, models.ModeCasual, time.Unix(0, 0))
	require.NoError(t, err)
	return r
}

// TestScenarioA walks a room through create, join, both submissions and finish.
func TestScenarioA(t *testing.T) {
	r := newTestRoom(t)
	assert.Equal(t, models.RoomWaiting, r.Status)
	assert.Nil(t, r.Guest)

	require.NoError(t, Join(r, guestG))
	assert.Equal(t, models.RoomReady, r.Status)

	require.NoError(t, SubmitHand(r, models.SideHost, hand(60, 60), time.Unix(2, 0)))
	assert.Equal(t, models.RoomReady, r.Status, "one side missing keeps room ready")
	assert.Nil(t, r.StartedAt)
	require.NotNil(t, r.HostPower)
	assert.Equal(t, 120, *r.HostPower)

	require.NoError(t, SubmitHand(r, models.SideGuest, hand(95), time.Unix(3, 0)))
	assert.Equal(t, models.RoomPlaying, r.Status)
	require.NotNil(t, r.StartedAt)
	assert.True(t, r.StartedAt.Equal(time.Unix(3, 0)))
	assert.Equal(t, 95, *r.GuestPower)

	winner := DecideWinner(*r.HostPower, *r.GuestPower)
	assert.Equal(t, models.SideHost, winner)

	require.NoError(t, Finish(r, winner, time.Unix(4, 0)))
	assert.Equal(t, models.RoomFinished, r.Status)
	require.NotNil(t, r.Winner)
	assert.Equal(t, models.SideHost, *r.Winner)
	assert.NotNil(t, r.FinishedAt)
}

func TestJoinRejections(t *testing.T) {
	r := newTestRoom(t)
	assert.ErrorIs(t, Join(r, hostH), ErrAlreadyInRoom)

	require.NoError(t, Join(r, guestG))
	before := r.Clone()
	assert.ErrorIs(t, Join(r, models.Participant{Address: "0xC"}), ErrRoomFull)
	assert.True(t, before.Equal(r), "rejected join must leave the room untouched")

	cancelled := newTestRoom(t)
	_, err := Leave(cancelled, hostH.Address)
	require.NoError(t, err)
	assert.ErrorIs(t, Join(cancelled, guestG), ErrRoomNotWaiting)
}

func TestSubmitHandTwiceIsRejected(t *testing.T) {
	r := newTestRoom(t)
	require.NoError(t, Join(r, guestG))
	first := hand(10, 20)
	require.NoError(t, SubmitHand(r, models.SideHost, first, time.Now()))

	err := SubmitHand(r, models.SideHost, hand(99), time.Now())
	assert.ErrorIs(t, err, ErrHandAlreadySubmitted)
	assert.Equal(t, first, r.HostHand)
	assert.Equal(t, 30, *r.HostPower)
}

func TestSubmitHandValidation(t *testing.T) {
	r := newTestRoom(t)
	assert.ErrorIs(t, SubmitHand(r, models.SideGuest, hand(1), time.Now()), ErrNotParticipant)
	assert.ErrorIs(t, SubmitHand(r, models.SideHost, nil, time.Now()), ErrInvalidHand)
	assert.ErrorIs(t, SubmitHand(r, models.SideHost, hand(1, 2, 3, 4, 5, 6), time.Now()), ErrInvalidHand)
	assert.ErrorIs(t, SubmitHand(r, models.SideHost, hand(-1), time.Now()), ErrInvalidHand)
	dup := []models.CardRef{{ID: "x", Power: 1}, {ID: "x", Power: 2}}
	assert.ErrorIs(t, SubmitHand(r, models.SideHost, dup, time.Now()), ErrInvalidHand)
	assert.Nil(t, r.HostHand)

	// a lone host may lock in a hand before anyone joins
	require.NoError(t, SubmitHand(r, models.SideHost, hand(5), time.Now()))
	assert.Equal(t, models.RoomWaiting, r.Status)
}

func TestCardPowerBound(t *testing.T) {
	full := make([]int, models.MaxHandSize)
	for i := range full {
		full[i] = models.MaxCardPower
	}
	require.NoError(t, ValidateHand(hand(full...)))
	assert.LessOrEqual(t, models.HandPower(hand(full...)), math.MaxInt32)

	assert.ErrorIs(t, ValidateHand(hand(models.MaxCardPower+1)), ErrInvalidHand)

	r := newTestRoom(t)
	require.NoError(t, Join(r, guestG))
	before := r.Clone()
	err := SubmitHand(r, models.SideHost, hand(math.MaxInt, 1), time.Now())
	assert.ErrorIs(t, err, ErrInvalidHand)
	assert.True(t, before.Equal(r), "an oversized card must leave the room untouched")

	require.NoError(t, SubmitHand(r, models.SideHost, hand(full...), time.Now()))
	require.NoError(t, SubmitHand(r, models.SideGuest, hand(1), time.Now()))
	require.NotNil(t, r.HostPower)
	assert.Equal(t, models.MaxHandSize*models.MaxCardPower, *r.HostPower)
	assert.Equal(t, models.SideHost, DecideWinner(*r.HostPower, *r.GuestPower))
}

func TestSubmitHandOnTerminalRoom(t *testing.T) {
	r := newTestRoom(t)
	_, err := Leave(r, hostH.Address)
	require.NoError(t, err)
	assert.ErrorIs(t, SubmitHand(r, models.SideHost, hand(1), time.Now()), ErrRoomTerminal)
}

func TestFinishOnlyFromPlaying(t *testing.T) {
	r := newTestRoom(t)
	assert.ErrorIs(t, Finish(r, models.SideHost, time.Now()), ErrRoomNotPlaying)
	require.NoError(t, Join(r, guestG))
	assert.ErrorIs(t, Finish(r, models.SideHost, time.Now()), ErrRoomNotPlaying)
	assert.ErrorIs(t, Finish(r, "nobody", time.Now()), ErrInvalidWinner)
	assert.Nil(t, r.Winner)
}

func TestLeave(t *testing.T) {
	r := newTestRoom(t)
	_, err := Leave(r, "0xStranger")
	assert.ErrorIs(t, err, ErrNotParticipant)

	require.NoError(t, Join(r, guestG))
	require.NoError(t, SubmitHand(r, models.SideHost, hand(3), time.Now()))
	changed, err := Leave(r, guestG.Address)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.RoomCancelled, r.Status)

	changed, err = Leave(r, hostH.Address)
	require.NoError(t, err)
	assert.False(t, changed, "leaving a terminal room is a no-op")

	playing := newTestRoom(t)
	require.NoError(t, Join(playing, guestG))
	require.NoError(t, SubmitHand(playing, models.SideHost, hand(3), time.Now()))
	require.NoError(t, SubmitHand(playing, models.SideGuest, hand(4), time.Now()))
	_, err = Leave(playing, hostH.Address)
	assert.ErrorIs(t, err, ErrRoomInProgress)
	assert.Equal(t, models.RoomPlaying, playing.Status)
}

func TestTransitionsNeverRegress(t *testing.T) {
	all := []models.RoomStatus{models.RoomWaiting, models.RoomReady, models.RoomPlaying, models.RoomFinished, models.RoomCancelled}
	for _, from := range all {
		for _, to := range all {
			if CanTransition(from, to) {
				assert.Greater(t, to.Rank(), from.Rank(), "%s -> %s", from, to)
			}
		}
		if from.Terminal() {
			for _, to := range all {
				assert.False(t, CanTransition(from, to), "%s is terminal", from)
			}
		}
	}
	assert.False(t, CanTransition(models.RoomPlaying, models.RoomCancelled))
}

func TestDecideWinner(t *testing.T) {
	assert.Equal(t, models.SideHost, DecideWinner(120, 95))
	assert.Equal(t, models.SideGuest, DecideWinner(0, 1))
	assert.Equal(t, models.SideTie, DecideWinner(50, 50))
}

func TestNewRoomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := NewRoomCode()
		require.Len(t, c, RoomCodeLength)
		for _, ch := range c {
			assert.Contains(t, codeAlphabet, string(ch))
		}
		seen[c] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestErrorCodesRoundTrip(t *testing.T) {
	for sentinel, code := range codes {
		assert.Equal(t, sentinel, FromCode(code))
		assert.True(t, IsInvariant(sentinel))
	}
	assert.Nil(t, FromCode("nope"))
	assert.False(t, IsInvariant(assert.AnError))
}
