// internal/game/lifecycle.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cardclash/internal/models"
)

// transitions lists every legal status change. Anything absent is illegal.
var transitions = map[models.RoomStatus][]models.RoomStatus{
	models.RoomWaiting: {models.RoomReady, models.RoomCancelled},
	models.RoomReady:   {models.RoomPlaying, models.RoomCancelled},
	models.RoomPlaying: {models.RoomFinished},
}

// CanTransition reports whether a room may move from one status to another.
func CanTransition(from, to models.RoomStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func advance(r *models.Room, to models.RoomStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for room %s", r.Status, to, r.ID)
	}
	r.Status = to
	return nil
}

// NewRoom builds a room in waiting with only a host seated.
func NewRoom(code string, host models.Participant, mode models.Mode, now time.Time) (*models.Room, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if host.Address == "" {
		return nil, fmt.Errorf("host address required: %w", ErrNotParticipant)
	}
	key, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate room key: %w", err)
	}
	return &models.Room{
		ID:        code,
		Key:       key,
		Status:    models.RoomWaiting,
		Mode:      mode,
		Host:      host,
		CreatedAt: now,
	}, nil
}

// NewMatchedRoom builds the room produced by a matchmaking pairing: both seats
// filled, ranked, and already ready.
func NewMatchedRoom(code string, host, guest models.Participant, now time.Time) (*models.Room, error) {
	r, err := NewRoom(code, host, models.ModeRanked, now)
	if err != nil {
		return nil, err
	}
	if err := Join(r, guest); err != nil {
		return nil, err
	}
	return r, nil
}

// Join seats the guest and moves the room to ready.
func Join(r *models.Room, guest models.Participant) error {
	if guest.Address == "" {
		return fmt.Errorf("guest address required: %w", ErrNotParticipant)
	}
	if guest.Address == r.Host.Address {
		return ErrAlreadyInRoom
	}
	if r.Guest != nil {
		return ErrRoomFull
	}
	if r.Status != models.RoomWaiting {
		return ErrRoomNotWaiting
	}
	if err := advance(r, models.RoomReady); err != nil {
		return err
	}
	g := guest
	r.Guest = &g
	return nil
}

// ValidateHand checks size and card power bounds.
func ValidateHand(hand []models.CardRef) error {
	if len(hand) == 0 || len(hand) > models.MaxHandSize {
		return fmt.Errorf("hand must hold 1..%d cards, got %d: %w", models.MaxHandSize, len(hand), ErrInvalidHand)
	}
	seen := make(map[string]bool, len(hand))
	for _, c := range hand {
		if c.ID == "" {
			return fmt.Errorf("card without id: %w", ErrInvalidHand)
		}
		if c.Power < 0 {
			return fmt.Errorf("card %s has negative power: %w", c.ID, ErrInvalidHand)
		}
		if c.Power > models.MaxCardPower {
			return fmt.Errorf("card %s power above %d: %w", c.ID, models.MaxCardPower, ErrInvalidHand)
		}
		if seen[c.ID] {
			return fmt.Errorf("card %s submitted twice: %w", c.ID, ErrInvalidHand)
		}
		seen[c.ID] = true
	}
	return nil
}

// SubmitHand records one side's hand and its power. The submission that
// completes the pair moves the room to playing and stamps StartedAt.
func SubmitHand(r *models.Room, side models.Side, hand []models.CardRef, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRoomTerminal
	}
	if side != models.SideHost && side != models.SideGuest {
		return fmt.Errorf("unknown side %q: %w", side, ErrNotParticipant)
	}
	if r.Participant(side) == nil {
		return ErrNotParticipant
	}
	if r.Hand(side) != nil {
		return ErrHandAlreadySubmitted
	}
	if err := ValidateHand(hand); err != nil {
		return err
	}

	completes := (side == models.SideHost && r.GuestHand != nil) ||
		(side == models.SideGuest && r.HostHand != nil)
	if completes {
		if err := advance(r, models.RoomPlaying); err != nil {
			return err
		}
		started := now
		r.StartedAt = &started
	}

	stored := make([]models.CardRef, len(hand))
	copy(stored, hand)
	power := models.HandPower(stored)
	if side == models.SideHost {
		r.HostHand, r.HostPower = stored, &power
	} else {
		r.GuestHand, r.GuestPower = stored, &power
	}
	return nil
}

// Finish records the outcome. Only valid while playing.
func Finish(r *models.Room, winner models.Side, now time.Time) error {
	if winner != models.SideHost && winner != models.SideGuest && winner != models.SideTie {
		return ErrInvalidWinner
	}
	if r.Status != models.RoomPlaying {
		return ErrRoomNotPlaying
	}
	if err := advance(r, models.RoomFinished); err != nil {
		return err
	}
	w := winner
	finished := now
	r.Winner = &w
	r.FinishedAt = &finished
	return nil
}

// Leave handles a participant walking away. Before both hands are in, the room
// is cancelled; a terminal room is left as-is. It reports whether the status
// changed.
func Leave(r *models.Room, address string) (bool, error) {
	if _, ok := r.SideOf(address); !ok {
		return false, ErrNotParticipant
	}
	if r.Status.Terminal() {
		return false, nil
	}
	if r.Status == models.RoomPlaying {
		return false, ErrRoomInProgress
	}
	if err := advance(r, models.RoomCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// DecideWinner resolves a battle: strictly greater power wins, equal is a tie.
func DecideWinner(hostPower, guestPower int) models.Side {
	switch {
	case hostPower > guestPower:
		return models.SideHost
	case guestPower > hostPower:
		return models.SideGuest
	}
	return models.SideTie
}
