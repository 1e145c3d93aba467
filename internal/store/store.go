// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
)

// Store is the authoritative home of Rooms and MatchmakingEntries. Every method
// is atomic with respect to every other method on the same Store, across all
// callers. Lookups that miss return game.ErrRoomNotFound or
// game.ErrEntryNotFound.
type Store interface {
	// CreateRoom opens a waiting room with only a host and returns its code.
	CreateRoom(ctx context.Context, host models.Participant, mode models.Mode) (string, error)
	JoinRoom(ctx context.Context, roomID string, guest models.Participant) error
	// FindMatch pairs the player with the oldest waiting entry, creating a
	// ready room, or queues the player. It returns "" when no pair was formed.
	FindMatch(ctx context.Context, player models.Participant) (string, error)
	CancelMatchmaking(ctx context.Context, player string) error
	SubmitHand(ctx context.Context, roomID string, side models.Side, hand []models.CardRef) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomByPlayer(ctx context.Context, player string) (*models.Room, error)
	GetMatchmakingStatus(ctx context.Context, player string) (*models.MatchmakingEntry, error)
	LeaveRoom(ctx context.Context, roomID string, player string) error
	FinishRoom(ctx context.Context, roomID string, winner models.Side) error
	// CleanupStale removes rooms and entries past their age limits and
	// returns how many records it deleted.
	CleanupStale(ctx context.Context) (int, error)
}

// Limits are the age thresholds CleanupStale applies.
type Limits struct {
	RoomMaxAge         time.Duration
	MatchmakingTimeout time.Duration
}

// DefaultLimits: rooms live for 30 minutes, queue entries for 5.
var DefaultLimits = Limits{
	RoomMaxAge:         30 * time.Minute,
	MatchmakingTimeout: 5 * time.Minute,
}

// maxCodeAttempts bounds room code regeneration on collision.
const maxCodeAttempts = 16
