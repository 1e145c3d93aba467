// internal/game/errors.go
package game

import "errors"

// Invariant violations. Each carries a stable code so it survives a round trip
// over the HTTP API (see Code and FromCode).
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrEntryNotFound        = errors.New("matchmaking entry not found")
	ErrRoomFull             = errors.New("room already has a guest")
	ErrRoomNotWaiting       = errors.New("room is not accepting players")
	ErrRoomTerminal         = errors.New("room is finished or cancelled")
	ErrRoomNotPlaying       = errors.New("room is not in play")
	ErrRoomInProgress       = errors.New("battle already in progress")
	ErrHandAlreadySubmitted = errors.New("hand already submitted")
	ErrInvalidHand          = errors.New("invalid hand")
	ErrInvalidMode          = errors.New("invalid room mode")
	ErrInvalidWinner        = errors.New("invalid winner")
	ErrNotParticipant       = errors.New("player is not seated in this room")
	ErrAlreadyInRoom        = errors.New("player is already seated in a room")
)

var codes = map[error]string{
	ErrRoomNotFound:         "room_not_found",
	ErrEntryNotFound:        "entry_not_found",
	ErrRoomFull:             "room_full",
	ErrRoomNotWaiting:       "room_not_waiting",
	ErrRoomTerminal:         "room_terminal",
	ErrRoomNotPlaying:       "room_not_playing",
	ErrRoomInProgress:       "room_in_progress",
	ErrHandAlreadySubmitted: "hand_already_submitted",
	ErrInvalidHand:          "invalid_hand",
	ErrInvalidMode:          "invalid_mode",
	ErrInvalidWinner:        "invalid_winner",
	ErrNotParticipant:       "not_participant",
	ErrAlreadyInRoom:        "already_in_room",
}

// Code returns the wire code of the invariant error wrapped by err, or "".
func Code(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// FromCode maps a wire code back to its sentinel, nil if unknown.
func FromCode(code string) error {
	for sentinel, c := range codes {
		if c == code {
			return sentinel
		}
	}
	return nil
}

// IsInvariant reports whether err is a named invariant violation rather than a
// transport or storage failure.
func IsInvariant(err error) bool {
	return Code(err) != ""
}
