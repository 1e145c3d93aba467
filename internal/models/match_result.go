package models

import "time"

// MatchResult is one player's view of a resolved battle. Both participants
// record their own row; (MatchKey, Player) is unique. MatchKey is the room's
// storage key, RoomID the code players saw, which may be reissued later.
type MatchResult struct {
	MatchKey    string    `json:"match_key"`
	RoomID      string    `json:"room_id"`
	Mode        Mode      `json:"mode"`
	Player      string    `json:"player"`
	Opponent    string    `json:"opponent"`
	Side        Side      `json:"side"`
	Winner      Side      `json:"winner"`
	PlayerPower int       `json:"player_power"`
	OppPower    int       `json:"opponent_power"`
	Fingerprint string    `json:"fingerprint"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Won reports whether the recording player won outright.
func (m MatchResult) Won() bool {
	return m.Winner == m.Side
}
