package models

import "time"

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryMatched   EntryStatus = "matched"
	EntryCancelled EntryStatus = "cancelled"
)

// MatchmakingEntry is a queued intent to be paired. MatchedRoom is set iff
// Status is EntryMatched.
type MatchmakingEntry struct {
	Player      string      `json:"player"`
	DisplayName string      `json:"displayName"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
	Status      EntryStatus `json:"status"`
	MatchedRoom string      `json:"matchedRoom,omitempty"`
}
