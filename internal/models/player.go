package models

// Participant is one seat in a room. Address is the player's wallet address and
// is the identity used everywhere a player is referenced.
type Participant struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}
