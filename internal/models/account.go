package models

// Account is a player's ledger row: spendable coins plus the 1v1 Glicko-2
// rating used for ranked rooms.
type Account struct {
	Address string `json:"address"`
	Coins   int64  `json:"coins"`

	Elo   int     `json:"elo"`
	Phi   float64 `json:"phi"`
	Sigma float64 `json:"sigma"`
}
