package models

import "math"

// MaxHandSize is the largest hand a side may submit.
const MaxHandSize = 5

// MaxCardPower bounds a single card so a full hand still fits the 32-bit
// power columns of the results table.
const MaxCardPower = math.MaxInt32 / MaxHandSize

// CardRef references a card owned by the submitting player. Power is resolved by
// the inventory service before submission and is trusted as-is here.
type CardRef struct {
	ID    string `json:"id"`
	Power int    `json:"power"`
}

// HandPower sums the power of every card in the hand.
func HandPower(hand []CardRef) int {
	total := 0
	for _, c := range hand {
		total += c.Power
	}
	return total
}

func cloneHand(hand []CardRef) []CardRef {
	if hand == nil {
		return nil
	}
	out := make([]CardRef, len(hand))
	copy(out, hand)
	return out
}

func handsEqual(a, b []CardRef) bool {
	if (a == nil) != (b == nil) || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
