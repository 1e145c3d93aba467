package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/cardclash/internal/models"
)

// parseHand reads "id:power,id:power". Validation beyond syntax is left to
// the server.
func parseHand(s string) ([]models.CardRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty hand")
	}
	var hand []models.CardRef
	for _, part := range strings.Split(s, ",") {
		id, power, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("card %q is not id:power", part)
		}
		p, err := strconv.Atoi(power)
		if err != nil {
			return nil, fmt.Errorf("card %s: bad power %q", id, power)
		}
		hand = append(hand, models.CardRef{ID: id, Power: p})
	}
	return hand, nil
}
