package game

import (
	"crypto/rand"
	"math/big"
)

// RoomCodeLength is the number of characters in a room code.
const RoomCodeLength = 6

// codeAlphabet skips characters that are easy to misread when a code is read
// aloud or typed by hand (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewRoomCode returns a random, human-shareable room code.
func NewRoomCode() string {
	b := make([]byte, RoomCodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
