// internal/auth/address.go
package auth

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned for anything that is not a 20-byte hex wallet
// address.
var ErrInvalidAddress = errors.New("invalid wallet address")

// NormalizeAddress validates a 0x-prefixed wallet address and returns it in
// mixed-case checksum form, so the same wallet always maps to the same player.
// Input that is already mixed case must carry a correct checksum.
func NormalizeAddress(addr string) (string, error) {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return "", ErrInvalidAddress
	}
	raw := addr[2:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", ErrInvalidAddress
	}
	sum := checksum(raw)
	if raw != strings.ToLower(raw) && raw != strings.ToUpper(raw) && "0x"+raw != sum {
		return "", ErrInvalidAddress
	}
	return sum, nil
}

// checksum applies the keccak-256 mixed-case encoding to a hex address body.
func checksum(raw string) string {
	lower := strings.ToLower(raw)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}
