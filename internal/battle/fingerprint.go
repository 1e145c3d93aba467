// internal/battle/fingerprint.go
package battle

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/jason-s-yu/cardclash/internal/models"
)

// Fingerprint identifies one resolved battle: the room, both powers and the
// moment play started. Two snapshots of the same battle always agree on it.
// It returns "" for a snapshot that is not resolvable yet.
func Fingerprint(r *models.Room) string {
	if r == nil || r.HostPower == nil || r.GuestPower == nil || r.StartedAt == nil {
		return ""
	}
	h := sha256.New()
	for _, part := range []string{
		r.ID,
		strconv.Itoa(*r.HostPower),
		strconv.Itoa(*r.GuestPower),
		strconv.FormatInt(r.StartedAt.UnixNano(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
