// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomReady     RoomStatus = "ready"
	RoomPlaying   RoomStatus = "playing"
	RoomFinished  RoomStatus = "finished"
	RoomCancelled RoomStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RoomStatus) Terminal() bool {
	return s == RoomFinished || s == RoomCancelled
}

// Rank orders the non-cancelled statuses. Cancelled ranks above everything so
// that an observed status sequence is always non-decreasing.
func (s RoomStatus) Rank() int {
	switch s {
	case RoomWaiting:
		return 0
	case RoomReady:
		return 1
	case RoomPlaying:
		return 2
	case RoomFinished:
		return 3
	case RoomCancelled:
		return 4
	}
	return -1
}

type Mode string

const (
	ModeRanked Mode = "ranked"
	ModeCasual Mode = "casual"
)

func (m Mode) Valid() bool {
	return m == ModeRanked || m == ModeCasual
}

// Side names a seat. SideTie is only ever stored as a Winner.
type Side string

const (
	SideHost  Side = "host"
	SideGuest Side = "guest"
	SideTie   Side = "tie"
)

// Room is the authoritative record of one pairing and its battle state.
// ID is the short code players share; Key is the storage identifier.
type Room struct {
	ID     string     `json:"id"`
	Key    uuid.UUID  `json:"key"`
	Status RoomStatus `json:"status"`
	Mode   Mode       `json:"mode"`

	Host  Participant  `json:"host"`
	Guest *Participant `json:"guest,omitempty"`

	HostHand   []CardRef `json:"hostHand,omitempty"`
	GuestHand  []CardRef `json:"guestHand,omitempty"`
	HostPower  *int      `json:"hostPower,omitempty"`
	GuestPower *int      `json:"guestPower,omitempty"`

	Winner *Side `json:"winner,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// SideOf returns the seat held by address, if any.
func (r *Room) SideOf(address string) (Side, bool) {
	if r.Host.Address == address {
		return SideHost, true
	}
	if r.Guest != nil && r.Guest.Address == address {
		return SideGuest, true
	}
	return "", false
}

// Participant returns who holds the given seat.
func (r *Room) Participant(side Side) *Participant {
	switch side {
	case SideHost:
		p := r.Host
		return &p
	case SideGuest:
		if r.Guest == nil {
			return nil
		}
		p := *r.Guest
		return &p
	}
	return nil
}

// Hand returns the hand submitted for a seat, nil if absent.
func (r *Room) Hand(side Side) []CardRef {
	if side == SideHost {
		return r.HostHand
	}
	return r.GuestHand
}

// BothHands reports whether both seats have submitted.
func (r *Room) BothHands() bool {
	return r.HostHand != nil && r.GuestHand != nil
}

// Clone returns a deep copy safe to hand to callers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Guest != nil {
		g := *r.Guest
		c.Guest = &g
	}
	c.HostHand = cloneHand(r.HostHand)
	c.GuestHand = cloneHand(r.GuestHand)
	c.HostPower = cloneInt(r.HostPower)
	c.GuestPower = cloneInt(r.GuestPower)
	if r.Winner != nil {
		w := *r.Winner
		c.Winner = &w
	}
	c.StartedAt = cloneTime(r.StartedAt)
	c.FinishedAt = cloneTime(r.FinishedAt)
	return &c
}

// Equal compares two snapshots by value. Timestamps compare by instant.
func (r *Room) Equal(o *Room) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.Key != o.Key || r.Status != o.Status || r.Mode != o.Mode || r.Host != o.Host {
		return false
	}
	if (r.Guest == nil) != (o.Guest == nil) || (r.Guest != nil && *r.Guest != *o.Guest) {
		return false
	}
	if !handsEqual(r.HostHand, o.HostHand) || !handsEqual(r.GuestHand, o.GuestHand) {
		return false
	}
	if !intPtrEqual(r.HostPower, o.HostPower) || !intPtrEqual(r.GuestPower, o.GuestPower) {
		return false
	}
	if (r.Winner == nil) != (o.Winner == nil) || (r.Winner != nil && *r.Winner != *o.Winner) {
		return false
	}
	return r.CreatedAt.Equal(o.CreatedAt) &&
		timePtrEqual(r.StartedAt, o.StartedAt) &&
		timePtrEqual(r.FinishedAt, o.FinishedAt)
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
