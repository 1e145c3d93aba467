// internal/store/memory.go
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
)

// ErrCodeSpaceExhausted is returned when no free room code could be drawn.
var ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")

// MemoryStore keeps rooms and the matchmaking queue in process memory behind a
// single mutex, which makes every operation trivially serializable. It backs
// tests and single-node deployments.
type MemoryStore struct {
	mu         sync.Mutex
	rooms      map[string]*models.Room             // room code -> room
	playerRoom map[string]string                   // player address -> room code
	entries    map[string]*models.MatchmakingEntry // player address -> entry
	queue      []string                            // waiting addresses, oldest first

	limits  Limits
	now     func() time.Time
	newCode func() string
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithLimits overrides the cleanup thresholds.
func WithLimits(l Limits) MemoryOption {
	return func(s *MemoryStore) { s.limits = l }
}

// WithCodeGenerator overrides room code generation.
func WithCodeGenerator(gen func() string) MemoryOption {
	return func(s *MemoryStore) { s.newCode = gen }
}

// NewMemoryStore initializes an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		rooms:      make(map[string]*models.Room),
		playerRoom: make(map[string]string),
		entries:    make(map[string]*models.MatchmakingEntry),
		limits:     DefaultLimits,
		now:        time.Now,
		newCode:    game.NewRoomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) freeCodeUnsafe() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.newCode()
		if _, taken := s.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// seatedUnsafe reports whether the player holds a seat in a live room.
func (s *MemoryStore) seatedUnsafe(address string) bool {
	code, ok := s.playerRoom[address]
	if !ok {
		return false
	}
	r, ok := s.rooms[code]
	return ok && !r.Status.Terminal()
}

// withdrawUnsafe cancels a waiting entry, used when a queued player takes a
// seat through the direct room path.
func (s *MemoryStore) withdrawUnsafe(address string) {
	if e, ok := s.entries[address]; ok && e.Status == models.EntryWaiting {
		e.Status = models.EntryCancelled
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, host models.Participant, mode models.Mode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seatedUnsafe(host.Address) {
		return "", game.ErrAlreadyInRoom
	}
	code, err := s.freeCodeUnsafe()
	if err != nil {
		return "", err
	}
	r, err := game.NewRoom(code, host, mode, s.now())
	if err != nil {
		return "", err
	}
	s.rooms[code] = r
	s.playerRoom[host.Address] = code
	s.withdrawUnsafe(host.Address)
	return code, nil
}

func (s *MemoryStore) JoinRoom(_ context.Context, roomID string, guest models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	if s.seatedUnsafe(guest.Address) && s.playerRoom[guest.Address] != roomID {
		return game.ErrAlreadyInRoom
	}
	if err := game.Join(r, guest); err != nil {
		return err
	}
	s.playerRoom[guest.Address] = roomID
	s.withdrawUnsafe(guest.Address)
	return nil
}

func (s *MemoryStore) FindMatch(_ context.Context, player models.Participant) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if player.Address == "" {
		return "", game.ErrNotParticipant
	}
	if e, ok := s.entries[player.Address]; ok {
		switch e.Status {
		case models.EntryWaiting:
			return "", nil
		case models.EntryMatched:
			if r, ok := s.rooms[e.MatchedRoom]; ok && !r.Status.Terminal() {
				return e.MatchedRoom, nil
			}
		}
	}
	if s.seatedUnsafe(player.Address) {
		return "", game.ErrAlreadyInRoom
	}

	now := s.now()
	remaining := s.queue[:0:0]
	var opponent *models.MatchmakingEntry
	for _, addr := range s.queue {
		e, ok := s.entries[addr]
		if !ok || e.Status != models.EntryWaiting || addr == player.Address {
			continue
		}
		if opponent == nil {
			if s.seatedUnsafe(addr) {
				e.Status = models.EntryCancelled
				continue
			}
			opponent = e
			continue
		}
		remaining = append(remaining, addr)
	}

	if opponent == nil {
		s.entries[player.Address] = &models.MatchmakingEntry{
			Player:      player.Address,
			DisplayName: player.DisplayName,
			EnqueuedAt:  now,
			Status:      models.EntryWaiting,
		}
		s.queue = append(remaining, player.Address)
		return "", nil
	}

	code, err := s.freeCodeUnsafe()
	if err != nil {
		return "", err
	}
	host := models.Participant{Address: opponent.Player, DisplayName: opponent.DisplayName}
	r, err := game.NewMatchedRoom(code, host, player, now)
	if err != nil {
		return "", err
	}

	s.rooms[code] = r
	s.playerRoom[host.Address] = code
	s.playerRoom[player.Address] = code
	opponent.Status = models.EntryMatched
	opponent.MatchedRoom = code
	s.entries[player.Address] = &models.MatchmakingEntry{
		Player:      player.Address,
		DisplayName: player.DisplayName,
		EnqueuedAt:  now,
		Status:      models.EntryMatched,
		MatchedRoom: code,
	}
	s.queue = remaining
	return code, nil
}

func (s *MemoryStore) CancelMatchmaking(_ context.Context, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawUnsafe(player)
	return nil
}

func (s *MemoryStore) SubmitHand(_ context.Context, roomID string, side models.Side, hand []models.CardRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	return game.SubmitHand(r, side, hand, s.now())
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetRoomByPlayer(_ context.Context, player string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.playerRoom[player]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	r, ok := s.rooms[code]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetMatchmakingStatus(_ context.Context, player string) (*models.MatchmakingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[player]
	if !ok {
		return nil, game.ErrEntryNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) LeaveRoom(_ context.Context, roomID string, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	if _, err := game.Leave(r, player); err != nil {
		return err
	}
	if s.playerRoom[player] == roomID {
		delete(s.playerRoom, player)
	}
	return nil
}

func (s *MemoryStore) FinishRoom(_ context.Context, roomID string, winner models.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	return game.Finish(r, winner, s.now())
}

func (s *MemoryStore) CleanupStale(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, r := range s.rooms {
		if now.Sub(r.CreatedAt) < s.limits.RoomMaxAge {
			continue
		}
		delete(s.rooms, code)
		removed++
		for addr, c := range s.playerRoom {
			if c == code {
				delete(s.playerRoom, addr)
			}
		}
	}
	for addr, e := range s.entries {
		if now.Sub(e.EnqueuedAt) < s.limits.MatchmakingTimeout {
			continue
		}
		delete(s.entries, addr)
		removed++
	}
	if removed > 0 {
		live := s.queue[:0:0]
		for _, addr := range s.queue {
			if _, ok := s.entries[addr]; ok {
				live = append(live, addr)
			}
		}
		s.queue = live
	}
	return removed, nil
}
