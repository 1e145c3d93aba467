// internal/cache/room_store.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrContention is returned when an optimistic transaction kept losing races
// past the retry budget. Callers may retry.
var ErrContention = errors.New("room store contention, retry later")

const (
	defaultTxRetries = 64
	maxCodeAttempts  = 16
)

// RoomStore is a store.Store kept in Redis. Every mutation runs as a
// WATCH/MULTI/EXEC transaction over the keys it reads, so concurrent callers on
// any number of servers observe serializable behaviour.
type RoomStore struct {
	rdb       *redis.Client
	limits    store.Limits
	now       func() time.Time
	newCode   func() string
	txRetries int
}

var _ store.Store = (*RoomStore)(nil)

// RoomStoreOption customises a RoomStore.
type RoomStoreOption func(*RoomStore)

func WithClock(now func() time.Time) RoomStoreOption {
	return func(s *RoomStore) { s.now = now }
}

func WithLimits(l store.Limits) RoomStoreOption {
	return func(s *RoomStore) { s.limits = l }
}

func WithCodeGenerator(gen func() string) RoomStoreOption {
	return func(s *RoomStore) { s.newCode = gen }
}

// NewRoomStore wraps a connected client.
func NewRoomStore(rdb *redis.Client, opts ...RoomStoreOption) *RoomStore {
	s := &RoomStore{
		rdb:       rdb,
		limits:    store.DefaultLimits,
		now:       time.Now,
		newCode:   game.NewRoomCode,
		txRetries: defaultTxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// atomically runs fn under WATCH on keys, retrying when another client touched
// a watched key before EXEC.
func (s *RoomStore) atomically(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < s.txRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(rand.Intn(3)+1) * time.Millisecond):
		}
	}
	return ErrContention
}

func getJSON(ctx context.Context, tx *redis.Tx, key string, v interface{}) (bool, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "get %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, eris.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// loadRoom watches and reads a room.
func loadRoom(ctx context.Context, tx *redis.Tx, code string) (*models.Room, error) {
	if err := tx.Watch(ctx, roomKey(code)).Err(); err != nil {
		return nil, eris.Wrap(err, "watch room")
	}
	var r models.Room
	found, err := getJSON(ctx, tx, roomKey(code), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, game.ErrRoomNotFound
	}
	return &r, nil
}

// seated watches the player's room index and reports whether it points at a
// live room other than except.
func seated(ctx context.Context, tx *redis.Tx, addr, except string) (bool, error) {
	if err := tx.Watch(ctx, playerRoomKey(addr)).Err(); err != nil {
		return false, eris.Wrap(err, "watch player")
	}
	code, err := tx.Get(ctx, playerRoomKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "get player room")
	}
	if code == except {
		return false, nil
	}
	r, err := loadRoom(ctx, tx, code)
	if errors.Is(err, game.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !r.Status.Terminal(), nil
}

func loadEntry(ctx context.Context, tx *redis.Tx, addr string) (*models.MatchmakingEntry, error) {
	if err := tx.Watch(ctx, entryKey(addr)).Err(); err != nil {
		return nil, eris.Wrap(err, "watch entry")
	}
	var e models.MatchmakingEntry
	found, err := getJSON(ctx, tx, entryKey(addr), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// freeCode draws codes until one has no room behind it. The chosen key stays
// watched so a concurrent claim aborts this transaction.
func (s *RoomStore) freeCode(ctx context.Context, tx *redis.Tx) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.newCode()
		if err := tx.Watch(ctx, roomKey(code)).Err(); err != nil {
			return "", eris.Wrap(err, "watch code")
		}
		n, err := tx.Exists(ctx, roomKey(code)).Result()
		if err != nil {
			return "", eris.Wrap(err, "check code")
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", store.ErrCodeSpaceExhausted
}

// withdraw queues a cancel of a waiting entry inside pipe.
func withdraw(ctx context.Context, pipe redis.Pipeliner, e *models.MatchmakingEntry) {
	if e == nil || e.Status != models.EntryWaiting {
		return
	}
	c := *e
	c.Status = models.EntryCancelled
	pipe.Set(ctx, entryKey(c.Player), mustJSON(c), 0)
	pipe.LRem(ctx, queueKey(), 0, c.Player)
}

func (s *RoomStore) CreateRoom(ctx context.Context, host models.Participant, mode models.Mode) (string, error) {
	var code string
	err := s.atomically(ctx, func(tx *redis.Tx) error {
		busy, err := seated(ctx, tx, host.Address, "")
		if err != nil {
			return err
		}
		if busy {
			return game.ErrAlreadyInRoom
		}
		entry, err := loadEntry(ctx, tx, host.Address)
		if err != nil {
			return err
		}
		code, err = s.freeCode(ctx, tx)
		if err != nil {
			return err
		}
		r, err := game.NewRoom(code, host, mode, s.now())
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(code), mustJSON(r), 0)
			pipe.ZAdd(ctx, roomIndexKey(), redis.Z{Score: score(r.CreatedAt), Member: code})
			pipe.Set(ctx, playerRoomKey(host.Address), code, 0)
			withdraw(ctx, pipe, entry)
			return nil
		})
		return err
	}, playerRoomKey(host.Address))
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *RoomStore) JoinRoom(ctx context.Context, roomID string, guest models.Participant) error {
	return s.atomically(ctx, func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		busy, err := seated(ctx, tx, guest.Address, roomID)
		if err != nil {
			return err
		}
		if busy {
			return game.ErrAlreadyInRoom
		}
		entry, err := loadEntry(ctx, tx, guest.Address)
		if err != nil {
			return err
		}
		if err := game.Join(r, guest); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(roomID), mustJSON(r), 0)
			pipe.Set(ctx, playerRoomKey(guest.Address), roomID, 0)
			withdraw(ctx, pipe, entry)
			return nil
		})
		return err
	}, roomKey(roomID))
}

func (s *RoomStore) FindMatch(ctx context.Context, player models.Participant) (string, error) {
	if player.Address == "" {
		return "", game.ErrNotParticipant
	}
	var matched string
	err := s.atomically(ctx, func(tx *redis.Tx) error {
		matched = ""
		own, err := loadEntry(ctx, tx, player.Address)
		if err != nil {
			return err
		}
		if own != nil {
			switch own.Status {
			case models.EntryWaiting:
				return nil
			case models.EntryMatched:
				r, err := loadRoom(ctx, tx, own.MatchedRoom)
				if err != nil && !errors.Is(err, game.ErrRoomNotFound) {
					return err
				}
				if r != nil && !r.Status.Terminal() {
					matched = own.MatchedRoom
					return nil
				}
			}
		}
		busy, err := seated(ctx, tx, player.Address, "")
		if err != nil {
			return err
		}
		if busy {
			return game.ErrAlreadyInRoom
		}

		queued, err := tx.LRange(ctx, queueKey(), 0, -1).Result()
		if err != nil {
			return eris.Wrap(err, "read queue")
		}
		var (
			opponent *models.MatchmakingEntry
			stale    []*models.MatchmakingEntry
		)
		for _, addr := range queued {
			if addr == player.Address {
				continue
			}
			e, err := loadEntry(ctx, tx, addr)
			if err != nil {
				return err
			}
			if e == nil || e.Status != models.EntryWaiting {
				continue
			}
			candidateBusy, err := seated(ctx, tx, addr, "")
			if err != nil {
				return err
			}
			if candidateBusy {
				stale = append(stale, e)
				continue
			}
			opponent = e
			break
		}

		now := s.now()
		if opponent == nil {
			e := models.MatchmakingEntry{
				Player:      player.Address,
				DisplayName: player.DisplayName,
				EnqueuedAt:  now,
				Status:      models.EntryWaiting,
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, st := range stale {
					withdraw(ctx, pipe, st)
				}
				pipe.Set(ctx, entryKey(player.Address), mustJSON(e), 0)
				pipe.ZAdd(ctx, entryIndexKey(), redis.Z{Score: score(now), Member: player.Address})
				pipe.LRem(ctx, queueKey(), 0, player.Address)
				pipe.RPush(ctx, queueKey(), player.Address)
				return nil
			})
			return err
		}

		code, err := s.freeCode(ctx, tx)
		if err != nil {
			return err
		}
		host := models.Participant{Address: opponent.Player, DisplayName: opponent.DisplayName}
		r, err := game.NewMatchedRoom(code, host, player, now)
		if err != nil {
			return err
		}
		theirs := *opponent
		theirs.Status = models.EntryMatched
		theirs.MatchedRoom = code
		mine := models.MatchmakingEntry{
			Player:      player.Address,
			DisplayName: player.DisplayName,
			EnqueuedAt:  now,
			Status:      models.EntryMatched,
			MatchedRoom: code,
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, st := range stale {
				withdraw(ctx, pipe, st)
			}
			pipe.Set(ctx, roomKey(code), mustJSON(r), 0)
			pipe.ZAdd(ctx, roomIndexKey(), redis.Z{Score: score(now), Member: code})
			pipe.Set(ctx, playerRoomKey(host.Address), code, 0)
			pipe.Set(ctx, playerRoomKey(player.Address), code, 0)
			pipe.Set(ctx, entryKey(host.Address), mustJSON(theirs), 0)
			pipe.Set(ctx, entryKey(player.Address), mustJSON(mine), 0)
			pipe.ZAdd(ctx, entryIndexKey(), redis.Z{Score: score(now), Member: player.Address})
			pipe.LRem(ctx, queueKey(), 0, host.Address)
			pipe.LRem(ctx, queueKey(), 0, player.Address)
			return nil
		})
		if err == nil {
			matched = code
		}
		return err
	}, queueKey())
	if err != nil {
		return "", err
	}
	return matched, nil
}

func (s *RoomStore) CancelMatchmaking(ctx context.Context, player string) error {
	return s.atomically(ctx, func(tx *redis.Tx) error {
		e, err := loadEntry(ctx, tx, player)
		if err != nil || e == nil || e.Status != models.EntryWaiting {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			withdraw(ctx, pipe, e)
			return nil
		})
		return err
	}, entryKey(player))
}

// mutateRoom loads a room, applies fn and writes it back atomically.
func (s *RoomStore) mutateRoom(ctx context.Context, roomID string, fn func(r *models.Room) error) error {
	return s.atomically(ctx, func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(roomID), mustJSON(r), 0)
			return nil
		})
		return err
	}, roomKey(roomID))
}

func (s *RoomStore) SubmitHand(ctx context.Context, roomID string, side models.Side, hand []models.CardRef) error {
	return s.mutateRoom(ctx, roomID, func(r *models.Room) error {
		return game.SubmitHand(r, side, hand, s.now())
	})
}

func (s *RoomStore) FinishRoom(ctx context.Context, roomID string, winner models.Side) error {
	return s.mutateRoom(ctx, roomID, func(r *models.Room) error {
		return game.Finish(r, winner, s.now())
	})
}

func (s *RoomStore) LeaveRoom(ctx context.Context, roomID string, player string) error {
	return s.atomically(ctx, func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if _, err := game.Leave(r, player); err != nil {
			return err
		}
		current, err := tx.Get(ctx, playerRoomKey(player)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return eris.Wrap(err, "get player room")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(roomID), mustJSON(r), 0)
			if current == roomID {
				pipe.Del(ctx, playerRoomKey(player))
			}
			return nil
		})
		return err
	}, roomKey(roomID), playerRoomKey(player))
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	data, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "get room")
	}
	var r models.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "decode room")
	}
	return &r, nil
}

func (s *RoomStore) GetRoomByPlayer(ctx context.Context, player string) (*models.Room, error) {
	code, err := s.rdb.Get(ctx, playerRoomKey(player)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "get player room")
	}
	return s.GetRoom(ctx, code)
}

func (s *RoomStore) GetMatchmakingStatus(ctx context.Context, player string) (*models.MatchmakingEntry, error) {
	data, err := s.rdb.Get(ctx, entryKey(player)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, game.ErrEntryNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "get entry")
	}
	var e models.MatchmakingEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "decode entry")
	}
	return &e, nil
}

// CleanupStale deletes each stale record in its own small transaction, so it
// never blocks live traffic for long and is safe to run from several servers.
func (s *RoomStore) CleanupStale(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0

	roomCutoff := strconv.FormatInt(now.Add(-s.limits.RoomMaxAge).UnixMilli(), 10)
	codes, err := s.rdb.ZRangeByScore(ctx, roomIndexKey(), &redis.ZRangeBy{Min: "-inf", Max: roomCutoff}).Result()
	if err != nil {
		return 0, eris.Wrap(err, "scan room index")
	}
	for _, code := range codes {
		deleted, err := s.deleteRoom(ctx, code)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}

	entryCutoff := strconv.FormatInt(now.Add(-s.limits.MatchmakingTimeout).UnixMilli(), 10)
	addrs, err := s.rdb.ZRangeByScore(ctx, entryIndexKey(), &redis.ZRangeBy{Min: "-inf", Max: entryCutoff}).Result()
	if err != nil {
		return removed, eris.Wrap(err, "scan entry index")
	}
	for _, addr := range addrs {
		deleted, err := s.deleteEntry(ctx, addr, now)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

func (s *RoomStore) deleteRoom(ctx context.Context, code string) (bool, error) {
	deleted := false
	err := s.atomically(ctx, func(tx *redis.Tx) error {
		deleted = false
		r, err := loadRoom(ctx, tx, code)
		if errors.Is(err, game.ErrRoomNotFound) {
			return tx.ZRem(ctx, roomIndexKey(), code).Err()
		}
		if err != nil {
			return err
		}
		var release []string
		for _, p := range []*models.Participant{r.Participant(models.SideHost), r.Participant(models.SideGuest)} {
			if p == nil {
				continue
			}
			if err := tx.Watch(ctx, playerRoomKey(p.Address)).Err(); err != nil {
				return eris.Wrap(err, "watch player")
			}
			current, err := tx.Get(ctx, playerRoomKey(p.Address)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return eris.Wrap(err, "get player room")
			}
			if current == code {
				release = append(release, playerRoomKey(p.Address))
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, roomKey(code))
			pipe.ZRem(ctx, roomIndexKey(), code)
			if len(release) > 0 {
				pipe.Del(ctx, release...)
			}
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, roomKey(code))
	return deleted, err
}

func (s *RoomStore) deleteEntry(ctx context.Context, addr string, now time.Time) (bool, error) {
	deleted := false
	err := s.atomically(ctx, func(tx *redis.Tx) error {
		deleted = false
		e, err := loadEntry(ctx, tx, addr)
		if err != nil {
			return err
		}
		if e == nil {
			return tx.ZRem(ctx, entryIndexKey(), addr).Err()
		}
		// re-enqueued since the index was scanned
		if now.Sub(e.EnqueuedAt) < s.limits.MatchmakingTimeout {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, entryKey(addr))
			pipe.ZRem(ctx, entryIndexKey(), addr)
			pipe.LRem(ctx, queueKey(), 0, addr)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, entryKey(addr))
	return deleted, err
}
