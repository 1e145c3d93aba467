// internal/client/session.go
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/cardclash/internal/battle"
	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/poller"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoMatch is returned when the queue entry ended without a room.
	ErrNoMatch = errors.New("matchmaking ended without a room")
	// ErrRoomClosed is returned when the room was cancelled or removed before
	// the battle resolved.
	ErrRoomClosed = errors.New("room closed before the battle resolved")
)

// Session is one logged in player going through matchmaking and battles. It
// wires the pollers and the battle controller on top of a Client.
type Session struct {
	client     *Client
	rooms      *poller.RoomPoller
	matches    *poller.MatchmakingPoller
	controller *battle.Controller
	logger     logrus.FieldLogger

	// OnRoom, when set, sees every room snapshot Play observes.
	OnRoom func(*models.Room)
	// Notifier, when set, is told about every outcome as well.
	Notifier battle.Notifier

	mu       sync.Mutex
	outcomes chan battle.Outcome
}

// NewSession builds a session for a client that has already logged in.
func NewSession(c *Client, cfg poller.Config, logger logrus.FieldLogger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Session{
		client:  c,
		rooms:   poller.NewRoomPoller(c, cfg, logger),
		matches: poller.NewMatchmakingPoller(c, cfg, logger),
		logger:  logger.WithField("player", c.Address),
	}
	s.controller = battle.NewController(c.Address, c, s, c, logger)
	return s
}

// Controller exposes the battle controller, mainly so callers can Wait on
// settlements still running.
func (s *Session) Controller() *battle.Controller {
	return s.controller
}

// Notify implements battle.Notifier by handing the outcome to Play.
func (s *Session) Notify(ctx context.Context, outcome battle.Outcome) error {
	s.mu.Lock()
	ch := s.outcomes
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- outcome:
		default:
		}
	}
	if s.Notifier != nil {
		return s.Notifier.Notify(ctx, outcome)
	}
	return nil
}

// FindOpponent queues the player and blocks until a room is assigned. If ctx
// ends first the queue entry is withdrawn.
func (s *Session) FindOpponent(ctx context.Context) (string, error) {
	code, err := s.client.FindMatch(ctx)
	if err != nil {
		return "", err
	}
	if code != "" {
		return code, nil
	}
	s.logger.Info("waiting for an opponent")

	result := make(chan string, 1)
	stop := s.matches.Watch(ctx, s.client.Address, func(roomID string) {
		result <- roomID
	})
	defer stop()

	select {
	case roomID := <-result:
		if roomID == "" {
			return "", ErrNoMatch
		}
		return roomID, nil
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.CancelMatchmaking(cctx); err != nil && !errors.Is(err, game.ErrEntryNotFound) {
			s.logger.WithError(err).Warn("failed to withdraw from matchmaking")
		}
		return "", ctx.Err()
	}
}

// Play submits hand to roomID and watches the room until this player's
// outcome has been settled. A hand submitted earlier in the same room is kept.
func (s *Session) Play(ctx context.Context, roomID string, hand []models.CardRef) (battle.Outcome, error) {
	outcomes := make(chan battle.Outcome, 1)
	s.mu.Lock()
	s.outcomes = outcomes
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.outcomes = nil
		s.mu.Unlock()
	}()

	s.controller.EnterRoom(roomID)
	if _, err := s.client.SubmitHand(ctx, roomID, hand); err != nil && !errors.Is(err, game.ErrHandAlreadySubmitted) {
		return battle.Outcome{}, err
	}

	closed := make(chan struct{})
	var once sync.Once
	stop := s.rooms.Watch(ctx, roomID, func(r *models.Room) {
		if s.OnRoom != nil {
			s.OnRoom(r)
		}
		if r == nil || r.Status == models.RoomCancelled {
			once.Do(func() { close(closed) })
			return
		}
		s.controller.HandleSnapshot(r)
	})
	defer stop()

	for {
		select {
		case out := <-outcomes:
			if out.RoomID == roomID {
				return out, out.Err
			}
		case <-closed:
			return battle.Outcome{}, ErrRoomClosed
		case <-ctx.Done():
			return battle.Outcome{}, ctx.Err()
		}
	}
}
