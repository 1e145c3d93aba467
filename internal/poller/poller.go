// Package poller turns the request/response backend into change notifications.
// Every watcher runs one goroutine that issues the next fetch only after the
// previous one resolved, so a slow backend is never hit by overlapping ticks.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/sirupsen/logrus"
)

// RoomSource is the read side of the room store the pollers need.
type RoomSource interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// MatchmakingSource resolves queue entries and the rooms they lead to.
type MatchmakingSource interface {
	GetMatchmakingStatus(ctx context.Context, player string) (*models.MatchmakingEntry, error)
	GetRoomByPlayer(ctx context.Context, player string) (*models.Room, error)
}

// Config holds the polling cadence.
type Config struct {
	Interval            time.Duration
	AcceleratedInterval time.Duration
	AcceleratedAttempts int
}

// DefaultConfig polls once a second and, once matched, retries room
// resolution every 500ms up to 15 times.
var DefaultConfig = Config{
	Interval:            time.Second,
	AcceleratedInterval: 500 * time.Millisecond,
	AcceleratedAttempts: 15,
}

// subscription is the cancellation handle shared by both watchers. mu is held
// from the active check through the end of a callback.
type subscription struct {
	once       sync.Once
	stopped    atomic.Bool
	cancel     context.CancelFunc
	mu         sync.Mutex
	inCallback atomic.Bool
}

// testHookBeforeCallback runs between the active check and the callback.
var testHookBeforeCallback = func() {}

func newSubscription(parent context.Context) (*subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &subscription{cancel: cancel}, ctx
}

// Unsubscribe is idempotent and safe to call from inside a callback. Called
// from elsewhere it waits for a delivery that already passed its check, so no
// callback starts after it returns.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
	if s.inCallback.Load() {
		return
	}
	// wait out a delivery that passed its check
	s.mu.Lock()
	defer s.mu.Unlock()
}

func (s *subscription) active(ctx context.Context) bool {
	return !s.stopped.Load() && ctx.Err() == nil
}

// deliver runs fn unless the subscription ended, reporting whether it ran.
func (s *subscription) deliver(ctx context.Context, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active(ctx) {
		return false
	}
	testHookBeforeCallback()
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
	return true
}

// sleep waits d or until ctx ends, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func withDefaults(c Config, logger logrus.FieldLogger) (Config, logrus.FieldLogger) {
	if c.Interval <= 0 {
		c.Interval = DefaultConfig.Interval
	}
	if c.AcceleratedInterval <= 0 {
		c.AcceleratedInterval = DefaultConfig.AcceleratedInterval
	}
	if c.AcceleratedAttempts <= 0 {
		c.AcceleratedAttempts = DefaultConfig.AcceleratedAttempts
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return c, logger
}
