// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/sirupsen/logrus"
)

// Queue pairs players on top of a Store. All atomicity lives in the Store; the
// Queue adds logging and retry policy.
type Queue struct {
	store  store.Store
	logger logrus.FieldLogger
}

func NewQueue(s store.Store, logger logrus.FieldLogger) *Queue {
	return &Queue{store: s, logger: logger}
}

// Enqueue pairs the player with the oldest waiting opponent or queues them.
// It returns the room code, or "" when the player is now waiting.
func (q *Queue) Enqueue(ctx context.Context, player models.Participant) (string, error) {
	code, err := q.store.FindMatch(ctx, player)
	log := q.logger.WithField("player", player.Address)
	switch {
	case err != nil:
		log.WithError(err).Warn("enqueue failed")
		return "", err
	case code == "":
		log.Debug("waiting for opponent")
	default:
		log.WithField("room", code).Info("matched")
	}
	return code, nil
}

// Cancel withdraws a waiting entry. Matched or absent entries are untouched.
func (q *Queue) Cancel(ctx context.Context, player string) error {
	if err := q.store.CancelMatchmaking(ctx, player); err != nil {
		q.logger.WithError(err).WithField("player", player).Warn("cancel failed")
		return err
	}
	return nil
}

// Status returns the player's current entry.
func (q *Queue) Status(ctx context.Context, player string) (*models.MatchmakingEntry, error) {
	return q.store.GetMatchmakingStatus(ctx, player)
}

// IsRetryable reports whether err came from the store being unreachable or
// contended rather than from a rule of the game. Cancellation is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, store.ErrCodeSpaceExhausted) {
		return true
	}
	return !game.IsInvariant(err)
}

// EnqueueWithRetry calls Enqueue up to attempts times, sleeping backoff between
// retryable failures and doubling it each time.
func (q *Queue) EnqueueWithRetry(ctx context.Context, player models.Participant, attempts int, backoff time.Duration) (string, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		code, err := q.Enqueue(ctx, player)
		if err == nil {
			return code, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}
