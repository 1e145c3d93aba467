// internal/poller/room.go
package poller

import (
	"context"
	"errors"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/sirupsen/logrus"
)

// RoomPoller watches single rooms.
type RoomPoller struct {
	src    RoomSource
	cfg    Config
	logger logrus.FieldLogger
}

func NewRoomPoller(src RoomSource, cfg Config, logger logrus.FieldLogger) *RoomPoller {
	cfg, logger = withDefaults(cfg, logger)
	return &RoomPoller{src: src, cfg: cfg, logger: logger}
}

// Watch fetches the room immediately and then every Interval, calling onChange
// with each snapshot that differs by value from the last one delivered.
//
// A room that cannot be found before it was ever observed is assumed to be
// not yet visible and polling continues silently. Once observed, a missing
// room is reported as a single nil snapshot and the watch ends.
//
// The returned function stops the watch. No callback runs for a fetch that
// resolves after it was called, and none starts after it returns.
func (p *RoomPoller) Watch(ctx context.Context, roomID string, onChange func(*models.Room)) func() {
	sub, ctx := newSubscription(ctx)
	log := p.logger.WithField("room", roomID)

	go func() {
		defer sub.Unsubscribe()
		var last *models.Room
		everObserved := false
		for {
			r, err := p.src.GetRoom(ctx, roomID)
			if !sub.active(ctx) {
				return
			}
			switch {
			case errors.Is(err, game.ErrRoomNotFound):
				if everObserved {
					log.Debug("room disappeared")
					sub.deliver(ctx, func() { onChange(nil) })
					return
				}
			case err != nil:
				log.WithError(err).Warn("room poll failed")
			default:
				everObserved = true
				if !last.Equal(r) {
					last = r.Clone()
					if !sub.deliver(ctx, func() { onChange(r) }) {
						return
					}
				}
			}
			if !sleep(ctx, p.cfg.Interval) {
				return
			}
		}
	}()

	return sub.Unsubscribe
}
