// internal/poller/matchmaking.go
package poller

import (
	"context"
	"errors"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/sirupsen/logrus"
)

// MatchmakingPoller waits for a queued player to be paired.
type MatchmakingPoller struct {
	src    MatchmakingSource
	cfg    Config
	logger logrus.FieldLogger
}

func NewMatchmakingPoller(src MatchmakingSource, cfg Config, logger logrus.FieldLogger) *MatchmakingPoller {
	cfg, logger = withDefaults(cfg, logger)
	return &MatchmakingPoller{src: src, cfg: cfg, logger: logger}
}

// Watch polls the player's entry and calls onResult exactly once: with the
// room id when the match resolves to a room, or with "" when the entry was
// cancelled, swept, or the matched room never became visible.
//
// A matched entry may be visible before its room is readable from every
// replica, so resolution switches to the accelerated cadence and gives up
// after AcceleratedAttempts further tries.
func (p *MatchmakingPoller) Watch(ctx context.Context, player string, onResult func(roomID string)) func() {
	sub, ctx := newSubscription(ctx)
	log := p.logger.WithField("player", player)

	deliver := func(roomID string) {
		sub.deliver(ctx, func() { onResult(roomID) })
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			e, err := p.src.GetMatchmakingStatus(ctx, player)
			if !sub.active(ctx) {
				return
			}
			switch {
			case errors.Is(err, game.ErrEntryNotFound):
				log.Debug("matchmaking entry gone")
				deliver("")
				return
			case err != nil:
				log.WithError(err).Warn("matchmaking poll failed")
			case e.Status == models.EntryCancelled:
				deliver("")
				return
			case e.Status == models.EntryMatched:
				roomID := p.resolve(ctx, sub, player, e.MatchedRoom, log)
				if roomID == "" {
					log.WithField("room", e.MatchedRoom).Warn("matched room never resolved")
				}
				deliver(roomID)
				return
			}
			if !sleep(ctx, p.cfg.Interval) {
				return
			}
		}
	}()

	return sub.Unsubscribe
}

// resolve looks the player's room up until it matches the expected code.
func (p *MatchmakingPoller) resolve(ctx context.Context, sub *subscription, player, expected string, log logrus.FieldLogger) string {
	for attempt := 0; attempt <= p.cfg.AcceleratedAttempts; attempt++ {
		if attempt > 0 && !sleep(ctx, p.cfg.AcceleratedInterval) {
			return ""
		}
		r, err := p.src.GetRoomByPlayer(ctx, player)
		if !sub.active(ctx) {
			return ""
		}
		if err != nil {
			if !errors.Is(err, game.ErrRoomNotFound) {
				log.WithError(err).Debug("room lookup failed")
			}
			continue
		}
		if r.ID == expected {
			return r.ID
		}
	}
	return ""
}
