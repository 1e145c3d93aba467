// internal/battle/controller.go
package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrSettlementFailed marks an outcome whose side effects did not all complete.
var ErrSettlementFailed = errors.New("could not complete transaction")

// Settlement moves value once a battle resolves. Amounts are its concern.
type Settlement interface {
	ChargeEntryFee(ctx context.Context, roomID, player string, mode models.Mode) error
	// ClaimWinReward is called for a win or a tie, never for a loss.
	ClaimWinReward(ctx context.Context, roomID, player string, mode models.Mode, tie bool) error
	RecordMatchResult(ctx context.Context, result models.MatchResult) error
}

// Notifier tells the player how the battle went.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}

// Finisher closes the room once a winner is known.
type Finisher interface {
	FinishRoom(ctx context.Context, roomID string, winner models.Side) error
}

// Outcome is the local player's view of a resolved battle. Err wraps
// ErrSettlementFailed when settlement stopped part way.
type Outcome struct {
	RoomID      string
	MatchKey    string
	Fingerprint string
	Mode        models.Mode
	Side        models.Side
	Opponent    string
	Winner      models.Side
	HostPower   int
	GuestPower  int
	Err         error
}

// Won reports an outright win for the local player.
func (o Outcome) Won() bool { return o.Winner == o.Side }

// Tie reports equal power.
func (o Outcome) Tie() bool { return o.Winner == models.SideTie }

// Controller turns room snapshots into exactly one settlement per battle for
// one player session. Snapshots may arrive duplicated, reordered or from
// several watchers at once.
type Controller struct {
	player     string
	settlement Settlement
	notifier   Notifier
	finisher   Finisher
	logger     logrus.FieldLogger
	timeout    time.Duration

	mu       sync.Mutex
	room     string
	seen     map[string]struct{} // fingerprints already handled in this room
	inflight map[string]*Outcome // settling right now, keyed by fingerprint
	wg       sync.WaitGroup
}

// NewController builds a controller for player. notifier and finisher may be
// nil.
func NewController(player string, settlement Settlement, notifier Notifier, finisher Finisher, logger logrus.FieldLogger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		player:     player,
		settlement: settlement,
		notifier:   notifier,
		finisher:   finisher,
		logger:     logger.WithField("player", player),
		timeout:    30 * time.Second,
		seen:       make(map[string]struct{}),
		inflight:   make(map[string]*Outcome),
	}
}

// EnterRoom starts a fresh battle context. Fingerprints from earlier rooms are
// forgotten.
func (c *Controller) EnterRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = roomID
	c.seen = make(map[string]struct{})
}

// Seen reports whether a fingerprint has been handled in the current room.
func (c *Controller) Seen(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[fingerprint]
	return ok
}

// HandleSnapshot inspects one room snapshot and starts settlement the first
// time a given battle is seen with both powers. It never blocks on settlement.
// It reports whether settlement was started.
func (c *Controller) HandleSnapshot(r *models.Room) bool {
	if r == nil || (r.Status != models.RoomPlaying && r.Status != models.RoomFinished) {
		return false
	}
	fp := Fingerprint(r)
	if fp == "" {
		return false
	}
	side, ok := r.SideOf(c.player)
	if !ok {
		c.logger.WithField("room", r.ID).Warn("snapshot for a room we are not seated in")
		return false
	}

	c.mu.Lock()
	if c.room != "" && c.room != r.ID {
		c.mu.Unlock()
		return false
	}
	if _, dup := c.seen[fp]; dup {
		c.mu.Unlock()
		return false
	}
	c.seen[fp] = struct{}{}
	opponent := r.Participant(models.SideGuest)
	if side == models.SideGuest {
		opponent = r.Participant(models.SideHost)
	}
	out := &Outcome{
		RoomID:      r.ID,
		MatchKey:    r.Key.String(),
		Fingerprint: fp,
		Mode:        r.Mode,
		Side:        side,
		Opponent:    opponent.Address,
		Winner:      game.DecideWinner(*r.HostPower, *r.GuestPower),
		HostPower:   *r.HostPower,
		GuestPower:  *r.GuestPower,
	}
	c.inflight[fp] = out
	c.wg.Add(1)
	c.mu.Unlock()

	go c.settle(r.Status, out)
	return true
}

// Wait blocks until every started settlement has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) settle(status models.RoomStatus, out *Outcome) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{"room": out.RoomID, "fingerprint": out.Fingerprint[:12]})

	if status == models.RoomPlaying && c.finisher != nil {
		err := c.finisher.FinishRoom(ctx, out.RoomID, out.Winner)
		// the opponent's client usually gets there first
		if err != nil && !errors.Is(err, game.ErrRoomNotPlaying) {
			log.WithError(err).Warn("finish room failed")
		}
	}

	if err := c.runSettlement(ctx, out); err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		log.WithError(err).Error("settlement failed")
	} else {
		log.WithField("winner", out.Winner).Info("battle settled")
	}

	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, *out); err != nil {
			log.WithError(err).Warn("notify failed")
		}
	}

	c.mu.Lock()
	delete(c.inflight, out.Fingerprint)
	c.mu.Unlock()
}

func (c *Controller) runSettlement(ctx context.Context, out *Outcome) error {
	if err := c.settlement.ChargeEntryFee(ctx, out.RoomID, c.player, out.Mode); err != nil {
		return fmt.Errorf("charge entry fee: %w", err)
	}
	if out.Won() || out.Tie() {
		if err := c.settlement.ClaimWinReward(ctx, out.RoomID, c.player, out.Mode, out.Tie()); err != nil {
			return fmt.Errorf("claim reward: %w", err)
		}
	}
	mine, theirs := out.HostPower, out.GuestPower
	if out.Side == models.SideGuest {
		mine, theirs = theirs, mine
	}
	result := models.MatchResult{
		MatchKey:    out.MatchKey,
		RoomID:      out.RoomID,
		Mode:        out.Mode,
		Player:      c.player,
		Opponent:    out.Opponent,
		Side:        out.Side,
		Winner:      out.Winner,
		PlayerPower: mine,
		OppPower:    theirs,
		Fingerprint: out.Fingerprint,
		ResolvedAt:  time.Now().UTC(),
	}
	if err := c.settlement.RecordMatchResult(ctx, result); err != nil {
		return fmt.Errorf("record match result: %w", err)
	}
	return nil
}

// Pending returns how many settlements are running.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
