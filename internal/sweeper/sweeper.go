// internal/sweeper/sweeper.go
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// DefaultInterval between sweeps.
const DefaultInterval = 2 * time.Minute

// Cleaner deletes expired rooms and queue entries. store.Store satisfies it.
type Cleaner interface {
	CleanupStale(ctx context.Context) (int, error)
}

// Sweeper runs Cleaner on a fixed schedule. A sweep that overruns the
// interval delays the next one rather than overlapping it.
type Sweeper struct {
	cleaner  Cleaner
	interval time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
	sched    gocron.Scheduler
	removed  atomic.Int64
}

func New(cleaner Cleaner, interval time.Duration, logger logrus.FieldLogger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, eris.Wrap(err, "create scheduler")
	}
	return &Sweeper{
		cleaner:  cleaner,
		interval: interval,
		timeout:  interval,
		logger:   logger,
		sched:    sched,
	}, nil
}

// Start schedules the sweep, running the first one immediately.
func (s *Sweeper) Start() error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_, _ = s.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("cleanup-stale"),
	)
	if err != nil {
		return eris.Wrap(err, "schedule sweep")
	}
	s.sched.Start()
	s.logger.WithField("interval", s.interval).Info("sweeper started")
	return nil
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.cleaner.CleanupStale(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("sweep failed")
		return n, err
	}
	s.removed.Add(int64(n))
	if n > 0 {
		s.logger.WithField("removed", n).Info("swept stale records")
	}
	return n, nil
}

// Removed is the running total of deleted records.
func (s *Sweeper) Removed() int64 {
	return s.removed.Load()
}
