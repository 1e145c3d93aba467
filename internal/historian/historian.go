// Package historian drains resolved match results from a Redis list and
// persists them in batches, keeping database writes off the request path.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Sink persists a batch atomically. database.Ledger satisfies it.
type Sink interface {
	RecordBatch(ctx context.Context, results []models.MatchResult) error
}

// Config tunes batching.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
}

// Service encapsulates the Redis consumer and the batching logic.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	cfg    Config
	logger logrus.FieldLogger

	batchMu sync.Mutex
	batch   []models.MatchResult
	flushed int
}

func NewService(rdb *redis.Client, sink Sink, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	return &Service{
		rdb:    rdb,
		sink:   sink,
		cfg:    cfg,
		logger: logger.WithField("queue", cfg.Queue),
		batch:  make([]models.MatchResult, 0, cfg.BatchSize),
	}
}

// DeadLetterQueue holds batches the sink rejected.
func (s *Service) DeadLetterQueue() string {
	return s.cfg.Queue + ":failed"
}

// Run pops results until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()
	defer s.Flush(context.Background())

	s.logger.Info("historian started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("historian shutting down")
			return nil
		case <-ticker.C:
			s.Flush(ctx)
		default:
			res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.WithError(err).Error("BLPop failed")
				time.Sleep(s.cfg.FlushDelay)
				continue
			}
			// res[0] is the queue name and res[1] the payload
			if len(res) < 2 {
				continue
			}
			var rec models.MatchResult
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.logger.WithError(err).Warn("invalid match result record")
				continue
			}
			s.appendToBatch(ctx, rec)
		}
	}
}

func (s *Service) appendToBatch(ctx context.Context, rec models.MatchResult) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()
	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch. A rejected batch is moved to the dead letter
// queue so one bad record cannot wedge the consumer.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	batch := make([]models.MatchResult, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]

	if err := s.sink.RecordBatch(ctx, batch); err != nil {
		s.logger.WithError(err).WithField("size", len(batch)).Error("flush failed")
		if dlqErr := s.deadLetter(ctx, batch); dlqErr != nil {
			s.logger.WithError(dlqErr).Error("dead letter failed, batch dropped")
		}
		return
	}
	s.flushed += len(batch)
	s.logger.WithField("size", len(batch)).Debug("flushed match results")
}

func (s *Service) deadLetter(ctx context.Context, batch []models.MatchResult) error {
	payloads := make([]interface{}, 0, len(batch))
	for _, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "marshal dead letter")
		}
		payloads = append(payloads, data)
	}
	return eris.Wrap(s.rdb.RPush(ctx, s.DeadLetterQueue(), payloads...).Err(), "push dead letter")
}

// Flushed is the number of results persisted so far.
func (s *Service) Flushed() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.flushed
}
