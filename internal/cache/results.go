// internal/cache/results.go
package cache

import (
	"context"
	"encoding/json"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultResultsQueue is the Redis list the historian drains.
const DefaultResultsQueue = "match_results"

// ResultPublisher pushes resolved match results onto a Redis list so the
// historian can persist them off the request path.
type ResultPublisher struct {
	rdb   *redis.Client
	queue string
}

// NewResultPublisher publishes to the named list, or DefaultResultsQueue when
// queue is empty.
func NewResultPublisher(rdb *redis.Client, queue string) *ResultPublisher {
	if queue == "" {
		queue = DefaultResultsQueue
	}
	return &ResultPublisher{rdb: rdb, queue: resultsQueueKey(queue)}
}

// Queue is the fully qualified list key.
func (p *ResultPublisher) Queue() string {
	return p.queue
}

// PublishMatchResult serializes the result to JSON and RPushes it.
func (p *ResultPublisher) PublishMatchResult(ctx context.Context, result models.MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "failed to marshal MatchResult")
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return eris.Wrapf(err, "failed to RPush to Redis list '%s'", p.queue)
	}
	return nil
}
