// internal/cache/redis.go
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// ConnectRedis initializes the global Redis client and verifies it responds.
func ConnectRedis(addr string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return eris.Wrapf(err, "failed to connect to Redis at %s", addr)
	}
	return nil
}

// key layout
const keyPrefix = "clash:"

func roomKey(code string) string         { return keyPrefix + "room:" + code }
func playerRoomKey(addr string) string   { return keyPrefix + "player:" + addr + ":room" }
func entryKey(addr string) string        { return keyPrefix + "mm:entry:" + addr }
func queueKey() string                   { return keyPrefix + "mm:queue" }
func roomIndexKey() string               { return keyPrefix + "rooms" }
func entryIndexKey() string              { return keyPrefix + "mm:entries" }
func resultsQueueKey(name string) string { return keyPrefix + name }
