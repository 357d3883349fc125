// Package cache mirrors the session event log onto a Redis queue, where the
// archiver service drains it into Postgres. The mirror is fire-and-forget
// from the engine's point of view; play never blocks on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classparty/classparty/internal/models"
)

// DefaultQueueName is the Redis list the archiver consumes.
const DefaultQueueName = "classparty_events"

// Queue mirrors events to one Redis list.
type Queue struct {
	rdb  *redis.Client
	name string
}

// Connect initializes the Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - EVENT_QUEUE_NAME (optional, default DefaultQueueName)
func Connect() (*Queue, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis at %s: %w", addr, err)
	}
	return &Queue{rdb: rdb, name: getEnv("EVENT_QUEUE_NAME", DefaultQueueName)}, nil
}

// Publish serializes the event and pushes it onto the queue.
func (q *Queue) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next queued event. Returns nil with no
// error when the timeout elapses empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*models.Event, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop from %q: %w", q.name, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	var ev models.Event
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return nil, fmt.Errorf("invalid queued event: %w", err)
	}
	return &ev, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error { return q.rdb.Close() }

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
