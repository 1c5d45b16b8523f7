package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshHeartbeat writes the worker's heartbeat timestamp with the
// configured TTL. A worker whose key lapses is presumed dead.
func (q *Queue) RefreshHeartbeat(ctx context.Context, workerID string) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if err := q.client.Set(ctx, HeartbeatKey(workerID), ts, q.cfg.HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh heartbeat: %w", err)
	}
	return nil
}

// RemoveHeartbeat deletes the worker's heartbeat on clean shutdown, so the
// supervisor reclaims its in-flight entries promptly if any remain.
func (q *Queue) RemoveHeartbeat(ctx context.Context, workerID string) error {
	return q.client.Del(ctx, HeartbeatKey(workerID)).Err()
}

// heartbeatAge returns how long ago the worker last heartbeated, or
// redis.Nil via the error when no heartbeat key exists.
func (q *Queue) heartbeatAge(ctx context.Context, workerID string) (time.Duration, error) {
	raw, err := q.client.Get(ctx, HeartbeatKey(workerID)).Result()
	if err != nil {
		return 0, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("unparseable heartbeat for %s: %w", workerID, err)
	}
	return time.Since(ts), nil
}

// workerAlive reports whether the worker has a fresh heartbeat. A missing
// key (expired TTL) or a timestamp older than StaleAfter both count as dead.
func (q *Queue) workerAlive(ctx context.Context, workerID string) (bool, error) {
	age, err := q.heartbeatAge(ctx, workerID)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return age <= q.cfg.StaleAfter, nil
}

// OnlineWorkers counts workers with a live heartbeat key.
// Implements events.StatsSource.
func (q *Queue) OnlineWorkers(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := q.client.Scan(ctx, cursor, heartbeatPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan heartbeats: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
