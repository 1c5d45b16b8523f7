package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/models"
)

// popPollInterval is the idle delay between tier sweeps inside BlockingPop.
// The sweep itself is non-blocking LMOVE per tier, so priority inversion is
// bounded by this interval rather than by a blocking pop on one tier.
const popPollInterval = 100 * time.Millisecond

// Queue is the Redis-backed work queue. Jobs are serialized envelopes on
// three priority lists; a pop atomically moves the envelope bytes to the
// worker's in-flight list, so a task id resides in at most one list at any
// moment.
type Queue struct {
	client redis.UniversalClient
	cfg    *config.QueueConfig
	events *events.Publisher
}

// New creates a Queue. The Redis client is shared with the caller, which
// retains ownership of its lifecycle. events may be nil (no monitoring).
func New(client redis.UniversalClient, cfg *config.QueueConfig, pub *events.Publisher) *Queue {
	return &Queue{client: client, cfg: cfg, events: pub}
}

// Enqueue appends a job to the tail of its priority tier and emits
// task_enqueued.
func (q *Queue) Enqueue(ctx context.Context, job *models.JobEnvelope) error {
	if !job.Priority.Valid() {
		job.Priority = models.PriorityNormal
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}
	if err := q.client.RPush(ctx, priorityKey(job.Priority), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.publish(ctx, func(evt *events.Event) {
		evt.TaskID = job.TaskID
		evt.Status = string(job.Priority)
	}, events.TypeTaskEnqueued)
	return nil
}

// BlockingPop sweeps the tiers high → normal → low under one combined
// deadline and atomically moves the first available envelope to the
// worker's in-flight list. Returns ErrEmpty when the deadline lapses.
func (q *Queue) BlockingPop(ctx context.Context, workerID string, timeout time.Duration) (*models.JobEnvelope, error) {
	deadline := time.Now().Add(timeout)
	processing := ProcessingKey(workerID)

	for {
		for _, key := range popOrder {
			raw, err := q.client.LMove(ctx, key, processing, "LEFT", "RIGHT").Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
			}
			job := &models.JobEnvelope{}
			if err := json.Unmarshal([]byte(raw), job); err != nil {
				// Unparseable payloads are quarantined to the dead-letter
				// list rather than poisoning the in-flight scan.
				_ = q.client.LRem(ctx, processing, 1, raw).Err()
				_ = q.client.RPush(ctx, KeyDeadLetter, raw).Err()
				return nil, fmt.Errorf("failed to unmarshal job envelope: %w", err)
			}
			return job, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}
		wait := popPollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Complete removes a finished job from the worker's in-flight list.
func (q *Queue) Complete(ctx context.Context, workerID string, job *models.JobEnvelope) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}
	if err := q.client.LRem(ctx, ProcessingKey(workerID), 1, payload).Err(); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Requeue pushes a job back to the head of its priority tier.
func (q *Queue) Requeue(ctx context.Context, job *models.JobEnvelope) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}
	if err := q.client.LPush(ctx, priorityKey(job.Priority), payload).Err(); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// Depths returns the current length of each priority tier.
// Implements events.StatsSource.
func (q *Queue) Depths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64, len(popOrder))
	for _, key := range popOrder {
		n, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read depth of %s: %w", key, err)
		}
		depths[tierName(key)] = n
	}
	return depths, nil
}

// DeadLetterDepth returns the number of dead-lettered jobs.
func (q *Queue) DeadLetterDepth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, KeyDeadLetter).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead-letter depth: %w", err)
	}
	return n, nil
}

// TrimDeadLetter caps the dead-letter list at max entries, discarding the
// oldest first. Returns the number of entries removed.
func (q *Queue) TrimDeadLetter(ctx context.Context, max int) (int64, error) {
	depth, err := q.DeadLetterDepth(ctx)
	if err != nil {
		return 0, err
	}
	if depth <= int64(max) {
		return 0, nil
	}
	if max <= 0 {
		if err := q.client.Del(ctx, KeyDeadLetter).Err(); err != nil {
			return 0, fmt.Errorf("failed to clear dead-letter queue: %w", err)
		}
		return depth, nil
	}
	// Dead-lettered jobs are RPushed, so the newest max live at the tail.
	if err := q.client.LTrim(ctx, KeyDeadLetter, int64(-max), -1).Err(); err != nil {
		return 0, fmt.Errorf("failed to trim dead-letter queue: %w", err)
	}
	return depth - int64(max), nil
}

// PurgeAll deletes every queue, in-flight, and heartbeat key. Part of the
// admin purge operation.
func (q *Queue) PurgeAll(ctx context.Context) error {
	keys := []string{KeyHighPriority, KeyNormalPriority, KeyLowPriority, KeyDeadLetter}
	for _, pattern := range []string{processingPrefix + "*", heartbeatPrefix + "*"} {
		var cursor uint64
		for {
			found, next, err := q.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", pattern, err)
			}
			keys = append(keys, found...)
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	if err := q.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to purge queue keys: %w", err)
	}
	return nil
}

// publish emits one monitoring event when a publisher is wired.
func (q *Queue) publish(ctx context.Context, fill func(*events.Event), eventType string) {
	if q.events == nil {
		return
	}
	evt := events.New(eventType)
	fill(evt)
	q.events.Publish(ctx, evt)
}
