package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/models"
)

// TaskFailer records a durable failure on the task row when a job is
// dead-lettered. Satisfied by *store.Client.
type TaskFailer interface {
	MarkTaskFailed(ctx context.Context, taskID, message, category string) error
}

// Supervisor reclaims jobs abandoned by dead workers. It periodically scans
// the in-flight lists; entries belonging to a worker without a fresh
// heartbeat are requeued with an incremented retry count, or dead-lettered
// once the retry ceiling is reached.
type Supervisor struct {
	queue  *Queue
	store  TaskFailer
	events *events.Publisher
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSupervisor creates a Supervisor. store and pub may be nil; a nil store
// skips the task-row update on dead letter.
func NewSupervisor(q *Queue, store TaskFailer, pub *events.Publisher, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		queue:  q,
		store:  store,
		events: pub,
		logger: logger.With("component", "queue_supervisor"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the scan loop. The loop runs until Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("Queue supervisor started",
		"interval", s.queue.cfg.SupervisorInterval,
		"stale_after", s.queue.cfg.StaleAfter)
}

// Stop terminates the scan loop and waits for the in-progress sweep.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.queue.cfg.SupervisorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Supervisor sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one pass over all in-flight lists. Exported so tests and
// operators can trigger a sweep without waiting for the interval.
func (s *Supervisor) Sweep(ctx context.Context) error {
	var (
		cursor uint64
		errs   []error
	)
	for {
		keys, next, err := s.queue.client.Scan(ctx, cursor, processingPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan in-flight lists: %w", err)
		}
		for _, key := range keys {
			if err := s.sweepWorker(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return errors.Join(errs...)
}

// sweepWorker reclaims one worker's in-flight list if its heartbeat lapsed.
func (s *Supervisor) sweepWorker(ctx context.Context, processingKey string) error {
	workerID, err := workerIDFromProcessingKey(processingKey)
	if err != nil {
		return err
	}
	alive, err := s.queue.workerAlive(ctx, workerID)
	if err != nil {
		return fmt.Errorf("failed to check heartbeat for %s: %w", workerID, err)
	}
	if alive {
		return nil
	}

	// The worker is dead, so nothing else consumes its list: draining
	// with LPOP is race-free.
	for {
		raw, err := s.queue.client.LPop(ctx, processingKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to drain %s: %w", processingKey, err)
		}
		s.reclaim(ctx, workerID, raw)
	}
}

// reclaim requeues or dead-letters one abandoned envelope.
func (s *Supervisor) reclaim(ctx context.Context, workerID, raw string) {
	job := &models.JobEnvelope{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		s.logger.Error("Dead worker held unparseable envelope, dead-lettering",
			"worker_id", workerID, "error", err)
		_ = s.queue.client.RPush(ctx, KeyDeadLetter, raw).Err()
		return
	}

	job.RetryCount++
	if job.RetryCount >= s.queue.cfg.MaxRetries {
		s.deadLetter(ctx, workerID, job)
		return
	}

	if err := s.queue.Requeue(ctx, job); err != nil {
		s.logger.Error("Failed to requeue abandoned job",
			"task_id", job.TaskID, "worker_id", workerID, "error", err)
		return
	}
	s.logger.Warn("Requeued job from dead worker",
		"task_id", job.TaskID,
		"worker_id", workerID,
		"retry_count", job.RetryCount)
	s.publish(ctx, events.TypeTaskRetry, job.TaskID, workerID, job.RetryCount, "")
}

// deadLetter moves an exhausted envelope to the dead-letter list and marks
// the task row failed with the dead_letter category.
func (s *Supervisor) deadLetter(ctx context.Context, workerID string, job *models.JobEnvelope) {
	payload, err := json.Marshal(job)
	if err != nil {
		s.logger.Error("Failed to marshal dead-letter envelope", "task_id", job.TaskID, "error", err)
		return
	}
	if err := s.queue.client.RPush(ctx, KeyDeadLetter, payload).Err(); err != nil {
		s.logger.Error("Failed to dead-letter job", "task_id", job.TaskID, "error", err)
		return
	}
	s.logger.Error("Job exhausted retries, dead-lettered",
		"task_id", job.TaskID,
		"worker_id", workerID,
		"retry_count", job.RetryCount)

	if s.store != nil {
		msg := fmt.Sprintf("abandoned by worker %s after %d retries", workerID, job.RetryCount)
		if err := s.store.MarkTaskFailed(ctx, job.TaskID, msg, DeadLetterCategory); err != nil {
			s.logger.Error("Failed to mark dead-lettered task failed",
				"task_id", job.TaskID, "error", err)
		}
	}
	s.publish(ctx, events.TypeTaskFailed, job.TaskID, workerID, job.RetryCount, DeadLetterCategory)
}

func (s *Supervisor) publish(ctx context.Context, eventType, taskID, workerID string, retryCount int, errCategory string) {
	if s.events == nil {
		return
	}
	evt := events.New(eventType)
	evt.TaskID = taskID
	evt.WorkerID = workerID
	evt.RetryCount = retryCount
	if errCategory != "" {
		evt.Error = errCategory
	}
	s.events.Publish(ctx, evt)
}
