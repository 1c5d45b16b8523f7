package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/queue"
)

// defaultRerunInterval applies when a continuous task carries no interval.
const defaultRerunInterval = 24 * time.Hour

// scheduler re-enqueues continuous-mode tasks after their configured
// interval. Timers live in the pool's process only; a task whose pod dies
// before the timer fires is simply not rescheduled until its next manual
// enqueue; continuous mode is best-effort scheduling, not a guarantee.
type scheduler struct {
	queue  *queue.Queue
	store  Store
	logger *slog.Logger

	// delayFor is swapped in tests to avoid waiting hours.
	delayFor func(job *models.JobEnvelope) time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newScheduler(q *queue.Queue, store Store, logger *slog.Logger) *scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &scheduler{
		queue:  q,
		store:  store,
		logger: logger.With("component", "continuous_scheduler"),
		delayFor: func(job *models.JobEnvelope) time.Duration {
			if job.ContinuousIntervalHours <= 0 {
				return defaultRerunInterval
			}
			return time.Duration(job.ContinuousIntervalHours) * time.Hour
		},
		timers: map[string]*time.Timer{},
	}
}

// Schedule arms a rerun timer for the task. A second call for the same task
// resets the pending timer rather than stacking a duplicate.
func (s *scheduler) Schedule(job *models.JobEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[job.TaskID]; ok && t.Stop() {
		// The superseded timer never fired, release its pending slot.
		s.wg.Done()
	}
	delay := s.delayFor(job)
	s.logger.Info("Scheduled continuous rerun",
		"task_id", job.TaskID, "delay", delay, "run_counter", job.RunCounter)

	rerun := *job
	s.wg.Add(1)
	s.timers[job.TaskID] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(&rerun)
	})
}

// Stop cancels all pending timers. Timers already firing are waited for.
func (s *scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for taskID, t := range s.timers {
		if t.Stop() {
			// Timer never fired, release its pending slot.
			s.wg.Done()
		}
		delete(s.timers, taskID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// fire resets the task row and enqueues the next run.
func (s *scheduler) fire(job *models.JobEnvelope) {
	s.mu.Lock()
	delete(s.timers, job.TaskID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.store.ResetTaskForRerun(ctx, job.TaskID); err != nil {
		s.logger.Error("Failed to reset task for rerun", "task_id", job.TaskID, "error", err)
		return
	}
	counter, err := s.store.IncrementRunCounter(ctx, job.TaskID)
	if err != nil {
		s.logger.Error("Failed to increment run counter", "task_id", job.TaskID, "error", err)
		return
	}

	next := &models.JobEnvelope{
		TaskID:                  job.TaskID,
		Title:                   job.Title,
		Description:             job.Description,
		ContinuousMode:          true,
		ContinuousIntervalHours: job.ContinuousIntervalHours,
		Priority:                job.Priority,
		RunCounter:              counter,
		EnqueuedAt:              time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, next); err != nil {
		s.logger.Error("Failed to enqueue continuous rerun", "task_id", job.TaskID, "error", err)
		return
	}
	s.logger.Info("Continuous rerun enqueued", "task_id", job.TaskID, "run_counter", counter)
}
