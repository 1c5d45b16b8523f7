// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexus-research/nexus/pkg/config"
)

// TaskPruner is the store surface the cleanup loop needs. Satisfied by
// *store.Client.
type TaskPruner interface {
	DeleteOldTasks(ctx context.Context, retentionDays int) (int64, error)
}

// DeadLetterTrimmer is the queue surface the cleanup loop needs. Satisfied
// by *queue.Queue.
type DeadLetterTrimmer interface {
	TrimDeadLetter(ctx context.Context, max int) (int64, error)
}

// Service periodically enforces retention policies:
//   - Deletes old terminal tasks (and their cascaded rows)
//   - Trims the dead-letter queue to its configured cap
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	store  TaskPruner
	queue  DeadLetterTrimmer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store TaskPruner, queue DeadLetterTrimmer) *Service {
	return &Service{
		config: cfg,
		store:  store,
		queue:  queue,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"task_retention_days", s.config.TaskRetentionDays,
		"dead_letter_max", s.config.DeadLetterMax,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes every retention policy once. Exported for on-demand runs;
// the background loop calls it on each tick.
func (s *Service) RunAll(ctx context.Context) {
	s.deleteOldTasks(ctx)
	s.trimDeadLetter(ctx)
}

func (s *Service) deleteOldTasks(ctx context.Context) {
	count, err := s.store.DeleteOldTasks(ctx, s.config.TaskRetentionDays)
	if err != nil {
		slog.Error("Retention: task deletion failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old tasks", "count", count)
	}
}

func (s *Service) trimDeadLetter(ctx context.Context) {
	count, err := s.queue.TrimDeadLetter(ctx, s.config.DeadLetterMax)
	if err != nil {
		slog.Error("Retention: dead-letter trim failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: trimmed dead-letter queue", "count", count)
	}
}
