package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/queue"
)

// Pool manages the worker goroutines of one process plus the continuous-mode
// rerun scheduler.
type Pool struct {
	podID   string
	queue   *queue.Queue
	store   Store
	runner  Runner
	events  *events.Publisher
	cfg     *config.QueueConfig
	logger  *slog.Logger
	workers []*Worker
	sched   *scheduler
	started bool
}

// NewPool creates a worker pool. events may be nil (monitoring disabled).
func NewPool(podID string, q *queue.Queue, store Store, runner Runner, pub *events.Publisher, cfg *config.QueueConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		podID:   podID,
		queue:   q,
		store:   store,
		runner:  runner,
		events:  pub,
		cfg:     cfg,
		logger:  logger,
		workers: make([]*Worker, 0, cfg.WorkerCount),
		sched:   newScheduler(q, store, logger),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	p.logger.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", p.podID, i)
		w := NewWorker(workerID, p.podID, p.queue, p.store, p.runner, p.events, p.sched, p.cfg, p.logger)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
	p.logger.Info("Worker pool started")
	return nil
}

// Stop signals every worker to stop, waits for in-flight tasks to finish,
// and cancels pending continuous-rerun timers.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	p.sched.Stop()
	p.logger.Info("Worker pool stopped gracefully")
}

// Health returns a snapshot of every worker in the pool.
func (p *Pool) Health() []Health {
	out := make([]Health, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Health())
	}
	return out
}
