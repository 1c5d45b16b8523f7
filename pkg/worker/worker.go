package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/metrics"
	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/pipeline"
	"github.com/nexus-research/nexus/pkg/queue"
)

// Worker is a single queue consumer. It pops one job at a time, ensures the
// task row exists, runs the pipeline, and records the terminal outcome.
type Worker struct {
	id       string
	podID    string
	queue    *queue.Queue
	store    Store
	runner   Runner
	events   *events.Publisher
	sched    *scheduler
	cfg      *config.QueueConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         Status
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a worker. events may be nil (monitoring disabled);
// sched may be nil (continuous mode disabled).
func NewWorker(id, podID string, q *queue.Queue, store Store, runner Runner, pub *events.Publisher, sched *scheduler, cfg *config.QueueConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        q,
		store:        store,
		runner:       runner,
		events:       pub,
		sched:        sched,
		cfg:          cfg,
		logger:       logger.With("worker_id", id, "pod_id", podID),
		stopCh:       make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop and its heartbeat ticker.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(2)
	go w.run(ctx)
	go w.runHeartbeat(ctx)
}

// Stop signals the worker to stop and waits for the in-flight task to
// finish. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker snapshot.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main polling loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("Worker started")
	startEvt := events.New(events.TypeWorkerStarted)
	startEvt.WorkerID = w.id
	w.publish(ctx, startEvt)

	defer func() {
		stopEvt := events.New(events.TypeWorkerStopped)
		stopEvt.WorkerID = w.id
		w.publish(context.WithoutCancel(ctx), stopEvt)
		if err := w.queue.RemoveHeartbeat(context.WithoutCancel(ctx), w.id); err != nil {
			w.logger.Warn("Failed to remove heartbeat key", "error", err)
		}
		w.logger.Info("Worker stopped")
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := w.queue.RefreshHeartbeat(ctx, w.id); err != nil && ctx.Err() == nil {
				w.logger.Warn("Failed to refresh heartbeat", "error", err)
			}
			job, err := w.queue.BlockingPop(ctx, w.id, w.cfg.PopTimeout)
			if err != nil {
				if errors.Is(err, queue.ErrEmpty) || ctx.Err() != nil {
					continue
				}
				w.logger.Error("Failed to pop job", "error", err)
				w.sleep(time.Second)
				continue
			}
			w.process(ctx, job)
		}
	}
}

// runHeartbeat refreshes the liveness key and publishes a worker_heartbeat
// event at the configured interval, independent of where the polling loop
// currently blocks.
func (w *Worker) runHeartbeat(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.RefreshHeartbeat(ctx, w.id); err != nil && ctx.Err() == nil {
				w.logger.Warn("Failed to refresh heartbeat", "error", err)
			}
			h := w.Health()
			evt := events.New(events.TypeWorkerHeartbeat)
			evt.WorkerID = w.id
			evt.Status = string(h.Status)
			evt.TaskID = h.CurrentTaskID
			w.publish(ctx, evt)
		}
	}
}

// process drives one job through the pipeline and finalizes the outcome.
func (w *Worker) process(ctx context.Context, job *models.JobEnvelope) {
	log := w.logger.With("task_id", job.TaskID, "run_counter", job.RunCounter)
	log.Info("Job claimed", "priority", job.Priority, "retry_count", job.RetryCount)

	w.setStatus(StatusWorking, job.TaskID)
	defer w.setStatus(StatusIdle, "")

	task, err := w.store.CreateOrUpdateTask(ctx, models.CreateTaskRequest{
		TaskID:                  job.TaskID,
		Title:                   job.Title,
		Description:             job.Description,
		ContinuousMode:          job.ContinuousMode,
		ContinuousIntervalHours: job.ContinuousIntervalHours,
	})
	if err != nil {
		log.Error("Failed to ensure task row", "error", err)
		w.fail(ctx, job, "failed to ensure task row: "+err.Error(), models.ErrKindStore)
		return
	}
	if task.Status.Terminal() && !task.ContinuousMode {
		// Duplicate delivery of an already-finished task.
		log.Warn("Task already terminal, dropping job", "status", task.Status)
		w.complete(ctx, job)
		return
	}

	startEvt := events.New(events.TypeTaskStarted)
	startEvt.TaskID = job.TaskID
	startEvt.WorkerID = w.id
	startEvt.RetryCount = job.RetryCount
	w.publish(ctx, startEvt)

	res, runErr := w.runner.Run(ctx, w.id, task)
	if runErr != nil {
		se, _ := pipeline.AsStageError(runErr)
		if se != nil && se.Kind == models.ErrKindCancelled {
			// Shutdown or kill mid-task: leave the envelope in the
			// in-flight list so the supervisor requeues it.
			log.Warn("Task cancelled mid-pipeline, leaving job in flight")
			return
		}
		kind := models.ErrKindProvider
		msg := runErr.Error()
		if se != nil {
			kind = se.Kind
		}
		log.Error("Task failed", "error", runErr)
		w.fail(ctx, job, msg, kind)
		return
	}

	if err := w.store.SetTaskResults(ctx, job.TaskID, res.Results, res.Summary, res.Reasoning); err != nil {
		log.Error("Failed to persist task results", "error", err)
		w.fail(ctx, job, "failed to persist results: "+err.Error(), models.ErrKindStore)
		return
	}
	if err := w.store.UpdateTaskStatus(ctx, job.TaskID, models.TaskStatusCompleted); err != nil {
		log.Error("Failed to mark task completed", "error", err)
		w.fail(ctx, job, "failed to mark completed: "+err.Error(), models.ErrKindStore)
		return
	}

	doneEvt := events.New(events.TypeTaskCompleted)
	doneEvt.TaskID = job.TaskID
	doneEvt.WorkerID = w.id
	doneEvt.Status = string(models.TaskStatusCompleted)
	w.publish(ctx, doneEvt)
	metrics.TasksCompleted.Inc()
	w.complete(ctx, job)

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()
	log.Info("Task completed")

	if job.ContinuousMode && w.sched != nil {
		w.sched.Schedule(job)
	}
}

// fail records the durable failure, emits task_failed, and acknowledges the
// job. Workers never self-requeue; queue-level retries are the supervisor's
// concern.
func (w *Worker) fail(ctx context.Context, job *models.JobEnvelope, msg string, kind models.ErrorKind) {
	if err := w.store.MarkTaskFailed(ctx, job.TaskID, msg, string(kind)); err != nil {
		w.logger.Error("Failed to mark task failed", "task_id", job.TaskID, "error", err)
	}
	evt := events.New(events.TypeTaskFailed)
	evt.TaskID = job.TaskID
	evt.WorkerID = w.id
	evt.Status = string(models.TaskStatusFailed)
	evt.Error = string(kind)
	evt.Message = msg
	w.publish(ctx, evt)
	metrics.TasksFailed.WithLabelValues(string(kind)).Inc()
	w.complete(ctx, job)
}

// complete removes the job from this worker's in-flight list.
func (w *Worker) complete(ctx context.Context, job *models.JobEnvelope) {
	if err := w.queue.Complete(context.WithoutCancel(ctx), w.id, job); err != nil {
		w.logger.Error("Failed to acknowledge job", "task_id", job.TaskID, "error", err)
	}
}

func (w *Worker) setStatus(status Status, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) publish(ctx context.Context, evt *events.Event) {
	if w.events == nil {
		return
	}
	w.events.Publish(ctx, evt)
}
