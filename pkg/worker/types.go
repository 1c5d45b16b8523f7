// Package worker implements the consumer side of the work queue: a pool of
// worker goroutines that pop job envelopes, drive tasks through the pipeline,
// and keep their liveness visible through heartbeat keys and monitoring
// events.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/pipeline"
)

// Status represents the current state of a worker.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Health is a point-in-time snapshot of one worker.
type Health struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	CurrentTaskID  string    `json:"current_task_id,omitempty"`
	TasksProcessed int       `json:"tasks_processed"`
	LastActivity   time.Time `json:"last_activity"`
}

// Store is the slice of the knowledge store workers need. *store.Client
// satisfies it.
type Store interface {
	CreateOrUpdateTask(ctx context.Context, req models.CreateTaskRequest) (*models.ResearchTask, error)
	GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	SetTaskResults(ctx context.Context, taskID string, results, summary, reasoning map[string]any) error
	MarkTaskFailed(ctx context.Context, taskID, errMsg, category string) error
	IncrementRunCounter(ctx context.Context, taskID string) (int, error)
	ResetTaskForRerun(ctx context.Context, taskID string) error
}

// Runner executes one task through the orchestration pipeline.
// *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, workerID string, task *models.ResearchTask) (*pipeline.Result, error)
}

// PodID resolves the stable process identity used to prefix worker ids:
// POD_ID, then HOSTNAME, then "local".
func PodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if host := os.Getenv("HOSTNAME"); host != "" {
		return host
	}
	return "local"
}
