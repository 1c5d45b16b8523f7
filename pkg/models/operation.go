package models

import "time"

// OperationStatus is the lifecycle state of one stage execution.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// Final reports whether the operation row may no longer be mutated
// (except for the idempotent retry-marker increment).
func (s OperationStatus) Final() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// TaskOperation records one pipeline stage execution for one task.
// Immutable after completion.
type TaskOperation struct {
	ID          string          `json:"operation_id"`
	TaskID      string          `json:"task_id"`
	Stage       Stage           `json:"stage"`
	Status      OperationStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	RetryMarker int             `json:"retry_marker"`
	Counts      map[string]int  `json:"counts,omitempty"`
}
