// Package models defines the domain entities shared across the queue, pipeline,
// agents, store, and API layers.
package models

import "time"

// TaskStatus is the lifecycle state of a research task. Statuses advance
// monotonically through the pipeline order except on retry, which resets to the
// failing stage; terminal states are never left.
type TaskStatus string

const (
	TaskStatusCreated             TaskStatus = "created"
	TaskStatusPlanning            TaskStatus = "planning"
	TaskStatusSearching           TaskStatus = "searching"
	TaskStatusAggregating         TaskStatus = "aggregating"
	TaskStatusSummarizing         TaskStatus = "summarizing"
	TaskStatusReasoning           TaskStatus = "reasoning"
	TaskStatusGeneratingArtifacts TaskStatus = "generating_artifacts"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusFailed              TaskStatus = "failed"
)

// StatusOrder lists every non-terminal-to-terminal status in pipeline order.
// Observed status sequences for a task must be a prefix of this slice,
// optionally followed by TaskStatusFailed.
var StatusOrder = []TaskStatus{
	TaskStatusCreated,
	TaskStatusPlanning,
	TaskStatusSearching,
	TaskStatusAggregating,
	TaskStatusSummarizing,
	TaskStatusReasoning,
	TaskStatusGeneratingArtifacts,
	TaskStatusCompleted,
}

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Ordinal returns the position of s in StatusOrder, or -1 for failed/unknown.
func (s TaskStatus) Ordinal() int {
	for i, st := range StatusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// ResearchTask is the primary entity. The knowledge store holds the truth;
// queue entries carry the id only.
type ResearchTask struct {
	ID                      string         `json:"task_id"`
	Title                   string         `json:"title"`
	Description             string         `json:"description"`
	Status                  TaskStatus     `json:"status"`
	ContinuousMode          bool           `json:"continuous_mode"`
	ContinuousIntervalHours int            `json:"continuous_interval_hours"`
	RunCounter              int            `json:"run_counter"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	Results                 map[string]any `json:"results,omitempty"`
	Summary                 map[string]any `json:"summary,omitempty"`
	Reasoning               map[string]any `json:"reasoning,omitempty"`
	Error                   *string        `json:"error,omitempty"`
	ErrorCategory           *string        `json:"error_category,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	CompletedAt             *time.Time     `json:"completed_at,omitempty"`
}

// CreateTaskRequest contains fields for creating a new research task.
type CreateTaskRequest struct {
	TaskID                  string         `json:"task_id"`
	Title                   string         `json:"title"`
	Description             string         `json:"description"`
	ContinuousMode          bool           `json:"continuous_mode,omitempty"`
	ContinuousIntervalHours int            `json:"continuous_interval_hours,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// TaskFilters contains filtering options for listing tasks.
type TaskFilters struct {
	Status        TaskStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// TaskListResponse contains a paginated task list.
type TaskListResponse struct {
	Tasks      []*ResearchTask `json:"tasks"`
	TotalCount int             `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}
