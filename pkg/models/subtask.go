package models

import "time"

// SubtaskStatus is the lifecycle state of one decomposition node.
type SubtaskStatus string

const (
	SubtaskStatusPending    SubtaskStatus = "pending"
	SubtaskStatusScheduled  SubtaskStatus = "scheduled"
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	SubtaskStatusCompleted  SubtaskStatus = "completed"
	SubtaskStatusFailed     SubtaskStatus = "failed"
)

// Subtask is a node in the sub-topic tree for one task. The nodes form a
// finite tree rooted at one subtask per task; cycles are forbidden. A subtask
// is mutated only within the stage that owns its phase.
type Subtask struct {
	ID          string         `json:"subtask_id"`
	TaskID      string         `json:"task_id"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Description string         `json:"description"`
	Status      SubtaskStatus  `json:"status"`
	AgentType   string         `json:"agent_type,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	ChildIDs    []string       `json:"child_ids,omitempty"`
	Position    int            `json:"position"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
