package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is one monitoring event. All fields beyond the first three are
// optional; producers set only what applies to the event type. Serialized
// size is capped by the publisher (see Publisher), so consumers may rely
// on every frame fitting the configured budget.
type Event struct {
	EventID   string `json:"event_id"`
	TS        string `json:"ts"`
	EventType string `json:"event_type"`

	ProjectID    string `json:"project_id,omitempty"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	TaskType     string `json:"task_type,omitempty"`
	Phase        string `json:"phase,omitempty"`
	WorkerID     string `json:"worker_id,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	Status       string `json:"status,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`

	Counts  map[string]int   `json:"counts,omitempty"`
	Queue   map[string]int64 `json:"queue,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
	Meta    map[string]any   `json:"meta,omitempty"`
}

// New creates an event of the given type with a fresh id and a UTC
// timestamp. Callers fill in the optional fields before publishing.
func New(eventType string) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
	}
}
