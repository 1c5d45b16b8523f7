package models

import "time"

// Priority is the queue tier a job is dispatched to.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists the tiers in pop-inspection order.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Valid reports whether p names a known tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// JobEnvelope is the queue payload. The knowledge store owns the task; the
// envelope carries just enough to (re)create the task row on first delivery.
//
// The envelope has no map fields so its JSON encoding is deterministic:
// enqueue followed by pop round-trips byte-identically.
type JobEnvelope struct {
	TaskID                  string    `json:"task_id"`
	Title                   string    `json:"title"`
	Description             string    `json:"description"`
	ContinuousMode          bool      `json:"continuous_mode,omitempty"`
	ContinuousIntervalHours int       `json:"continuous_interval_hours,omitempty"`
	Priority                Priority  `json:"priority"`
	RetryCount              int       `json:"retry_count"`
	RunCounter              int       `json:"run_counter"`
	EnqueuedAt              time.Time `json:"enqueued_at"`
}
