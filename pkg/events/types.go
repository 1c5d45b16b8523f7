// Package events provides the monitoring event bus: bounded-size lifecycle
// events published to Redis pub/sub channels and fanned out to filtered
// WebSocket subscribers.
//
// ════════════════════════════════════════════════════════════════
// Channel Policy
// ════════════════════════════════════════════════════════════════
//
// Every event is published once to the global channel. Two additional
// publishes may follow:
//
//   - events carrying a project id are also published to the
//     project-scoped channel ("{prefix}{project_id}")
//   - stats_snapshot and queue_depth_update are also published to the
//     stats channel, so dashboards can subscribe to the low-volume
//     stats feed without receiving task traffic
//
// Publishing is best-effort. Each channel publish retries independently
// with exponential backoff and jitter; after exhaustion the event is
// logged and dropped. Callers never observe a monitoring failure.
//
// Events are ephemeral: nothing in this package persists them. A client
// that reconnects has lost the interval; the snapshot sent on connect
// (queue depths plus online worker count) restores enough state to
// continue rendering.
// ════════════════════════════════════════════════════════════════
package events

// Worker lifecycle event types.
const (
	TypeWorkerStarted   = "worker_started"
	TypeWorkerHeartbeat = "worker_heartbeat"
	TypeWorkerStopped   = "worker_stopped"
)

// Task lifecycle event types.
const (
	TypeTaskEnqueued  = "task_enqueued"
	TypeTaskStarted   = "task_started"
	TypeTaskRetry     = "task_retry"
	TypeTaskCompleted = "task_completed"
	TypeTaskFailed    = "task_failed"
	TypeTaskStalled   = "task_stalled"
)

// Pipeline stage event types.
const (
	TypePhaseStarted   = "phase_started"
	TypePhaseCompleted = "phase_completed"
)

// Stats event types — additionally routed to the stats channel.
const (
	TypeQueueDepthUpdate = "queue_depth_update"
	TypeStatsSnapshot    = "stats_snapshot"
)

// IsStatsType reports whether an event type belongs on the stats channel.
// Used both for publish routing and for the stats_only client filter.
func IsStatsType(eventType string) bool {
	return eventType == TypeStatsSnapshot || eventType == TypeQueueDepthUpdate
}

// ProjectChannel returns the project-scoped channel name for a project id.
// Format: "{prefix}{project_id}", e.g. "nexus:events:project:acme".
func ProjectChannel(prefix, projectID string) string {
	return prefix + projectID
}
