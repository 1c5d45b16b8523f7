package models

// ErrorKind classifies a failure for retry decisions and durable task
// records. Carried in agent replies and pipeline errors.
type ErrorKind string

const (
	// ErrKindTransientNetwork is a timeout or connection error. The only
	// kind that auto-retries.
	ErrKindTransientNetwork ErrorKind = "transient_network"

	// ErrKindProvider is a single provider failing; recorded as evidence,
	// the stage proceeds.
	ErrKindProvider ErrorKind = "provider_error"

	// ErrKindParse is malformed model output that survived extraction
	// fallbacks.
	ErrKindParse ErrorKind = "parse_error"

	// ErrKindTimeout is a stage exceeding its hard cap.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindStore is a knowledge-store write failure.
	ErrKindStore ErrorKind = "store_error"

	// ErrKindCancelled is cooperative cancellation.
	ErrKindCancelled ErrorKind = "cancelled"

	// ErrKindDeadLetter marks a job that exhausted its queue retries.
	ErrKindDeadLetter ErrorKind = "dead_letter"
)

// Retryable reports whether the pipeline may retry the failed work
// automatically.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindTransientNetwork
}
