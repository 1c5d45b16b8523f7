package config

import "time"

// QueueConfig contains work queue and worker pool configuration.
// These values control how jobs are popped, tracked, and retried.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	// Each worker independently pops and processes one task at a time.
	WorkerCount int

	// PopTimeout is the deadline for one blocking pop across all
	// priority tiers. Workers refresh their heartbeat between pops.
	PopTimeout time.Duration

	// HeartbeatInterval is how often a worker publishes its heartbeat.
	HeartbeatInterval time.Duration

	// HeartbeatTTL is the expiry on the worker heartbeat key. A worker
	// whose key has lapsed is presumed dead by the supervisor.
	HeartbeatTTL time.Duration

	// SupervisorInterval is how often the supervisor scans in-flight
	// entries for workers with lapsed heartbeats.
	SupervisorInterval time.Duration

	// StaleAfter is how long a worker may go without a heartbeat before
	// its in-flight entries are requeued. Zero derives 2x HeartbeatInterval
	// at load time.
	StaleAfter time.Duration

	// MaxRetries is the retry ceiling; a job at this count goes to the
	// dead-letter list instead of being requeued.
	MaxRetries int

	// StageTimeout is the hard cap on a single pipeline stage.
	StageTimeout time.Duration

	// ReplyTimeout is the default deadline for correlated
	// request/reply exchanges on the messaging bus.
	ReplyTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// tasks to complete during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             2,
		PopTimeout:              5 * time.Second,
		HeartbeatInterval:       10 * time.Second,
		HeartbeatTTL:            30 * time.Second,
		SupervisorInterval:      10 * time.Second,
		StaleAfter:              0,
		MaxRetries:              5,
		StageTimeout:            5 * time.Minute,
		ReplyTimeout:            60 * time.Second,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}
