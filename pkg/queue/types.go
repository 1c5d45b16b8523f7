// Package queue provides the Redis-backed work queue: three priority FIFOs
// with reliable pop into per-worker in-flight lists, heartbeat tracking,
// and a supervisor that requeues jobs abandoned by dead workers.
package queue

import (
	"errors"
	"fmt"

	"github.com/nexus-research/nexus/pkg/models"
)

// Redis key layout. Worker ids are embedded in the in-flight and heartbeat
// keys so the supervisor can attribute abandoned jobs to their worker.
const (
	KeyHighPriority   = "nexus:tasks:high_priority"
	KeyNormalPriority = "nexus:tasks:normal_priority"
	KeyLowPriority    = "nexus:tasks:low_priority"
	KeyDeadLetter     = "nexus:tasks:dead_letter"

	processingPrefix = "nexus:processing:"
	heartbeatPrefix  = "nexus:worker:heartbeat:"
)

// Sentinel errors for queue operations.
var (
	// ErrEmpty indicates no job became available within the pop deadline.
	ErrEmpty = errors.New("no jobs available")
)

// DeadLetterCategory is the error category recorded when a job exhausts
// its retries.
const DeadLetterCategory = "dead_letter"

// priorityKey maps a tier to its Redis list.
func priorityKey(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return KeyHighPriority
	case models.PriorityLow:
		return KeyLowPriority
	default:
		return KeyNormalPriority
	}
}

// popOrder lists the tier keys in pop-inspection order.
var popOrder = []string{KeyHighPriority, KeyNormalPriority, KeyLowPriority}

// ProcessingKey returns the in-flight list key for a worker.
func ProcessingKey(workerID string) string {
	return processingPrefix + workerID
}

// HeartbeatKey returns the heartbeat key for a worker.
func HeartbeatKey(workerID string) string {
	return heartbeatPrefix + workerID
}

// tierName maps a Redis list key back to its depth-report name.
func tierName(key string) string {
	switch key {
	case KeyHighPriority:
		return string(models.PriorityHigh)
	case KeyNormalPriority:
		return string(models.PriorityNormal)
	case KeyLowPriority:
		return string(models.PriorityLow)
	default:
		return key
	}
}

// workerIDFromProcessingKey recovers the worker id from an in-flight key.
func workerIDFromProcessingKey(key string) (string, error) {
	if len(key) <= len(processingPrefix) {
		return "", fmt.Errorf("malformed processing key %q", key)
	}
	return key[len(processingPrefix):], nil
}
