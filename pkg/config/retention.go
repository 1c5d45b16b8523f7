package config

import "time"

// RetentionConfig controls background pruning of finished task data.
type RetentionConfig struct {
	// Enabled turns the background cleanup loop on.
	Enabled bool

	// TaskRetentionDays is how long terminal non-continuous tasks are
	// kept before deletion (cascading to subtasks, operations, evidence,
	// and artifact rows).
	TaskRetentionDays int

	// DeadLetterMax caps the dead-letter list length; older entries are
	// trimmed first.
	DeadLetterMax int

	// CleanupInterval is the loop period.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Enabled:           true,
		TaskRetentionDays: 90,
		DeadLetterMax:     1000,
		CleanupInterval:   6 * time.Hour,
	}
}
