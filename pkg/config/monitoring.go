package config

import "time"

// MonitoringConfig controls the monitoring event bus and its channels.
type MonitoringConfig struct {
	// Enabled turns event publishing on. When false every publish is a
	// no-op returning success.
	Enabled bool

	// MaxEventSizeBytes is the serialized size cap; larger events are
	// reduced (meta replaced, then message/error clipped) before publish.
	MaxEventSizeBytes int

	// GlobalChannel receives every published event.
	GlobalChannel string

	// StatsChannel additionally receives stats_snapshot and
	// queue_depth_update events.
	StatsChannel string

	// ProjectChannelPrefix is prepended to the project id for
	// project-scoped channels.
	ProjectChannelPrefix string

	// PublishAttempts is the per-channel attempt ceiling.
	PublishAttempts int

	// PublishBackoff is the initial retry backoff, doubled per attempt.
	PublishBackoff time.Duration

	// PublishBackoffCap bounds the doubling.
	PublishBackoffCap time.Duration

	// PublishTimeout is the per-attempt deadline.
	PublishTimeout time.Duration
}

// DefaultMonitoringConfig returns the built-in monitoring defaults.
func DefaultMonitoringConfig() *MonitoringConfig {
	return &MonitoringConfig{
		Enabled:              true,
		MaxEventSizeBytes:    8192,
		GlobalChannel:        "nexus:events",
		StatsChannel:         "nexus:events:stats",
		ProjectChannelPrefix: "nexus:events:project:",
		PublishAttempts:      4,
		PublishBackoff:       100 * time.Millisecond,
		PublishBackoffCap:    1 * time.Second,
		PublishTimeout:       200 * time.Millisecond,
	}
}
