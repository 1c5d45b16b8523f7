// Package config loads and validates the orchestrator configuration from
// YAML files and environment variables.
//
// Two files live in the config directory:
//
//	nexus.yaml          — queue, monitoring, and search settings
//	llm-providers.yaml  — LLM provider definitions
//
// Both files are optional; built-in defaults apply when they are absent.
// Values support {{.VAR}} environment expansion. A handful of
// infrastructure settings (monitoring flag, channel names, heartbeat
// interval) can additionally be overridden by plain environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
)

// Config is the fully resolved configuration, ready for use.
type Config struct {
	configDir string

	Queue      *QueueConfig
	Monitoring *MonitoringConfig
	Search     *SearchConfig
	Retention  *RetentionConfig

	// LLM holds the provider registry and the default provider name.
	LLM *LLMConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (missing files fall back to defaults)
//  2. Expand environment variables
//  3. Merge user-defined values over built-in defaults
//  4. Apply environment overrides
//  5. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"workers", cfg.Queue.WorkerCount,
		"monitoring_enabled", cfg.Monitoring.Enabled,
		"llm_providers", len(cfg.LLM.Providers),
		"search_providers", len(cfg.Search.Providers))

	return cfg, nil
}
