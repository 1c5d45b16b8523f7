package config

import "fmt"

// validate performs validation on loaded configuration.
func validate(cfg *Config) error {
	if cfg.Queue.WorkerCount <= 0 {
		return NewValidationError("queue", "", "worker_count", ErrInvalidValue)
	}
	if cfg.Queue.MaxRetries <= 0 {
		return NewValidationError("queue", "", "max_retries", ErrInvalidValue)
	}
	if cfg.Queue.HeartbeatInterval <= 0 || cfg.Queue.HeartbeatTTL <= 0 {
		return NewValidationError("queue", "", "heartbeat_interval", ErrInvalidValue)
	}
	if cfg.Queue.HeartbeatTTL < cfg.Queue.HeartbeatInterval {
		return NewValidationError("queue", "", "heartbeat_ttl",
			fmt.Errorf("%w: must be at least heartbeat_interval", ErrInvalidValue))
	}

	if cfg.Monitoring.MaxEventSizeBytes <= 0 {
		return NewValidationError("monitoring", "", "max_event_size_bytes", ErrInvalidValue)
	}
	if cfg.Monitoring.GlobalChannel == "" || cfg.Monitoring.StatsChannel == "" {
		return NewValidationError("monitoring", "", "global_channel", ErrMissingRequiredField)
	}
	if cfg.Monitoring.PublishAttempts <= 0 {
		return NewValidationError("monitoring", "", "publish_attempts", ErrInvalidValue)
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.TaskRetentionDays <= 0 {
			return NewValidationError("retention", "", "task_retention_days", ErrInvalidValue)
		}
		if cfg.Retention.CleanupInterval <= 0 {
			return NewValidationError("retention", "", "cleanup_interval", ErrInvalidValue)
		}
	}

	if cfg.LLM.DefaultProvider != "" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			return NewValidationError("llm_provider", cfg.LLM.DefaultProvider, "",
				ErrProviderNotFound)
		}
	}
	for name, p := range cfg.LLM.Providers {
		switch p.Type {
		case LLMProviderAnthropic, LLMProviderOpenAI:
		default:
			return NewValidationError("llm_provider", name, "type", ErrInvalidValue)
		}
		if p.Model == "" {
			return NewValidationError("llm_provider", name, "model", ErrMissingRequiredField)
		}
	}

	for name, p := range cfg.Search.Providers {
		switch p.Type {
		case "duckduckgo", "brave":
		default:
			return NewValidationError("search_provider", name, "type", ErrInvalidValue)
		}
	}

	return nil
}
