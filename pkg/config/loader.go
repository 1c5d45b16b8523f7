package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// nexusYAMLConfig represents the complete nexus.yaml file structure.
// Duration fields are strings ("5s", "1m") parsed during resolution.
type nexusYAMLConfig struct {
	Queue      *queueYAMLConfig      `yaml:"queue"`
	Monitoring *monitoringYAMLConfig `yaml:"monitoring"`
	Search     *searchYAMLConfig     `yaml:"search"`
	Retention  *retentionYAMLConfig  `yaml:"retention"`
}

type queueYAMLConfig struct {
	WorkerCount             int    `yaml:"worker_count,omitempty"`
	PopTimeout              string `yaml:"pop_timeout,omitempty"`
	HeartbeatInterval       string `yaml:"heartbeat_interval,omitempty"`
	HeartbeatTTL            string `yaml:"heartbeat_ttl,omitempty"`
	SupervisorInterval      string `yaml:"supervisor_interval,omitempty"`
	StaleAfter              string `yaml:"stale_after,omitempty"`
	MaxRetries              int    `yaml:"max_retries,omitempty"`
	StageTimeout            string `yaml:"stage_timeout,omitempty"`
	ReplyTimeout            string `yaml:"reply_timeout,omitempty"`
	GracefulShutdownTimeout string `yaml:"graceful_shutdown_timeout,omitempty"`
}

// monitoringYAMLConfig mirrors MonitoringConfig for YAML parsing. Enabled is
// a pointer so an omitted key is distinguishable from an explicit false.
type monitoringYAMLConfig struct {
	Enabled              *bool  `yaml:"enabled,omitempty"`
	MaxEventSizeBytes    int    `yaml:"max_event_size_bytes,omitempty"`
	GlobalChannel        string `yaml:"global_channel,omitempty"`
	StatsChannel         string `yaml:"stats_channel,omitempty"`
	ProjectChannelPrefix string `yaml:"project_channel_prefix,omitempty"`
	PublishAttempts      int    `yaml:"publish_attempts,omitempty"`
	PublishBackoff       string `yaml:"publish_backoff,omitempty"`
	PublishBackoffCap    string `yaml:"publish_backoff_cap,omitempty"`
	PublishTimeout       string `yaml:"publish_timeout,omitempty"`
}

type retentionYAMLConfig struct {
	Enabled           *bool  `yaml:"enabled,omitempty"`
	TaskRetentionDays int    `yaml:"task_retention_days,omitempty"`
	DeadLetterMax     int    `yaml:"dead_letter_max,omitempty"`
	CleanupInterval   string `yaml:"cleanup_interval,omitempty"`
}

type searchYAMLConfig struct {
	Providers      map[string]SearchProviderConfig `yaml:"providers,omitempty"`
	RequestTimeout string                          `yaml:"request_timeout,omitempty"`
}

// llmProvidersYAMLConfig represents the complete llm-providers.yaml file structure.
type llmProvidersYAMLConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	LLMProviders    map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// load is the internal loader behind Initialize.
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	// 1. Load nexus.yaml (queue + monitoring + search); absent file keeps defaults
	var fileCfg nexusYAMLConfig
	if err := loader.loadYAML("nexus.yaml", &fileCfg); err != nil {
		return nil, NewLoadError("nexus.yaml", err)
	}

	// 2. Load llm-providers.yaml; absent file keeps the built-in registry
	var llmFile llmProvidersYAMLConfig
	llmFile.LLMProviders = make(map[string]LLMProviderConfig)
	if err := loader.loadYAML("llm-providers.yaml", &llmFile); err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Resolve each section: file values over built-in defaults
	queueCfg := resolveQueueConfig(fileCfg.Queue)
	monCfg := resolveMonitoringConfig(fileCfg.Monitoring)
	searchCfg := resolveSearchConfig(fileCfg.Search)
	retentionCfg := resolveRetentionConfig(fileCfg.Retention)

	llmCfg := defaultLLMConfig()
	if llmFile.DefaultProvider != "" {
		llmCfg.DefaultProvider = llmFile.DefaultProvider
	}
	// User-defined providers merge over (and may replace) built-in entries.
	if err := mergo.Merge(&llmCfg.Providers, llmFile.LLMProviders, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge llm providers: %w", err)
	}

	// 4. Environment overrides for the infrastructure settings that are
	// commonly set per deployment rather than per config file.
	applyEnvOverrides(queueCfg, monCfg)

	if queueCfg.StaleAfter <= 0 {
		queueCfg.StaleAfter = 2 * queueCfg.HeartbeatInterval
	}

	return &Config{
		configDir:  configDir,
		Queue:      queueCfg,
		Monitoring: monCfg,
		Search:     searchCfg,
		Retention:  retentionCfg,
		LLM:        llmCfg,
	}, nil
}

type configLoader struct {
	configDir string
}

// loadYAML reads, env-expands, and parses one config file into target.
// A missing file is not an error; the caller's defaults stand.
func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data = expandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// expandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}). The template form avoids colliding with literal $
// characters in regex patterns, passwords, and channel globs. Missing
// variables expand to empty strings; malformed templates pass the content
// through untouched so the YAML parser reports the real problem.
func expandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}

// parseDurationField parses a duration string from YAML, keeping the default
// and logging a warning when the value is invalid.
func parseDurationField(field, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field,
			"value", value,
			"default", def,
			"error", err)
		return def
	}
	return d
}

// resolveQueueConfig applies file values over the built-in queue defaults.
func resolveQueueConfig(file *queueYAMLConfig) *QueueConfig {
	cfg := DefaultQueueConfig()
	if file == nil {
		return cfg
	}
	if file.WorkerCount > 0 {
		cfg.WorkerCount = file.WorkerCount
	}
	if file.MaxRetries > 0 {
		cfg.MaxRetries = file.MaxRetries
	}
	cfg.PopTimeout = parseDurationField("pop_timeout", file.PopTimeout, cfg.PopTimeout)
	cfg.HeartbeatInterval = parseDurationField("heartbeat_interval", file.HeartbeatInterval, cfg.HeartbeatInterval)
	cfg.HeartbeatTTL = parseDurationField("heartbeat_ttl", file.HeartbeatTTL, cfg.HeartbeatTTL)
	cfg.SupervisorInterval = parseDurationField("supervisor_interval", file.SupervisorInterval, cfg.SupervisorInterval)
	cfg.StageTimeout = parseDurationField("stage_timeout", file.StageTimeout, cfg.StageTimeout)
	cfg.ReplyTimeout = parseDurationField("reply_timeout", file.ReplyTimeout, cfg.ReplyTimeout)
	cfg.GracefulShutdownTimeout = parseDurationField("graceful_shutdown_timeout", file.GracefulShutdownTimeout, cfg.GracefulShutdownTimeout)
	cfg.StaleAfter = parseDurationField("stale_after", file.StaleAfter, cfg.StaleAfter)
	return cfg
}

// resolveMonitoringConfig applies file values over the built-in monitoring
// defaults, field by field.
func resolveMonitoringConfig(file *monitoringYAMLConfig) *MonitoringConfig {
	cfg := DefaultMonitoringConfig()
	if file == nil {
		return cfg
	}
	if file.Enabled != nil {
		cfg.Enabled = *file.Enabled
	}
	if file.MaxEventSizeBytes > 0 {
		cfg.MaxEventSizeBytes = file.MaxEventSizeBytes
	}
	if file.GlobalChannel != "" {
		cfg.GlobalChannel = file.GlobalChannel
	}
	if file.StatsChannel != "" {
		cfg.StatsChannel = file.StatsChannel
	}
	if file.ProjectChannelPrefix != "" {
		cfg.ProjectChannelPrefix = file.ProjectChannelPrefix
	}
	if file.PublishAttempts > 0 {
		cfg.PublishAttempts = file.PublishAttempts
	}
	cfg.PublishBackoff = parseDurationField("publish_backoff", file.PublishBackoff, cfg.PublishBackoff)
	cfg.PublishBackoffCap = parseDurationField("publish_backoff_cap", file.PublishBackoffCap, cfg.PublishBackoffCap)
	cfg.PublishTimeout = parseDurationField("publish_timeout", file.PublishTimeout, cfg.PublishTimeout)
	return cfg
}

// resolveRetentionConfig applies file values over the built-in retention
// defaults.
func resolveRetentionConfig(file *retentionYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if file == nil {
		return cfg
	}
	if file.Enabled != nil {
		cfg.Enabled = *file.Enabled
	}
	if file.TaskRetentionDays > 0 {
		cfg.TaskRetentionDays = file.TaskRetentionDays
	}
	if file.DeadLetterMax > 0 {
		cfg.DeadLetterMax = file.DeadLetterMax
	}
	cfg.CleanupInterval = parseDurationField("cleanup_interval", file.CleanupInterval, cfg.CleanupInterval)
	return cfg
}

// resolveSearchConfig applies file values over the built-in search defaults.
func resolveSearchConfig(file *searchYAMLConfig) *SearchConfig {
	cfg := DefaultSearchConfig()
	if file == nil {
		return cfg
	}
	if len(file.Providers) > 0 {
		cfg.Providers = file.Providers
	}
	cfg.RequestTimeout = parseDurationField("request_timeout", file.RequestTimeout, cfg.RequestTimeout)
	return cfg
}

// applyEnvOverrides maps deployment environment variables onto the loaded
// configuration. Unset or malformed values leave the YAML/default value.
func applyEnvOverrides(queue *QueueConfig, mon *MonitoringConfig) {
	if v := os.Getenv("MONITORING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			mon.Enabled = b
		}
	}
	if v := os.Getenv("MAX_EVENT_SIZE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			mon.MaxEventSizeBytes = n
		}
	}
	if v := os.Getenv("EVENTS_CHANNEL"); v != "" {
		mon.GlobalChannel = v
	}
	if v := os.Getenv("EVENTS_STATS_CHANNEL"); v != "" {
		mon.StatsChannel = v
	}
	if v := os.Getenv("EVENTS_PROJECT_CHANNEL_PREFIX"); v != "" {
		mon.ProjectChannelPrefix = v
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			queue.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			queue.WorkerCount = n
		}
	}
}
