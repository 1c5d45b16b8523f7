package config

import "time"

// SearchProviderConfig describes one search provider entry.
type SearchProviderConfig struct {
	// Type selects the adapter: "duckduckgo" or "brave".
	Type string `yaml:"type"`

	// APIKeyEnv names the environment variable holding the API key.
	// Empty for keyless providers.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxResults caps the results requested per query.
	MaxResults int `yaml:"max_results,omitempty"`
}

// SearchConfig holds the search provider registry and shared settings.
type SearchConfig struct {
	// Providers maps a provider name to its adapter configuration.
	Providers map[string]SearchProviderConfig

	// RequestTimeout bounds one provider HTTP request.
	RequestTimeout time.Duration
}

// DefaultSearchConfig returns the built-in search defaults: the keyless
// DuckDuckGo adapter only. Brave requires an API key and is opt-in via YAML.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Providers: map[string]SearchProviderConfig{
			"duckduckgo": {Type: "duckduckgo", MaxResults: 10},
		},
		RequestTimeout: 15 * time.Second,
	}
}
