package config

// LLMProviderType selects the vendor adapter for a provider entry.
type LLMProviderType string

const (
	LLMProviderAnthropic LLMProviderType = "anthropic"
	LLMProviderOpenAI    LLMProviderType = "openai"
)

// LLMProviderConfig describes one LLM provider entry from llm-providers.yaml.
type LLMProviderConfig struct {
	// Type selects the vendor adapter.
	Type LLMProviderType `yaml:"type"`

	// Model is the vendor model identifier.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the vendor endpoint (proxies, test servers).
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxTokens caps completion length. Zero uses the adapter default.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature for sampling. Zero value means vendor default.
	Temperature float64 `yaml:"temperature,omitempty"`
}

// LLMConfig holds the provider registry and the default provider name.
type LLMConfig struct {
	DefaultProvider string
	Providers       map[string]LLMProviderConfig
}

// Provider returns the named provider config, falling back to the default
// provider when name is empty.
func (c *LLMConfig) Provider(name string) (LLMProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return LLMProviderConfig{}, NewValidationError("llm_provider", name, "", ErrProviderNotFound)
	}
	return p, nil
}

// defaultLLMConfig returns the built-in provider registry. User YAML merges
// over these entries.
func defaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		DefaultProvider: "anthropic",
		Providers: map[string]LLMProviderConfig{
			"anthropic": {
				Type:      LLMProviderAnthropic,
				Model:     "claude-sonnet-4-5",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				MaxTokens: 4096,
			},
			"openai": {
				Type:      LLMProviderOpenAI,
				Model:     "gpt-4o",
				APIKeyEnv: "OPENAI_API_KEY",
				MaxTokens: 4096,
			},
		},
	}
}
