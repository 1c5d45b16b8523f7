package search

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/nexus-research/nexus/pkg/config"
)

// Registry holds the configured provider adapters in a stable order.
type Registry struct {
	providers []Provider
}

// NewRegistry builds the adapters named in the search config. Providers
// whose API key is absent are skipped with a warning rather than failing
// startup, so a missing Brave key degrades to the keyless providers.
func NewRegistry(cfg *config.SearchConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Registry{}
	for _, name := range names {
		pc := cfg.Providers[name]
		switch pc.Type {
		case "duckduckgo":
			r.providers = append(r.providers, NewDuckDuckGo(pc, cfg.RequestTimeout))
		case "brave":
			apiKey := os.Getenv(pc.APIKeyEnv)
			if apiKey == "" {
				logger.Warn("Skipping search provider with missing API key",
					"provider", name, "api_key_env", pc.APIKeyEnv)
				continue
			}
			brave, err := NewBrave(apiKey, pc, cfg.RequestTimeout)
			if err != nil {
				return nil, fmt.Errorf("failed to build brave provider: %w", err)
			}
			r.providers = append(r.providers, brave)
		default:
			return nil, fmt.Errorf("unknown search provider type %q", pc.Type)
		}
	}
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}
	return r, nil
}

// NewRegistryFromProviders wraps pre-built adapters. Used by tests and by
// callers that construct providers themselves.
func NewRegistryFromProviders(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Providers returns the adapters in registration order.
func (r *Registry) Providers() []Provider {
	return r.providers
}
