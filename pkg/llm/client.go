// Package llm provides the provider-agnostic completion client used by the
// agents. Vendor adapters (Anthropic, OpenAI) implement Client; a scripted
// client backs tests. Adapters translate vendor errors into the package
// sentinels so callers can decide retryability without knowing the vendor.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nexus-research/nexus/pkg/config"
)

// Sentinel errors surfaced by adapters. Wrapped with %w so errors.Is works
// through the vendor error chain.
var (
	// ErrRateLimited indicates the provider throttled the request. Retryable.
	ErrRateLimited = errors.New("llm provider rate limited")

	// ErrProvider indicates a non-retryable provider failure.
	ErrProvider = errors.New("llm provider error")

	// ErrEmptyCompletion indicates the provider returned no text content.
	ErrEmptyCompletion = errors.New("llm returned empty completion")
)

// Request is one completion request. System and Prompt are plain text; the
// agents build strict-JSON prompts and parse the text reply themselves.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the text completion plus usage accounting.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the completion interface the agents program against.
type Client interface {
	// Complete issues one completion. Implementations honor ctx deadlines.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewFromConfig builds the vendor adapter selected by the provider entry.
// The API key is read from the environment variable the entry names.
func NewFromConfig(cfg config.LLMProviderConfig) (Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("api key environment variable %s is not set", cfg.APIKeyEnv)
	}
	switch cfg.Type {
	case config.LLMProviderAnthropic:
		return NewAnthropic(apiKey, cfg)
	case config.LLMProviderOpenAI:
		return NewOpenAI(apiKey, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider type %q", cfg.Type)
	}
}
