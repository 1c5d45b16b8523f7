// Package search provides the search-provider adapter contract and the
// built-in REST adapters. Each adapter is a thin wrapper that isolates
// provider-specific request shaping behind one Search method.
package search

import (
	"context"
	"errors"
)

// Result is one search hit in provider-neutral form.
type Result struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Snippet  string  `json:"snippet"`
	Provider string  `json:"provider"`
	Score    float64 `json:"score,omitempty"`
}

// Options tunes one query.
type Options struct {
	// MaxResults caps the number of hits. Zero uses the provider default.
	MaxResults int
}

// Provider is the adapter contract.
type Provider interface {
	// Name identifies the provider in evidence provenance.
	Name() string

	// Search runs one query. An empty slice with a nil error is a valid
	// answer (no hits).
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// ErrNoProviders indicates the registry has no registered adapters.
var ErrNoProviders = errors.New("no search providers registered")
