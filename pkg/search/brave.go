package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nexus-research/nexus/pkg/config"
)

const (
	braveName       = "brave"
	braveBaseURL    = "https://api.search.brave.com/res/v1/web/search"
	braveMaxDefault = 10
)

// Brave adapts the Brave Web Search API. Requires an API key.
type Brave struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxResults int
}

// NewBrave creates the adapter from a provider entry.
func NewBrave(apiKey string, cfg config.SearchProviderConfig, timeout time.Duration) (*Brave, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = braveBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = braveMaxDefault
	}
	return &Brave{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxResults: maxResults,
	}, nil
}

func (b *Brave) Name() string { return braveName }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search implements Provider.
func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = b.maxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for i, r := range parsed.Web.Results {
		if i >= limit {
			break
		}
		results = append(results, Result{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
			Provider: braveName,
		})
	}
	return results, nil
}
