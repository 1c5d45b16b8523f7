package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nexus-research/nexus/pkg/config"
)

const (
	duckduckgoName       = "duckduckgo"
	duckduckgoBaseURL    = "https://api.duckduckgo.com/"
	duckduckgoMaxDefault = 10
)

// DuckDuckGo adapts the keyless DuckDuckGo Instant Answer API. Related
// topics are flattened into results; nested category groups are walked one
// level deep, which is as far as the API nests.
type DuckDuckGo struct {
	httpClient *http.Client
	baseURL    string
	maxResults int
}

// NewDuckDuckGo creates the adapter from a provider entry.
func NewDuckDuckGo(cfg config.SearchProviderConfig, timeout time.Duration) *DuckDuckGo {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = duckduckgoBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = duckduckgoMaxDefault
	}
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxResults: maxResults,
	}
}

func (d *DuckDuckGo) Name() string { return duckduckgoName }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var parsed ddgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = d.maxResults
	}

	results := make([]Result, 0, limit)
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, Result{
			Title:    parsed.Heading,
			URL:      parsed.AbstractURL,
			Snippet:  parsed.AbstractText,
			Provider: duckduckgoName,
		})
	}
	results = appendTopics(results, parsed.RelatedTopics, limit)
	return results, nil
}

func appendTopics(results []Result, topics []ddgTopic, limit int) []Result {
	for _, t := range topics {
		if len(results) >= limit {
			break
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, limit)
			continue
		}
		if t.FirstURL == "" || t.Text == "" {
			continue
		}
		results = append(results, Result{
			Title:    t.Text,
			URL:      t.FirstURL,
			Snippet:  t.Text,
			Provider: duckduckgoName,
		})
	}
	return results
}
