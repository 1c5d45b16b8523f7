package search

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/config"
)

func TestDuckDuckGo_ParsesAbstractAndTopics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "universities in colombia", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Write([]byte(`{
			"Heading": "Universities",
			"AbstractText": "Overview of universities.",
			"AbstractURL": "https://example.org/unis",
			"RelatedTopics": [
				{"Text": "National University", "FirstURL": "https://example.org/nat"},
				{"Name": "Category", "Topics": [
					{"Text": "Andes University", "FirstURL": "https://example.org/andes"}
				]},
				{"Text": "missing url topic"}
			]
		}`))
	}))
	defer server.Close()

	d := NewDuckDuckGo(config.SearchProviderConfig{BaseURL: server.URL}, 5*time.Second)
	results, err := d.Search(context.Background(), "universities in colombia", Options{})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "https://example.org/unis", results[0].URL)
	assert.Equal(t, "https://example.org/nat", results[1].URL)
	assert.Equal(t, "https://example.org/andes", results[2].URL)
	for _, r := range results {
		assert.Equal(t, "duckduckgo", r.Provider)
	}
}

func TestDuckDuckGo_MaxResultsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"RelatedTopics": [
			{"Text": "a", "FirstURL": "https://a"},
			{"Text": "b", "FirstURL": "https://b"},
			{"Text": "c", "FirstURL": "https://c"}
		]}`))
	}))
	defer server.Close()

	d := NewDuckDuckGo(config.SearchProviderConfig{BaseURL: server.URL}, 5*time.Second)
	results, err := d.Search(context.Background(), "q", Options{MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDuckDuckGo_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewDuckDuckGo(config.SearchProviderConfig{BaseURL: server.URL}, 5*time.Second)
	_, err := d.Search(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBrave_ParsesWebResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		w.Write([]byte(`{"web": {"results": [
			{"title": "Hit", "url": "https://example.org/hit", "description": "snippet"}
		]}}`))
	}))
	defer server.Close()

	b, err := NewBrave("secret", config.SearchProviderConfig{BaseURL: server.URL, MaxResults: 3}, 5*time.Second)
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Hit", results[0].Title)
	assert.Equal(t, "snippet", results[0].Snippet)
	assert.Equal(t, "brave", results[0].Provider)
}

func TestBrave_RequiresAPIKey(t *testing.T) {
	_, err := NewBrave("", config.SearchProviderConfig{}, time.Second)
	require.Error(t, err)
}

func TestNewRegistry_SkipsBraveWithoutKey(t *testing.T) {
	cfg := &config.SearchConfig{
		Providers: map[string]config.SearchProviderConfig{
			"duckduckgo": {Type: "duckduckgo"},
			"brave":      {Type: "brave", APIKeyEnv: "NEXUS_TEST_UNSET_BRAVE_KEY"},
		},
		RequestTimeout: time.Second,
	}
	r, err := NewRegistry(cfg, slog.Default())
	require.NoError(t, err)
	require.Len(t, r.Providers(), 1)
	assert.Equal(t, "duckduckgo", r.Providers()[0].Name())
}

func TestNewRegistry_EmptyFails(t *testing.T) {
	cfg := &config.SearchConfig{Providers: map[string]config.SearchProviderConfig{}}
	_, err := NewRegistry(cfg, slog.Default())
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestNewRegistry_UnknownTypeFails(t *testing.T) {
	cfg := &config.SearchConfig{
		Providers: map[string]config.SearchProviderConfig{"x": {Type: "bing"}},
	}
	_, err := NewRegistry(cfg, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bing")
}
