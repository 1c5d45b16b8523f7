package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/search"
)

func TestAggregate_DeduplicatesByURL(t *testing.T) {
	responses := []QuestionResponse{
		{
			Question: "q1",
			Results: []search.Result{
				{URL: "https://a", Title: "short", Snippet: "abc", Provider: "p1"},
				{URL: "https://b", Title: "only", Snippet: "b text", Provider: "p1"},
			},
		},
		{
			Question: "q2",
			Results: []search.Result{
				{URL: "https://a", Title: "long", Snippet: "a much longer snippet", Provider: "p2"},
			},
		},
	}

	result := Aggregate(responses)

	require.Len(t, result.Sources, 2)
	// Longest snippet wins for https://a.
	assert.Equal(t, "https://a", result.Sources[0].URL)
	assert.Equal(t, "long", result.Sources[0].Title)
	assert.Equal(t, "p2", result.Sources[0].Provider)
	// Both questions that surfaced the URL are preserved.
	assert.Equal(t, []string{"q1", "q2"}, result.Sources[0].Questions)
	// Key points union both snippets.
	assert.Contains(t, result.Sources[0].KeyPoints, "abc")
	assert.Contains(t, result.Sources[0].KeyPoints, "a much longer snippet")
}

func TestAggregate_TieKeepsFirstRetrieval(t *testing.T) {
	responses := []QuestionResponse{
		{Question: "q", Results: []search.Result{
			{URL: "https://a", Title: "first", Snippet: "12345", Provider: "p1"},
			{URL: "https://a", Title: "second", Snippet: "abcde", Provider: "p2"},
		}},
	}

	result := Aggregate(responses)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "first", result.Sources[0].Title)
	assert.Equal(t, "p1", result.Sources[0].Provider)
}

func TestAggregate_KeyPointsAreASet(t *testing.T) {
	responses := []QuestionResponse{
		{Question: "q1", Results: []search.Result{
			{URL: "https://a", Snippet: "shared point"},
			{URL: "https://b", Snippet: "shared point"},
			{URL: "https://c", Snippet: "unique point"},
		}},
	}

	result := Aggregate(responses)
	assert.ElementsMatch(t, []string{"shared point", "unique point"}, result.KeyPoints)
}

func TestAggregate_EmptyInput(t *testing.T) {
	result := Aggregate(nil)
	assert.Empty(t, result.Sources)
	assert.Empty(t, result.KeyPoints)
}
