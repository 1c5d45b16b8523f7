package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONOrExtract_Strict(t *testing.T) {
	var out map[string]any
	require.NoError(t, ParseJSONOrExtract(`{"a": 1}`, &out))
	assert.Equal(t, float64(1), out["a"])
}

func TestParseJSONOrExtract_MarkdownFences(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"a\": 1}\n```",
		"```\n{\"a\": 1}\n```",
		"  ```json\n{\"a\": 1}\n```  ",
	} {
		var out map[string]any
		require.NoError(t, ParseJSONOrExtract(text, &out), "input %q", text)
		assert.Equal(t, float64(1), out["a"])
	}
}

func TestParseJSONOrExtract_RecoversEmbeddedObject(t *testing.T) {
	text := `Sure! Here is the decomposition you asked for:
{"title": "root", "subtopics": [{"title": "child"}]}
Hope that helps.`

	var out TopicNode
	require.NoError(t, ParseJSONOrExtract(text, &out))
	assert.Equal(t, "root", out.Title)
	require.Len(t, out.Subtopics, 1)
	assert.Equal(t, "child", out.Subtopics[0].Title)
}

func TestParseJSONOrExtract_BracesInsideStrings(t *testing.T) {
	text := `prefix {"a": "value with } brace", "b": {"c": "{nested}"}} suffix`
	var out map[string]any
	require.NoError(t, ParseJSONOrExtract(text, &out))
	assert.Equal(t, "value with } brace", out["a"])
}

func TestParseJSONOrExtract_NoObject(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract("not json at all", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestParseJSONOrExtract_UnbalancedObject(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract(`{"a": 1`, &out)
	require.Error(t, err)
}

func TestTrimFences_PassthroughWithoutFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, TrimFences("  {\"a\":1}\n"))
}
