package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/llm"
)

func TestEnumerate_ParsesSubspaces(t *testing.T) {
	client := llm.NewScripted()
	client.Default = `{"subspaces": [
		{"name": "Antioquia", "query": "universities Antioquia", "type": "department"},
		{"name": "Cundinamarca", "query": "universities Cundinamarca", "type": "department"}
	]}`

	e := NewEnumerator(client, nil)
	subs := e.Enumerate(context.Background(), "universities", "in Colombia")

	require.Len(t, subs, 2)
	assert.Equal(t, "universities Antioquia", subs[0].Query)
	assert.Equal(t, "department", subs[0].Metadata["type"])
	assert.NotEqual(t, subs[0].ID, subs[1].ID)
}

func TestEnumerate_MalformedOutputFallsBackToDirect(t *testing.T) {
	client := llm.NewScripted()
	client.Default = "not json"

	e := NewEnumerator(client, nil)
	subs := e.Enumerate(context.Background(), "universities", "in Colombia")

	require.Len(t, subs, 1)
	assert.Equal(t, "universities in Colombia", subs[0].Query)
	assert.Equal(t, "direct", subs[0].Metadata["type"])
	assert.NotContains(t, subs[0].Metadata, "error")
}

func TestEnumerate_LLMErrorFallsBackWithErrorMetadata(t *testing.T) {
	client := llm.NewScripted()
	client.Err = errors.New("provider unavailable")

	e := NewEnumerator(client, nil)
	subs := e.Enumerate(context.Background(), "universities", "in Colombia")

	require.Len(t, subs, 1)
	assert.Equal(t, "universities in Colombia", subs[0].Query)
	assert.Equal(t, "direct", subs[0].Metadata["type"])
	assert.Equal(t, "provider unavailable", subs[0].Metadata["error"])
}

func TestEnumerate_EmptySubspaceListFallsBack(t *testing.T) {
	client := llm.NewScripted()
	client.Default = `{"subspaces": []}`

	e := NewEnumerator(client, nil)
	subs := e.Enumerate(context.Background(), "hospitals", "in Texas")

	require.Len(t, subs, 1)
	assert.Equal(t, "hospitals in Texas", subs[0].Query)
}
