package e2e

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/search"
)

func TestResearchTask_CompletesEndToEnd(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ws, err := WSConnect(ctx, app.WSURL)
	require.NoError(t, err)
	defer ws.Close()
	_, err = ws.WaitForEventType("stats_snapshot", 5*time.Second)
	require.NoError(t, err)

	taskID := app.CreateTask(t, map[string]any{
		"title":       "Solar power adoption",
		"description": "Adoption trends by region",
	})

	body := app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)
	assert.Equal(t, taskID, body["task_id"])

	// Every stage persisted its payload and the final blobs landed.
	results := body["results"].(map[string]any)
	for _, stage := range []string{"planning", "searching", "aggregating", "summarizing", "reasoning", "generating_artifacts"} {
		assert.Contains(t, results, stage)
	}
	summary := body["summary"].(map[string]any)
	assert.Equal(t, "Adoption is accelerating.", summary["executive_summary"])
	reasoning := body["reasoning"].(map[string]any)
	assert.Equal(t, "The evidence is consistent.", reasoning["synthesis"])

	// Markdown and JSON artifacts, as rows and as files on disk.
	artifacts := body["artifacts"].([]any)
	require.Len(t, artifacts, 2)
	entries, err := os.ReadDir(app.ArtifactsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// One completed operation per stage.
	ops, err := app.Store.ListOperations(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, ops, 6)
	for _, op := range ops {
		assert.Equal(t, "completed", string(op.Status))
	}

	// The event stream saw the full lifecycle in pipeline order.
	_, err = ws.WaitForEventType("task_completed", 10*time.Second)
	require.NoError(t, err)
	got := eventTypes(ws.Events(), "task_started", "phase_started", "task_completed")
	assert.Equal(t, []string{
		"task_started",
		"phase_started:planning",
		"phase_started:searching",
		"phase_started:aggregating",
		"phase_started:summarizing",
		"phase_started:reasoning",
		"phase_started:generating_artifacts",
		"task_completed",
	}, got)
}

func TestResearchTask_UnparseablePlanFailsTask(t *testing.T) {
	client := llm.NewScripted()
	client.Default = "no JSON here"
	app := NewTestApp(t, WithLLMClient(client))

	taskID := app.CreateTask(t, map[string]any{"title": "Doomed request"})

	body := app.WaitForTaskStatus(t, taskID, "failed", 20*time.Second)
	assert.Equal(t, "parse_error", body["error_category"])

	// Planning ran twice (one retry) and both operations closed failed;
	// later stages never opened.
	ops, err := app.Store.ListOperations(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, "planning", string(op.Stage))
		assert.Equal(t, "failed", string(op.Status))
	}
}

func TestResearchTask_SummaryFallsBackToPlaceholder(t *testing.T) {
	broken := llm.NewScripted().
		Reply("Decompose",
			`{"title":"root","subtopics":[{"title":"leaf","key_questions":["stub question"]}]}`).
		Reply("Summarize", "not json").
		Reply("Analyze",
			`{"synthesis":"Worked from a placeholder.","insights":["i"],"recommendations":["r"]}`)
	app := NewTestApp(t, WithLLMClient(broken))

	taskID := app.CreateTask(t, map[string]any{"title": "Partial research"})

	body := app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)
	summary := body["summary"].(map[string]any)
	assert.Contains(t, summary["executive_summary"], "Summary unavailable")
	reasoning := body["reasoning"].(map[string]any)
	assert.Equal(t, "Worked from a placeholder.", reasoning["synthesis"])
}

func TestAdminPurge_ClearsStoreAndQueue(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()), WithPurgeToken("purge-me"))

	taskID := app.CreateTask(t, map[string]any{"title": "Ephemeral"})
	app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)

	resp := app.postJSON(t, "/admin/purge", map[string]any{"confirm": "purge-me"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(t, resp))

	resp2, err := http.Get(app.BaseURL + "/tasks/" + taskID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	depths, err := app.Queue.Depths(context.Background())
	require.NoError(t, err)
	for tier, n := range depths {
		assert.Zero(t, n, tier)
	}
}

func TestResearchTask_EnumeratorFallbackDedupesSources(t *testing.T) {
	client := llm.NewScripted().
		Reply("Decompose",
			`{"title":"root","key_questions":[],"subtopics":[{"title":"leaf","key_questions":["universities in Colombia"]}]}`).
		Reply("Enumerate", "the model rambled instead of returning JSON").
		Reply("Summarize",
			`{"executive_summary":"Coverage is broad.","key_findings":["finding one"],"sources":["https://example.org/universities"]}`).
		Reply("Analyze",
			`{"synthesis":"The evidence is consistent.","insights":["insight one"],"recommendations":["recommendation one"]}`)

	longTitle := strings.Repeat("higher education ", 20) // 340 bytes
	provider := &stubProvider{
		name: "stub",
		results: []search.Result{
			{Title: longTitle, URL: "https://example.org/universities", Snippet: "first hit", Provider: "stub"},
			{Title: "Universities", URL: "https://example.org/universities", Snippet: "repeat hit", Provider: "stub"},
		},
	}
	app := NewTestApp(t, WithLLMClient(client), WithSearchProviders(provider))

	taskID := app.CreateTask(t, map[string]any{"title": "Higher education survey"})
	app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)

	// The categorical question went through exactly one enumeration attempt,
	// and the unparseable output degraded to a direct query rather than
	// failing the search stage.
	enumCalls := 0
	for _, call := range client.Calls() {
		if strings.Contains(call.Prompt, "Enumerate") {
			enumCalls++
		}
	}
	assert.Equal(t, 1, enumCalls)

	// Both hits share a URL, so the store keeps one canonical row with the
	// first title clipped to the storage bound.
	ctx := context.Background()
	count, err := app.Store.CountSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	src, err := app.Store.GetSourceByURL(ctx, "https://example.org/universities")
	require.NoError(t, err)
	assert.Len(t, src.Title, 254)
	assert.Equal(t, "stub", src.Provider)
}
