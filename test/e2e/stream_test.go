package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorStream_SnapshotOnConnect(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ws, err := WSConnect(ctx, app.WSURL)
	require.NoError(t, err)
	defer ws.Close()

	evt, err := ws.WaitForEventType("stats_snapshot", 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, evt.Parsed, "queue")
	assert.Contains(t, evt.Parsed, "counts")
}

func TestMonitorStream_TaskFilterScopesEvents(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()), WithWorkerCount(2))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first := app.CreateTask(t, map[string]any{"title": "First topic"})
	app.WaitForTaskStatus(t, first, "completed", 20*time.Second)

	filtered, err := WSConnect(ctx, app.WSURL+"?task_id="+first)
	require.NoError(t, err)
	defer filtered.Close()
	open, err := WSConnect(ctx, app.WSURL)
	require.NoError(t, err)
	defer open.Close()

	// The connect snapshot doubles as a registration barrier.
	_, err = filtered.WaitForEventType("stats_snapshot", 5*time.Second)
	require.NoError(t, err)
	_, err = open.WaitForEventType("stats_snapshot", 5*time.Second)
	require.NoError(t, err)

	second := app.CreateTask(t, map[string]any{"title": "Second topic"})
	app.WaitForTaskStatus(t, second, "completed", 20*time.Second)

	_, err = open.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "task_completed" && e.Parsed["task_id"] == second
	}, 10*time.Second)
	require.NoError(t, err)

	// The filtered client saw nothing of the second task; the connect
	// snapshot passes the filter regardless.
	for _, e := range filtered.Events() {
		if e.Type == "stats_snapshot" || e.Type == "queue_depth_update" {
			continue
		}
		assert.NotEqual(t, second, e.Parsed["task_id"], "event leaked past task filter: %s", e.Type)
	}
}

func TestMonitorStream_StatsOnlyClient(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ws, err := WSConnect(ctx, app.WSURL+"?stats_only=true")
	require.NoError(t, err)
	defer ws.Close()

	taskID := app.CreateTask(t, map[string]any{"title": "Noisy task"})
	app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)

	// Enqueue publishes a depth update, which reaches the stats client.
	_, err = ws.WaitForEventType("queue_depth_update", 10*time.Second)
	require.NoError(t, err)

	for _, e := range ws.Events() {
		assert.True(t, e.Type == "stats_snapshot" || e.Type == "queue_depth_update",
			"non-stats event on stats_only stream: %s", e.Type)
	}
}

func TestMonitorStream_TypeListFilter(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ws, err := WSConnect(ctx, app.WSURL+"?types=task_started,task_completed")
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.WaitForEventType("stats_snapshot", 5*time.Second)
	require.NoError(t, err)

	taskID := app.CreateTask(t, map[string]any{"title": "Typed stream"})
	app.WaitForTaskStatus(t, taskID, "completed", 20*time.Second)

	_, err = ws.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "task_completed" && e.Parsed["task_id"] == taskID
	}, 10*time.Second)
	require.NoError(t, err)

	// phase_* and depth broadcasts never reach a type-listed client; only
	// the listed types plus the connect snapshot do.
	for _, e := range ws.Events() {
		if e.Type == "stats_snapshot" {
			continue
		}
		assert.Contains(t, []string{"task_started", "task_completed"}, e.Type)
	}
}
