package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/queue"
)

// abandonJob plants an envelope in the in-flight list of a worker that has
// no heartbeat, as if its pod died mid-task.
func abandonJob(t *testing.T, app *TestApp, job *models.JobEnvelope) {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	_, err = app.Redis.Push(queue.ProcessingKey("ghost-worker"), string(raw))
	require.NoError(t, err)
}

func TestSupervisor_RecoversAbandonedJob(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()))

	task, err := app.Store.CreateOrUpdateTask(context.Background(), models.CreateTaskRequest{
		TaskID: "abandoned-1",
		Title:  "Orphan research",
	})
	require.NoError(t, err)

	abandonJob(t, app, &models.JobEnvelope{
		TaskID:     task.ID,
		Title:      task.Title,
		Priority:   models.PriorityNormal,
		EnqueuedAt: time.Now().UTC(),
	})

	// The supervisor requeues the envelope and a live worker finishes it.
	app.WaitForTaskStatus(t, task.ID, "completed", 20*time.Second)
}

func TestSupervisor_DeadLettersExhaustedJob(t *testing.T) {
	app := NewTestApp(t, WithLLMClient(happyPathLLM()), WithMaxRetries(3))

	task, err := app.Store.CreateOrUpdateTask(context.Background(), models.CreateTaskRequest{
		TaskID: "exhausted-1",
		Title:  "Repeatedly abandoned research",
	})
	require.NoError(t, err)

	abandonJob(t, app, &models.JobEnvelope{
		TaskID:     task.ID,
		Title:      task.Title,
		Priority:   models.PriorityNormal,
		RetryCount: 2, // the reclaim bump reaches MaxRetries
		EnqueuedAt: time.Now().UTC(),
	})

	body := app.WaitForTaskStatus(t, task.ID, "failed", 20*time.Second)
	assert.Equal(t, queue.DeadLetterCategory, body["error_category"])

	depth, err := app.Queue.DeadLetterDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}
