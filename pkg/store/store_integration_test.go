package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/store"
	"github.com/nexus-research/nexus/test/util"
)

func createTask(t *testing.T, client *store.Client, id string) *models.ResearchTask {
	t.Helper()
	task, err := client.CreateOrUpdateTask(context.Background(), models.CreateTaskRequest{
		TaskID:      id,
		Title:       "AI in Healthcare",
		Description: "Impact of AI",
	})
	require.NoError(t, err)
	return task
}

func TestCreateOrUpdateTaskIdempotent(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()

	first := createTask(t, client, "T1")
	assert.Equal(t, models.TaskStatusCreated, first.Status)

	// Simulate at-least-once redelivery after the task advanced: the
	// upsert must not reset status.
	require.NoError(t, client.UpdateTaskStatus(ctx, "T1", models.TaskStatusPlanning))

	again, err := client.CreateOrUpdateTask(ctx, models.CreateTaskRequest{
		TaskID: "T1", Title: "AI in Healthcare", Description: "Impact of AI",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPlanning, again.Status)
}

func TestUpdateTaskStatusTerminalGuard(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	require.NoError(t, client.UpdateTaskStatus(ctx, "T1", models.TaskStatusCompleted))

	err := client.UpdateTaskStatus(ctx, "T1", models.TaskStatusPlanning)
	assert.ErrorIs(t, err, store.ErrAlreadyFinal)

	task, err := client.GetTask(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
}

func TestMarkTaskFailedRecordsCategory(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	require.NoError(t, client.MarkTaskFailed(ctx, "T1", "decomposition failed", "dead_letter"))

	task, err := client.GetTask(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, "decomposition failed", *task.Error)
	require.NotNil(t, task.ErrorCategory)
	assert.Equal(t, "dead_letter", *task.ErrorCategory)
	assert.Equal(t, "decomposition failed", task.Metadata["error"])
}

func TestGetTaskNotFound(t *testing.T) {
	client := util.SetupTestStore(t)
	_, err := client.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTaskTitleClippedOnWrite(t *testing.T) {
	client := util.SetupTestStore(t)
	task, err := client.CreateOrUpdateTask(context.Background(), models.CreateTaskRequest{
		TaskID: "T1",
		Title:  strings.Repeat("x", 300),
	})
	require.NoError(t, err)
	assert.Len(t, task.Title, 254)
}

func TestUpsertSourceDeduplicatesByURL(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()

	early := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	late := time.Now().UTC().Truncate(time.Millisecond)

	first, err := client.UpsertSource(ctx, &models.Source{
		URL:        "https://x.test/a",
		Title:      strings.Repeat("a", 300),
		Provider:   "duckduckgo",
		AccessedAt: early,
	})
	require.NoError(t, err)
	assert.Len(t, first.Title, 254)

	second, err := client.UpsertSource(ctx, &models.Source{
		URL:        "https://x.test/a",
		Title:      strings.Repeat("b", 100),
		Provider:   "brave",
		AccessedAt: late,
	})
	require.NoError(t, err)

	// One row; established title kept; accessed_at advanced to the later write.
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Title, 254)
	assert.True(t, second.AccessedAt.Equal(late) || second.AccessedAt.After(early))

	n, err := client.CountSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertSourceMergesMissingFields(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()

	_, err := client.UpsertSource(ctx, &models.Source{URL: "https://x.test/a"})
	require.NoError(t, err)

	text := "extracted body"
	merged, err := client.UpsertSource(ctx, &models.Source{
		URL:           "https://x.test/a",
		Title:         "Real Title",
		Provider:      "brave",
		ExtractedText: &text,
	})
	require.NoError(t, err)

	// The first write had no title/provider/text; the second fills them.
	assert.Equal(t, "Real Title", merged.Title)
	assert.Equal(t, "brave", merged.Provider)
	require.NotNil(t, merged.ExtractedText)
	assert.Equal(t, text, *merged.ExtractedText)
}

func TestOperationLifecycle(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	op, err := client.OpenOperation(ctx, "T1", models.StagePlanning)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusRunning, op.Status)

	done, err := client.HasCompletedOperation(ctx, "T1", models.StagePlanning)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, client.CloseOperation(ctx, op.ID, models.OperationStatusCompleted,
		map[string]int{"subtasks": 4}, ""))

	done, err = client.HasCompletedOperation(ctx, "T1", models.StagePlanning)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := client.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusCompleted, got.Status)
	assert.Equal(t, 4, got.Counts["subtasks"])
	assert.NotNil(t, got.EndedAt)
}

func TestCloseOperationRejectsFinalizedRow(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	op, err := client.OpenOperation(ctx, "T1", models.StageSearching)
	require.NoError(t, err)
	require.NoError(t, client.CloseOperation(ctx, op.ID, models.OperationStatusFailed, nil, "provider down"))

	err = client.CloseOperation(ctx, op.ID, models.OperationStatusCompleted, nil, "")
	assert.ErrorIs(t, err, store.ErrAlreadyFinal)
}

func TestIncrementRetryMarkerIdempotent(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	op, err := client.OpenOperation(ctx, "T1", models.StagePlanning)
	require.NoError(t, err)
	require.NoError(t, client.CloseOperation(ctx, op.ID, models.OperationStatusFailed, nil, "boom"))

	// Same retry event delivered twice: one increment.
	require.NoError(t, client.IncrementRetryMarker(ctx, op.ID, "evt-1"))
	require.NoError(t, client.IncrementRetryMarker(ctx, op.ID, "evt-1"))
	require.NoError(t, client.IncrementRetryMarker(ctx, op.ID, "evt-2"))

	got, err := client.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryMarker)
}

func TestEvidenceAppendAndCount(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	op, err := client.OpenOperation(ctx, "T1", models.StageSearching)
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := client.AppendEvidence(ctx, op.ID, models.EvidenceSearchResult,
			map[string]any{"rank": float64(i)}, "https://x.test/a", "duckduckgo", &now)
		require.NoError(t, err)
	}
	_, err = client.AppendEvidence(ctx, op.ID, models.EvidenceExtractedFact,
		map[string]any{"fact": "water is wet"}, "", "", nil)
	require.NoError(t, err)

	items, err := client.ListEvidence(ctx, op.ID)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	counts, err := client.CountEvidence(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["search_result"])
	assert.Equal(t, 1, counts["extracted_fact"])
}

func TestSubtaskTreeRoundTrip(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	root, err := client.UpsertSubtask(ctx, &models.Subtask{
		TaskID:      "T1",
		Description: "Impact of AI",
	})
	require.NoError(t, err)

	child, err := client.UpsertSubtask(ctx, &models.Subtask{
		TaskID:      "T1",
		ParentID:    &root.ID,
		Description: "AI in diagnostics",
		Position:    1,
	})
	require.NoError(t, err)

	root.ChildIDs = []string{child.ID}
	_, err = client.UpsertSubtask(ctx, root)
	require.NoError(t, err)

	nodes, err := client.ListSubtasks(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Nil(t, nodes[0].ParentID)
	assert.Equal(t, []string{child.ID}, nodes[0].ChildIDs)
	require.NotNil(t, nodes[1].ParentID)
	assert.Equal(t, root.ID, *nodes[1].ParentID)
}

func TestArtifactsRoundTrip(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	_, err := client.CreateArtifact(ctx, &models.Artifact{
		TaskID:    "T1",
		Title:     "AI in Healthcare",
		MediaKind: models.MediaMarkdown,
		FilePath:  "/data/ai-in-healthcare_20260826.md",
	})
	require.NoError(t, err)

	_, err = client.CreateArtifact(ctx, &models.Artifact{
		TaskID:    "T1",
		MediaKind: "spreadsheet",
	})
	assert.True(t, store.IsValidationError(err))

	items, err := client.ListArtifacts(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.MediaMarkdown, items[0].MediaKind)
}

func TestPurgeAllEmptiesEveryTable(t *testing.T) {
	client := util.SetupTestStore(t)
	ctx := context.Background()
	createTask(t, client, "T1")

	op, err := client.OpenOperation(ctx, "T1", models.StagePlanning)
	require.NoError(t, err)
	_, err = client.AppendEvidence(ctx, op.ID, models.EvidenceSearchResult, nil, "", "", nil)
	require.NoError(t, err)
	_, err = client.UpsertSource(ctx, &models.Source{URL: "https://x.test/a"})
	require.NoError(t, err)

	require.NoError(t, client.PurgeAll(ctx))

	_, err = client.GetTask(ctx, "T1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	n, err := client.CountSources(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHealthCheck(t *testing.T) {
	client := util.SetupTestStore(t)
	assert.True(t, client.HealthCheck(context.Background()))

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}
