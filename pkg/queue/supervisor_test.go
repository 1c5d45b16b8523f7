package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/models"
)

type failureRecorder struct {
	mu       sync.Mutex
	failures map[string]string // task id -> category
}

func newFailureRecorder() *failureRecorder {
	return &failureRecorder{failures: make(map[string]string)}
}

func (r *failureRecorder) MarkTaskFailed(_ context.Context, taskID, _, category string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[taskID] = category
	return nil
}

func (r *failureRecorder) category(taskID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[taskID]
}

func TestSweep_RequeuesAbandonedJob(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("task-1", models.PriorityHigh)))
	require.NoError(t, q.RefreshHeartbeat(ctx, "worker-a"))
	_, err := q.BlockingPop(ctx, "worker-a", 500*time.Millisecond)
	require.NoError(t, err)

	// Heartbeat lapses, job stays in flight.
	mr.FastForward(q.cfg.HeartbeatTTL + time.Second)

	sup := NewSupervisor(q, nil, nil, slog.Default())
	require.NoError(t, sup.Sweep(ctx))

	assert.Equal(t, int64(0), mustLLen(t, q, ctx, ProcessingKey("worker-a")))
	job, err := q.BlockingPop(ctx, "worker-b", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "task-1", job.TaskID)
	assert.Equal(t, 1, job.RetryCount)
}

func TestSweep_LeavesLiveWorkerAlone(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("task-1", models.PriorityNormal)))
	require.NoError(t, q.RefreshHeartbeat(ctx, "worker-a"))
	_, err := q.BlockingPop(ctx, "worker-a", 500*time.Millisecond)
	require.NoError(t, err)

	sup := NewSupervisor(q, nil, nil, slog.Default())
	require.NoError(t, sup.Sweep(ctx))

	assert.Equal(t, int64(1), mustLLen(t, q, ctx, ProcessingKey("worker-a")))
	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depths["normal"])
}

func TestSweep_DeadLettersAtRetryCeiling(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	job := testJob("task-1", models.PriorityNormal)
	job.RetryCount = q.cfg.MaxRetries - 1
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.RefreshHeartbeat(ctx, "worker-a"))
	_, err := q.BlockingPop(ctx, "worker-a", 500*time.Millisecond)
	require.NoError(t, err)
	mr.FastForward(q.cfg.HeartbeatTTL + time.Second)

	recorder := newFailureRecorder()
	sup := NewSupervisor(q, recorder, nil, slog.Default())
	require.NoError(t, sup.Sweep(ctx))

	// Not requeued on any tier.
	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	for tier, n := range depths {
		assert.Equal(t, int64(0), n, "tier %s", tier)
	}

	n, err := q.DeadLetterDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := q.client.LRange(ctx, KeyDeadLetter, 0, -1).Result()
	require.NoError(t, err)
	dead := &models.JobEnvelope{}
	require.NoError(t, json.Unmarshal([]byte(raw[0]), dead))
	assert.Equal(t, "task-1", dead.TaskID)
	assert.Equal(t, q.cfg.MaxRetries, dead.RetryCount)

	assert.Equal(t, DeadLetterCategory, recorder.category("task-1"))
}

func TestSweep_DeadLettersUnparseableEnvelope(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	q.client.RPush(ctx, ProcessingKey("worker-a"), "not json")
	mr.FastForward(q.cfg.HeartbeatTTL + time.Second)

	sup := NewSupervisor(q, nil, nil, slog.Default())
	require.NoError(t, sup.Sweep(ctx))

	n, err := q.DeadLetterDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSupervisor_StartStop(t *testing.T) {
	q, _ := setupQueue(t)
	q.cfg.SupervisorInterval = 10 * time.Millisecond

	sup := NewSupervisor(q, nil, nil, slog.Default())
	sup.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sup.Stop()
	// Stop is idempotent.
	sup.Stop()
}
