package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/config"
)

type fakePruner struct {
	calls   atomic.Int64
	deleted int64
	err     error
	days    atomic.Int64
}

func (f *fakePruner) DeleteOldTasks(_ context.Context, retentionDays int) (int64, error) {
	f.calls.Add(1)
	f.days.Store(int64(retentionDays))
	return f.deleted, f.err
}

type fakeTrimmer struct {
	calls   atomic.Int64
	trimmed int64
	err     error
	max     atomic.Int64
}

func (f *fakeTrimmer) TrimDeadLetter(_ context.Context, max int) (int64, error) {
	f.calls.Add(1)
	f.max.Store(int64(max))
	return f.trimmed, f.err
}

func testRetentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		Enabled:           true,
		TaskRetentionDays: 30,
		DeadLetterMax:     100,
		CleanupInterval:   time.Hour,
	}
}

func TestRunAll_AppliesBothPolicies(t *testing.T) {
	pruner := &fakePruner{deleted: 3}
	trimmer := &fakeTrimmer{trimmed: 2}
	svc := NewService(testRetentionConfig(), pruner, trimmer)

	svc.RunAll(context.Background())

	assert.Equal(t, int64(1), pruner.calls.Load())
	assert.Equal(t, int64(30), pruner.days.Load())
	assert.Equal(t, int64(1), trimmer.calls.Load())
	assert.Equal(t, int64(100), trimmer.max.Load())
}

func TestRunAll_PrunerFailureStillTrims(t *testing.T) {
	pruner := &fakePruner{err: errors.New("connection reset")}
	trimmer := &fakeTrimmer{}
	svc := NewService(testRetentionConfig(), pruner, trimmer)

	svc.RunAll(context.Background())

	assert.Equal(t, int64(1), trimmer.calls.Load())
}

func TestService_StartRunsImmediatelyAndTicks(t *testing.T) {
	pruner := &fakePruner{}
	trimmer := &fakeTrimmer{}
	cfg := testRetentionConfig()
	cfg.CleanupInterval = 20 * time.Millisecond
	svc := NewService(cfg, pruner, trimmer)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return pruner.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_StopWaitsForLoop(t *testing.T) {
	svc := NewService(testRetentionConfig(), &fakePruner{}, &fakeTrimmer{})

	svc.Start(context.Background())
	svc.Stop()

	// A second Stop is a no-op rather than a deadlock.
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestService_StartIsIdempotent(t *testing.T) {
	svc := NewService(testRetentionConfig(), &fakePruner{}, &fakeTrimmer{})

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
}
