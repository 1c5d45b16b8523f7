package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/config"
)

func setupLiveStream(t *testing.T) (*ConnectionManager, *Publisher, *redis.Client, *config.MonitoringConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testMonitoringConfig()
	manager := NewConnectionManager(cfg, 5*time.Second, time.Minute)
	listener := NewListener(client, manager, cfg.GlobalChannel, cfg.StatsChannel)
	manager.SetListener(listener)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		listener.Stop(stopCtx)
	})

	return manager, NewPublisher(client, cfg), client, cfg
}

// waitForRedisSubscription polls PUBSUB NUMSUB until the channel has a
// live subscriber. Dynamic SUBSCRIBE commands are written asynchronously,
// so a publish issued immediately after connect could otherwise race them.
func waitForRedisSubscription(t *testing.T, client *redis.Client, channel string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := client.PubSubNumSub(context.Background(), channel).Result()
		require.NoError(t, err)
		if counts[channel] > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel %s never gained a redis subscriber", channel)
}

func TestListenerDeliversPublishedEvents(t *testing.T) {
	manager, pub, _, cfg := setupLiveStream(t)

	server := serveFilter(t, manager, Filter{}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, manager, cfg.GlobalChannel, 1)

	evt := New(TypeTaskStarted)
	evt.TaskID = "t-live"
	evt.WorkerID = "w-0"
	pub.Publish(context.Background(), evt)

	got := readEvent(t, conn)
	assert.Equal(t, TypeTaskStarted, got.EventType)
	assert.Equal(t, "t-live", got.TaskID)
	assert.Equal(t, "w-0", got.WorkerID)
}

func TestListenerStatsChannelFeed(t *testing.T) {
	manager, pub, _, cfg := setupLiveStream(t)

	server := serveFilter(t, manager, Filter{StatsOnly: true}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, manager, cfg.StatsChannel, 1)

	// Task traffic on the global channel never reaches the stats client.
	task := New(TypeTaskStarted)
	task.TaskID = "t-noise"
	pub.Publish(context.Background(), task)

	depths := New(TypeQueueDepthUpdate)
	depths.Queue = map[string]int64{"high": 1}
	pub.Publish(context.Background(), depths)

	got := readEvent(t, conn)
	assert.Equal(t, TypeQueueDepthUpdate, got.EventType)
	assert.Equal(t, int64(1), got.Queue["high"])
	assertNoEvent(t, conn)
}

func TestListenerDynamicProjectSubscription(t *testing.T) {
	manager, pub, client, cfg := setupLiveStream(t)
	projectChannel := ProjectChannel(cfg.ProjectChannelPrefix, "proj-dyn")

	server := serveFilter(t, manager, Filter{ProjectID: "proj-dyn"}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, manager, projectChannel, 1)
	waitForRedisSubscription(t, client, projectChannel)

	evt := New(TypePhaseCompleted)
	evt.ProjectID = "proj-dyn"
	evt.Phase = "aggregating"
	pub.Publish(context.Background(), evt)

	got := readEvent(t, conn)
	assert.Equal(t, "proj-dyn", got.ProjectID)
	assert.Equal(t, "aggregating", got.Phase)
}

func TestListenerStartFailsFastWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	cfg := testMonitoringConfig()
	manager := NewConnectionManager(cfg, 5*time.Second, time.Minute)
	listener := NewListener(client, manager, cfg.GlobalChannel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := listener.Start(ctx)
	require.Error(t, err)

	// Subscribe before a successful Start must refuse cleanly.
	assert.Error(t, listener.Subscribe(ctx, "nexus:events:project:x"))
}
