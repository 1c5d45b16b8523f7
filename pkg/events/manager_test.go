package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/config"
)

func newTestManager() (*ConnectionManager, *config.MonitoringConfig) {
	cfg := config.DefaultMonitoringConfig()
	// Long ping interval so keep-alives never interleave with assertions.
	return NewConnectionManager(cfg, 5*time.Second, time.Minute), cfg
}

// serveFilter starts a test server whose connections all carry the given
// filter and optional snapshot.
func serveFilter(t *testing.T, m *ConnectionManager, filter Filter, snapshot *Event) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		m.HandleConnection(r.Context(), conn, filter, snapshot)
	}))
	t.Cleanup(func() { server.Close() })
	return server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	evt := &Event{}
	require.NoError(t, json.Unmarshal(data, evt))
	return evt
}

func assertNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "expected no further events")
}

// waitForSubscribers polls until the channel reaches the wanted member
// count so tests do not sleep for fixed durations.
func waitForSubscribers(t *testing.T, m *ConnectionManager, channel string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.subscriberCount(channel) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel %s never reached %d subscribers", channel, want)
}

// broadcastAsPublished replays the publisher's channel fan-out locally:
// every event on the global channel, stats events also on the stats
// channel, project events also on their project channel.
func broadcastAsPublished(m *ConnectionManager, cfg *config.MonitoringConfig, evt *Event) {
	raw, _ := json.Marshal(evt)
	m.Broadcast(cfg.GlobalChannel, evt, raw)
	if evt.ProjectID != "" {
		m.Broadcast(ProjectChannel(cfg.ProjectChannelPrefix, evt.ProjectID), evt, raw)
	}
	if IsStatsType(evt.EventType) {
		m.Broadcast(cfg.StatsChannel, evt, raw)
	}
}

func TestHandleConnectionSendsSnapshotFirst(t *testing.T) {
	m, cfg := newTestManager()

	snapshot := New(TypeStatsSnapshot)
	snapshot.Queue = map[string]int64{"high": 0, "normal": 2, "low": 0}
	snapshot.Counts = map[string]int{"online_workers": 1}

	server := serveFilter(t, m, Filter{}, snapshot)
	conn := dialWS(t, server)

	got := readEvent(t, conn)
	assert.Equal(t, TypeStatsSnapshot, got.EventType)
	assert.Equal(t, int64(2), got.Queue["normal"])
	assert.Equal(t, 1, got.Counts["online_workers"])

	waitForSubscribers(t, m, cfg.GlobalChannel, 1)

	live := New(TypeTaskStarted)
	live.TaskID = "t1"
	broadcastAsPublished(m, cfg, live)
	assert.Equal(t, "t1", readEvent(t, conn).TaskID)
}

func TestStatsOnlyClientSeesOnlyStatsEvents(t *testing.T) {
	m, cfg := newTestManager()

	statsServer := serveFilter(t, m, Filter{StatsOnly: true}, nil)
	typesServer := serveFilter(t, m, Filter{Types: []string{TypeTaskStarted, TypeTaskCompleted}}, nil)

	statsConn := dialWS(t, statsServer)
	typesConn := dialWS(t, typesServer)

	waitForSubscribers(t, m, cfg.StatsChannel, 1)
	waitForSubscribers(t, m, cfg.GlobalChannel, 1)

	// Replay a condensed happy path through the fan-out.
	sequence := []*Event{
		New(TypeTaskEnqueued),
		New(TypeTaskStarted),
		New(TypePhaseStarted),
		New(TypeQueueDepthUpdate),
		New(TypePhaseCompleted),
		New(TypeStatsSnapshot),
		New(TypeTaskCompleted),
	}
	for _, evt := range sequence {
		evt.TaskID = "t-filter"
		broadcastAsPublished(m, cfg, evt)
	}

	// The stats-only client receives exactly the two stats events.
	assert.Equal(t, TypeQueueDepthUpdate, readEvent(t, statsConn).EventType)
	assert.Equal(t, TypeStatsSnapshot, readEvent(t, statsConn).EventType)
	assertNoEvent(t, statsConn)

	// The type-filtered client receives exactly task_started and task_completed.
	assert.Equal(t, TypeTaskStarted, readEvent(t, typesConn).EventType)
	assert.Equal(t, TypeTaskCompleted, readEvent(t, typesConn).EventType)
	assertNoEvent(t, typesConn)
}

func TestProjectFilteredClientConsumesProjectChannel(t *testing.T) {
	m, cfg := newTestManager()
	projectChannel := ProjectChannel(cfg.ProjectChannelPrefix, "proj-1")

	server := serveFilter(t, m, Filter{ProjectID: "proj-1"}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, m, projectChannel, 1)
	assert.Equal(t, 0, m.subscriberCount(cfg.GlobalChannel))

	scoped := New(TypePhaseStarted)
	scoped.ProjectID = "proj-1"
	scoped.Phase = "planning"
	broadcastAsPublished(m, cfg, scoped)

	other := New(TypePhaseStarted)
	other.ProjectID = "proj-2"
	broadcastAsPublished(m, cfg, other)

	unscoped := New(TypeWorkerStarted)
	broadcastAsPublished(m, cfg, unscoped)

	got := readEvent(t, conn)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, "planning", got.Phase)
	assertNoEvent(t, conn)
}

func TestTaskFilterMatchesSubtaskEvents(t *testing.T) {
	m, cfg := newTestManager()

	server := serveFilter(t, m, Filter{TaskID: "root-1"}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, m, cfg.GlobalChannel, 1)

	direct := New(TypeTaskStarted)
	direct.TaskID = "root-1"
	broadcastAsPublished(m, cfg, direct)

	child := New(TypePhaseCompleted)
	child.TaskID = "root-1-sub-3"
	child.ParentTaskID = "root-1"
	broadcastAsPublished(m, cfg, child)

	unrelated := New(TypeTaskStarted)
	unrelated.TaskID = "other"
	broadcastAsPublished(m, cfg, unrelated)

	assert.Equal(t, "root-1", readEvent(t, conn).TaskID)
	assert.Equal(t, "root-1-sub-3", readEvent(t, conn).TaskID)
	assertNoEvent(t, conn)
}

func TestDisconnectCleansUpSubscriptions(t *testing.T) {
	m, cfg := newTestManager()

	server := serveFilter(t, m, Filter{}, nil)
	conn := dialWS(t, server)
	waitForSubscribers(t, m, cfg.GlobalChannel, 1)
	assert.Equal(t, 1, m.ActiveConnections())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitForSubscribers(t, m, cfg.GlobalChannel, 0)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && m.ActiveConnections() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, m.ActiveConnections())

	// Broadcasting into the now-empty channel must not panic.
	evt := New(TypeTaskStarted)
	raw, _ := json.Marshal(evt)
	assert.NotPanics(t, func() { m.Broadcast(cfg.GlobalChannel, evt, raw) })
}

func TestBroadcastToUnknownChannelIsHarmless(t *testing.T) {
	m, _ := newTestManager()
	evt := New(TypeTaskStarted)
	raw, _ := json.Marshal(evt)
	assert.NotPanics(t, func() { m.Broadcast("nexus:events:project:ghost", evt, raw) })
}
