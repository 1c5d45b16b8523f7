package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/config"
)

// subscribeTimeout bounds how long a dynamic Redis SUBSCRIBE may block when
// the first client for a project channel connects. Without it, a stalled
// pub/sub connection would block that client's accept path indefinitely.
const subscribeTimeout = 10 * time.Second

// ConnectionManager tracks WebSocket clients and fans received events out
// to them. Each process has one ConnectionManager instance.
//
// A connection consumes exactly one pub/sub channel, chosen from its
// filter: stats-only clients take the stats channel, project-filtered
// clients take their project channel, everyone else takes the global
// channel. The filter is then applied per event before sending, so a
// client never sees an event twice even though the publisher fans out
// to overlapping channels.
type ConnectionManager struct {
	cfg *config.MonitoringConfig

	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Channel membership: channel → set of connection_ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	// Listener for dynamic SUBSCRIBE/UNSUBSCRIBE of project channels
	// (set after construction — the listener needs the manager too).
	listener   *Listener
	listenerMu sync.RWMutex

	writeTimeout time.Duration
	pingInterval time.Duration
}

// Connection is a single WebSocket client with its declared filter.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	Filter Filter

	// channel is the single pub/sub channel this connection consumes.
	channel string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a ConnectionManager.
func NewConnectionManager(cfg *config.MonitoringConfig, writeTimeout, pingInterval time.Duration) *ConnectionManager {
	return &ConnectionManager{
		cfg:          cfg,
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// SetListener wires the Listener for dynamic project-channel subscriptions.
// Called once during startup after both components are constructed.
func (m *ConnectionManager) SetListener(l *Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleConnection manages the lifecycle of one WebSocket client. Called by
// the HTTP handler after upgrade; blocks until the connection closes. The
// snapshot, when non-nil, is delivered first so the client can render
// current queue depths and worker counts before live events arrive.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, filter Filter, snapshot *Event) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:      uuid.New().String(),
		Conn:    conn,
		Filter:  filter,
		channel: m.channelFor(filter),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := m.register(c); err != nil {
		slog.Error("Rejecting WebSocket client, channel subscribe failed",
			"connection_id", c.ID, "channel", c.channel, "error", err)
		cancel()
		_ = conn.Close(websocket.StatusInternalError, "channel subscribe failed")
		return
	}
	defer m.unregister(c)

	if snapshot != nil {
		m.sendEvent(c, snapshot)
	}

	// Keep-alives run beside the read loop; a failed ping drops the client.
	go m.pingLoop(c)

	// Read loop. Clients send nothing meaningful, but reading is required
	// to service control frames and to observe the close.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// channelFor picks the one channel a filter consumes.
func (m *ConnectionManager) channelFor(f Filter) string {
	switch {
	case f.StatsOnly:
		return m.cfg.StatsChannel
	case f.ProjectID != "":
		return ProjectChannel(m.cfg.ProjectChannelPrefix, f.ProjectID)
	default:
		return m.cfg.GlobalChannel
	}
}

// Broadcast delivers an event received on a channel to every matching
// connection subscribed to it. Clients whose send fails are dropped.
func (m *ConnectionManager) Broadcast(channel string, evt *Event, raw []byte) {
	m.channelMu.RLock()
	ids := make([]string, 0, len(m.channels[channel]))
	for id := range m.channels[channel] {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()
	if len(ids) == 0 {
		return
	}

	// Snapshot connection pointers before sending so slow writes (up to
	// writeTimeout each) do not hold the lock against register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if !c.Filter.Matches(evt) {
			continue
		}
		if err := m.sendRaw(c, raw); err != nil {
			slog.Warn("Dropping WebSocket client after failed send",
				"connection_id", c.ID, "error", err)
			c.cancel()
		}
	}
}

// ActiveConnections returns the count of connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the member count for a channel.
// Unexported — used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

// register adds the connection to its channel, issuing a Redis SUBSCRIBE
// when it is the channel's first member. SUBSCRIBE runs synchronously so a
// registered connection is guaranteed live delivery from that point on.
func (m *ConnectionManager) register(c *Connection) error {
	m.channelMu.Lock()
	needsSubscribe := false
	if _, exists := m.channels[c.channel]; !exists {
		m.channels[c.channel] = make(map[string]bool)
		needsSubscribe = m.isDynamic(c.channel)
	}
	m.channels[c.channel][c.ID] = true
	m.channelMu.Unlock()

	if needsSubscribe {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			subCtx, subCancel := context.WithTimeout(context.Background(), subscribeTimeout)
			defer subCancel()
			if err := l.Subscribe(subCtx, c.channel); err != nil {
				m.channelMu.Lock()
				delete(m.channels[c.channel], c.ID)
				if len(m.channels[c.channel]) == 0 {
					delete(m.channels, c.channel)
				}
				m.channelMu.Unlock()
				return fmt.Errorf("subscribe to channel %s: %w", c.channel, err)
			}
		}
	}

	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	return nil
}

// unregister removes the connection, issuing UNSUBSCRIBE when it was the
// last member of a dynamically subscribed channel.
func (m *ConnectionManager) unregister(c *Connection) {
	m.channelMu.Lock()
	if members, exists := m.channels[c.channel]; exists {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(m.channels, c.channel)
			if m.isDynamic(c.channel) {
				// Re-check membership inside the goroutine so a rapid
				// disconnect/reconnect for the same project does not
				// drop the live subscription.
				m.listenerMu.RLock()
				l := m.listener
				m.listenerMu.RUnlock()
				if l != nil {
					channel := c.channel
					go func() {
						m.channelMu.RLock()
						_, resubscribed := m.channels[channel]
						m.channelMu.RUnlock()
						if resubscribed {
							return
						}
						if err := l.Unsubscribe(context.Background(), channel); err != nil {
							slog.Error("Failed to unsubscribe channel", "channel", channel, "error", err)
						}
					}()
				}
			}
		}
	}
	m.channelMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// isDynamic reports whether a channel needs an on-demand Redis
// subscription. The global and stats channels are subscribed for the
// lifetime of the listener.
func (m *ConnectionManager) isDynamic(channel string) bool {
	return channel != m.cfg.GlobalChannel && channel != m.cfg.StatsChannel
}

// pingLoop sends keep-alive pings until the connection context ends.
// A failed ping cancels the connection, which unblocks the read loop.
func (m *ConnectionManager) pingLoop(c *Connection) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
			err := c.Conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Warn("Dropping WebSocket client after failed ping",
					"connection_id", c.ID, "error", err)
				c.cancel()
				return
			}
		}
	}
}

// sendEvent marshals and sends one event to a single connection.
func (m *ConnectionManager) sendEvent(c *Connection, evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket event",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Dropping WebSocket client after failed send",
			"connection_id", c.ID, "error", err)
		c.cancel()
	}
}

// sendRaw writes raw bytes to a single connection under the write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
