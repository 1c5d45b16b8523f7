package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Listener consumes the monitoring pub/sub channels and dispatches received
// events to the local ConnectionManager. One Listener runs per process,
// holding a single Redis subscription that covers the global and stats
// channels for its whole lifetime plus project channels on demand.
//
// Reconnection and re-subscription after a dropped connection are handled
// by the go-redis PubSub internally, so a transient Redis outage costs
// clients the gap in events (they are ephemeral anyway) but not their
// subscriptions.
type Listener struct {
	client  redis.UniversalClient
	manager *ConnectionManager
	base    []string

	pubsub  *redis.PubSub
	running atomic.Bool
	done    chan struct{}
}

// NewListener creates a Listener for the given base channels. The global
// and stats channels belong here; project channels are added dynamically
// via Subscribe as filtered clients arrive.
func NewListener(client redis.UniversalClient, manager *ConnectionManager, baseChannels ...string) *Listener {
	return &Listener{
		client:  client,
		manager: manager,
		base:    baseChannels,
		done:    make(chan struct{}),
	}
}

// Start opens the subscription and begins dispatching. The initial
// SUBSCRIBE is confirmed synchronously so startup fails fast when Redis
// is unreachable.
func (l *Listener) Start(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.base...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to event channels: %w", err)
	}
	l.pubsub = pubsub
	l.running.Store(true)

	go l.receiveLoop()

	slog.Info("Event listener started", "channels", l.base)
	return nil
}

// Subscribe adds a channel to the live subscription.
func (l *Listener) Subscribe(ctx context.Context, channel string) error {
	if !l.running.Load() {
		return fmt.Errorf("event listener not started")
	}
	if err := l.pubsub.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	slog.Debug("Subscribed to event channel", "channel", channel)
	return nil
}

// Unsubscribe removes a channel from the live subscription.
func (l *Listener) Unsubscribe(ctx context.Context, channel string) error {
	if !l.running.Load() {
		return nil
	}
	if err := l.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", channel, err)
	}
	return nil
}

// receiveLoop dispatches messages until the subscription closes. Payloads
// that do not parse as events are dropped: the filter model needs the
// parsed form, and every producer in this system publishes valid events.
func (l *Listener) receiveLoop() {
	defer close(l.done)
	for msg := range l.pubsub.Channel() {
		evt := &Event{}
		if err := json.Unmarshal([]byte(msg.Payload), evt); err != nil {
			slog.Warn("Discarding malformed event payload",
				"channel", msg.Channel, "error", err)
			continue
		}
		l.manager.Broadcast(msg.Channel, evt, []byte(msg.Payload))
	}
}

// Stop closes the subscription and waits for the dispatch loop to drain,
// bounded by the context.
func (l *Listener) Stop(ctx context.Context) {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	if err := l.pubsub.Close(); err != nil {
		slog.Warn("Error closing event subscription", "error", err)
	}
	select {
	case <-l.done:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for event listener to stop")
	}
}
