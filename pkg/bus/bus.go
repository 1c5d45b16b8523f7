// Package bus provides the in-process messaging fabric carrying typed
// request/response envelopes between pipeline stages and agents.
//
// Delivery is topic-based fan-out: every current subscriber of a topic
// receives every envelope published to it, at least once within the
// process lifetime. A single dispatcher goroutine per topic preserves
// per-topic publish order; handlers run in their own goroutines so a slow
// handler never blocks delivery to others. Across topics there is no
// ordering guarantee — callers correlate with conversation ids.
//
// Request/response is built on top of the one-way fan-out as a registry of
// pending correlations: WaitForReply registers a waiter keyed by
// conversation id, and the topic dispatcher routes the first matching
// envelope to it before fanning out to ordinary subscribers.
package bus

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// publishBuffer is the per-topic channel depth. Publishers block only when
// a topic's dispatcher falls this far behind.
const publishBuffer = 256

// Handler consumes one envelope. Handlers run concurrently; panics are
// recovered and logged without affecting other subscribers.
type Handler func(ctx context.Context, env *Envelope)

// Subscription identifies one registered handler for removal.
type Subscription struct {
	topic string
	id    uint64
}

// Bus is the in-process messaging fabric. The zero value is not usable;
// call New, then Connect before publishing.
type Bus struct {
	defaultReplyTimeout time.Duration

	mu        sync.RWMutex
	topics    map[string]*topicState
	nextSubID uint64
	connected bool

	wg sync.WaitGroup
}

type topicState struct {
	ch      chan *Envelope
	done    chan struct{}
	pending *pendingSet

	mu       sync.RWMutex
	handlers map[uint64]Handler
}

// New creates a Bus. defaultReplyTimeout applies to WaitForReply calls
// with a negative timeout; zero or negative falls back to 60 seconds.
func New(defaultReplyTimeout time.Duration) *Bus {
	if defaultReplyTimeout <= 0 {
		defaultReplyTimeout = 60 * time.Second
	}
	return &Bus{
		defaultReplyTimeout: defaultReplyTimeout,
		topics:              make(map[string]*topicState),
	}
}

// Connect activates the fabric. Idempotent.
func (b *Bus) Connect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
}

// Disconnect stops every topic dispatcher, fails pending waits, and waits
// for in-flight dispatch to drain. Idempotent; Publish after Disconnect
// returns ErrClosed.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	topics := b.topics
	b.topics = make(map[string]*topicState)
	b.mu.Unlock()

	for _, t := range topics {
		close(t.done)
		t.pending.failAll()
	}
	b.wg.Wait()
}

// Publish sends an envelope to its topic. Blocks only when the topic
// dispatcher is saturated, in which case the context bounds the wait.
func (b *Bus) Publish(ctx context.Context, env *Envelope) error {
	t, err := b.topic(env.Topic)
	if err != nil {
		return err
	}
	select {
	case t.ch <- env:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for a topic and returns the subscription
// used to remove it.
func (b *Bus) Subscribe(topic string, h Handler) (*Subscription, error) {
	t, err := b.topic(topic)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.mu.Unlock()

	t.mu.Lock()
	t.handlers[id] = h
	t.mu.Unlock()

	return &Subscription{topic: topic, id: id}, nil
}

// Unsubscribe removes a previously registered handler. Unknown
// subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.RLock()
	t, ok := b.topics[sub.topic]
	b.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.handlers, sub.id)
	t.mu.Unlock()
}

// WaitForReply blocks until an envelope arrives on topic with a matching
// conversation id and reply_to, the timeout lapses, or the context ends.
// timeout semantics: zero returns ErrTimeout immediately; negative uses
// the bus default.
//
// The waiter must be registered before the request is published, or a fast
// responder could race the registration and the reply would be lost.
func (b *Bus) WaitForReply(ctx context.Context, topic, conversationID, inReplyTo string, timeout time.Duration) (*Envelope, error) {
	if timeout == 0 {
		return nil, ErrTimeout
	}
	if timeout < 0 {
		timeout = b.defaultReplyTimeout
	}

	t, err := b.topic(topic)
	if err != nil {
		return nil, err
	}

	w := &waiter{
		conversationID: conversationID,
		inReplyTo:      inReplyTo,
		done:           make(chan *Envelope, 1),
	}
	t.pending.add(w)
	defer t.pending.remove(w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env, ok := <-w.done:
		if !ok {
			return nil, ErrClosed
		}
		return env, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// topic returns the state for a topic, creating it (and its dispatcher)
// on first use.
func (b *Bus) topic(name string) (*topicState, error) {
	b.mu.RLock()
	t, ok := b.topics[name]
	connected := b.connected
	b.mu.RUnlock()
	if ok {
		return t, nil
	}
	if !connected {
		return nil, ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, ErrClosed
	}
	if t, ok = b.topics[name]; ok {
		return t, nil
	}
	t = &topicState{
		ch:       make(chan *Envelope, publishBuffer),
		done:     make(chan struct{}),
		pending:  newPendingSet(),
		handlers: make(map[uint64]Handler),
	}
	b.topics[name] = t
	b.wg.Add(1)
	go b.dispatch(name, t)
	return t, nil
}

// dispatch is the single receiver loop for one topic. It routes correlated
// replies to their waiters first, then fans out to subscribers.
func (b *Bus) dispatch(name string, t *topicState) {
	defer b.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case env := <-t.ch:
			t.pending.resolve(env)

			t.mu.RLock()
			handlers := make([]Handler, 0, len(t.handlers))
			for _, h := range t.handlers {
				handlers = append(handlers, h)
			}
			t.mu.RUnlock()

			for _, h := range handlers {
				go b.invoke(name, h, env)
			}
		}
	}
}

// invoke runs one handler with panic recovery.
func (b *Bus) invoke(topic string, h Handler, env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bus handler panicked",
				"topic", topic,
				"message_id", env.MessageID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	h(context.Background(), env)
}
