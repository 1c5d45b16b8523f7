package bus

import "sync"

// waiter is one pending correlated wait. The dispatcher resolves it by
// sending the first matching envelope on done; the buffer of one means
// resolution never blocks the topic loop even if the waiter has already
// timed out and left.
type waiter struct {
	conversationID string
	inReplyTo      string
	done           chan *Envelope
}

// matches reports whether the envelope resolves this waiter.
func (w *waiter) matches(e *Envelope) bool {
	return e.ConversationID == w.conversationID && e.ReplyTo == w.inReplyTo
}

// pendingSet is the registry of correlated waits for one topic, keyed by
// conversation id. One waiter per conversation at a time: each pipeline
// stage issues a single request and waits for its reply.
type pendingSet struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

func newPendingSet() *pendingSet {
	return &pendingSet{waiters: make(map[string]*waiter)}
}

// add registers a waiter under its conversation id.
func (p *pendingSet) add(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters[w.conversationID] = w
}

// remove drops a waiter if it is still registered.
func (p *pendingSet) remove(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiters[w.conversationID] == w {
		delete(p.waiters, w.conversationID)
	}
}

// resolve routes an envelope to its waiter, if any. The waiter is removed
// on resolution so late duplicates fall through to ordinary subscribers.
func (p *pendingSet) resolve(e *Envelope) {
	if e.ConversationID == "" {
		return
	}
	p.mu.Lock()
	w, ok := p.waiters[e.ConversationID]
	if ok && w.matches(e) {
		delete(p.waiters, e.ConversationID)
	} else {
		w = nil
	}
	p.mu.Unlock()

	if w != nil {
		w.done <- e
	}
}

// failAll drains every waiter on disconnect. Closed channels signal the
// cancellation to waiters still blocked.
func (p *pendingSet) failAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, w := range p.waiters {
		close(w.done)
		delete(p.waiters, id)
	}
}
