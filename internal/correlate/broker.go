// Package correlate bridges synchronous-style questions from an agent
// runtime to asynchronous answers from whichever connected viewer replies
// first.
package correlate

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// request is the envelope broadcast to every connection when a runtime asks
// a question. Requests carry no tab affinity: any viewer may answer.
type request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RequestType is the wire type tag of outgoing correlated requests.
const RequestType = "extension_ui_request"

// Broker owns the set of pending correlated requests. Each request resolves
// exactly once: to the first matching reply, to the default outcome on
// timeout, or to the default outcome on cancellation.
type Broker struct {
	timeout   time.Duration
	broadcast func([]byte)

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
}

// New creates a Broker. timeout bounds how long Ask waits for a reply; zero
// means wait until cancellation.
func New(timeout time.Duration) *Broker {
	return &Broker{
		timeout: timeout,
		pending: make(map[string]chan json.RawMessage),
	}
}

// SetBroadcast installs the all-connections send used to publish requests.
// Must be called before the first Ask.
func (b *Broker) SetBroadcast(fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = fn
}

// Ask publishes a question to every connection and blocks until it resolves.
// A context already cancelled at call time resolves immediately to def with
// no broadcast.
func (b *Broker) Ask(ctx context.Context, method string, params json.RawMessage, def json.RawMessage) json.RawMessage {
	if ctx.Err() != nil {
		return def
	}

	id := uuid.New().String()
	ch := make(chan json.RawMessage, 1)

	b.mu.Lock()
	b.pending[id] = ch
	broadcast := b.broadcast
	b.mu.Unlock()

	data, err := json.Marshal(request{Type: RequestType, ID: id, Method: method, Params: params})
	if err != nil {
		b.take(id)
		return def
	}
	if broadcast != nil {
		broadcast(data)
	}

	var timeout <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case outcome := <-ch:
		return outcome
	case <-timeout:
		return b.settle(id, ch, def)
	case <-ctx.Done():
		return b.settle(id, ch, def)
	}
}

// settle claims the pending entry for the timeout or cancellation path. If a
// reply won the race first, the reply's outcome stands.
func (b *Broker) settle(id string, ch chan json.RawMessage, def json.RawMessage) json.RawMessage {
	if b.take(id) != nil {
		return def
	}
	return <-ch
}

// Resolve delivers a viewer's reply. Returns false when the identifier does
// not match a pending request (already resolved, or never existed); such
// replies are dropped.
func (b *Broker) Resolve(id string, outcome json.RawMessage) bool {
	ch := b.take(id)
	if ch == nil {
		return false
	}
	ch <- outcome
	return true
}

// take removes and returns the pending channel for id. The caller that gets
// a non-nil channel owns resolution; everyone else lost the race.
func (b *Broker) take(id string) chan json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := b.pending[id]
	delete(b.pending, id)
	return ch
}

// PendingCount reports outstanding requests. Used by operators and tests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Asker adapts the Broker to the runtime-facing Ask shape with logging on
// defaulted outcomes.
type Asker struct {
	Broker *Broker
}

// Ask implements the runtime's extension-facing surface. It always returns
// an outcome; the default when no viewer answered in time.
func (a Asker) Ask(ctx context.Context, method string, params json.RawMessage, def json.RawMessage) json.RawMessage {
	outcome := a.Broker.Ask(ctx, method, params, def)
	if ctx.Err() != nil {
		log.Printf("correlated request %q cancelled, using default outcome", method)
	}
	return outcome
}
