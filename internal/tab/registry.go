package tab

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/runtime"
)

// Entry is one row of a registry listing, in creation order.
type Entry struct {
	ID   string `json:"tabId"`
	Name string `json:"name"`
}

// Registry owns the ordered collection of open tabs. The order slice and the
// handle map always cover the same identifier set; all mutation funnels
// through the registry's methods under its mutex.
type Registry struct {
	factory runtime.Factory
	sink    EventSink
	asker   runtime.Asker
	log     EventLog

	mu      sync.Mutex
	order   []string
	tabs    map[string]*Handle
	counter int
}

// Option configures optional registry collaborators.
type Option func(*Registry)

// WithAsker wires the correlator into runtimes constructed by the registry.
func WithAsker(a runtime.Asker) Option {
	return func(r *Registry) { r.asker = a }
}

// WithEventLog mirrors every tab's event stream into an event log.
func WithEventLog(l EventLog) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry. factory constructs the runtime for
// each new tab; sink receives every tab's events scoped by identifier.
func NewRegistry(factory runtime.Factory, sink EventSink, opts ...Option) *Registry {
	r := &Registry{
		factory: factory,
		sink:    sink,
		tabs:    make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a new tab, fresh or resumed. The display name is the explicit
// hint, else the resumed session's stored name, else "Session N". When
// runtime construction fails nothing is registered.
func (r *Registry) Create(nameHint string, resume *runtime.Resume) (*Handle, error) {
	id := uuid.New().String()

	r.mu.Lock()
	r.counter++
	name := nameHint
	if name == "" && resume != nil {
		name = resume.Name
	}
	if name == "" {
		name = fmt.Sprintf("Session %d", r.counter)
	}
	order := r.counter
	r.mu.Unlock()

	h := newHandle(id, name, order)
	if resume != nil {
		h.savedPath = resume.Path
	}
	rt, err := r.factory(runtime.Options{
		Emit:   h.emit,
		Asker:  r.asker,
		Resume: resume,
	})
	if err != nil {
		return nil, fmt.Errorf("construct runtime: %w", err)
	}
	h.rt = rt

	r.mu.Lock()
	r.order = append(r.order, id)
	r.tabs[id] = h
	r.mu.Unlock()

	go h.pump(r.sink, r.log)
	return h, nil
}

// Close removes a tab and disposes its runtime. Closing the sole remaining
// tab is refused: the same identifier comes back with ErrLastTab and the
// registry is untouched. On success the returned identifier is the tab a
// viewer of the closed tab should be rebound to: the tab created immediately
// before the closed one, else the first remaining tab.
func (r *Registry) Close(id string) (string, error) {
	r.mu.Lock()
	h, ok := r.tabs[id]
	if !ok {
		r.mu.Unlock()
		return "", model.ErrTabNotFound
	}
	if len(r.order) == 1 {
		r.mu.Unlock()
		return id, model.ErrLastTab
	}

	idx := 0
	for i, tid := range r.order {
		if tid == id {
			idx = i
			break
		}
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.tabs, id)

	replacement := r.order[0]
	if idx > 0 {
		replacement = r.order[idx-1]
	}
	r.mu.Unlock()

	// Dispose outside the lock; runtime teardown may block on the process.
	h.close(r.log)
	return replacement, nil
}

// List returns a snapshot of open tabs in creation order.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Entry{ID: id, Name: r.tabs[id].name})
	}
	return out
}

// Get looks up an open tab by identifier.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.tabs[id]
	return h, ok
}

// First returns the first tab in creation order, for connections with no
// binding yet.
func (r *Registry) First() (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.tabs[r.order[0]], true
}

// Len reports the number of open tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// OpenSessionIDs returns the runtime session identifiers of all open tabs.
// Saved-session listings exclude these.
func (r *Registry) OpenSessionIDs() map[string]bool {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.order))
	for _, id := range r.order {
		handles = append(handles, r.tabs[id])
	}
	r.mu.Unlock()

	out := make(map[string]bool, len(handles))
	for _, h := range handles {
		out[h.rt.SessionID()] = true
	}
	return out
}

// FindBySessionID returns the open tab whose runtime session identifier
// matches, if any.
func (r *Registry) FindBySessionID(sessionID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		h := r.tabs[id]
		if h.rt.SessionID() == sessionID {
			return h, true
		}
	}
	return nil, false
}

// CloseAll disposes every tab. Used on shutdown only; the last-tab guard
// does not apply.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.order))
	for _, id := range r.order {
		handles = append(handles, r.tabs[id])
	}
	r.order = nil
	r.tabs = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.close(r.log)
	}
}
