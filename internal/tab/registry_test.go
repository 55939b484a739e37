package tab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/runtime"
)

// fakeRuntime records calls and lets tests drive the event stream by hand.
type fakeRuntime struct {
	mu        sync.Mutex
	emit      runtime.EmitFunc
	sessionID string
	msgs      []model.Message
	streaming bool
	disposed  bool
	submitted []string
	aborts    int
}

func (f *fakeRuntime) Submit(ctx context.Context, text string, behavior runtime.SubmitBehavior) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return model.ErrRuntimeDisposed
	}
	f.submitted = append(f.submitted, text)
	f.msgs = append(f.msgs, model.Message{
		Role:    model.RoleUser,
		Content: []model.Segment{{Type: model.SegmentText, Text: text}},
	})
	return nil
}

func (f *fakeRuntime) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.streaming = false
}

func (f *fakeRuntime) Streaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

func (f *fakeRuntime) Messages() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.CloneMessages(f.msgs)
}

func (f *fakeRuntime) ModelID() string   { return "fake-model" }
func (f *fakeRuntime) SessionID() string { return f.sessionID }

func (f *fakeRuntime) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
	return nil
}

func (f *fakeRuntime) isDisposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// fakeFactory hands out fakeRuntimes and remembers them by creation order.
type fakeFactory struct {
	mu       sync.Mutex
	runtimes []*fakeRuntime
	fail     error
}

func (ff *fakeFactory) new(opts runtime.Options) (runtime.Runtime, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fail != nil {
		return nil, ff.fail
	}
	f := &fakeRuntime{emit: opts.Emit, sessionID: uuid.New().String()}
	if opts.Resume != nil {
		f.sessionID = opts.Resume.SessionID
		f.msgs = model.CloneMessages(opts.Resume.Messages)
	}
	ff.runtimes = append(ff.runtimes, f)
	return f, nil
}

// recordingSink collects scoped broadcasts.
type recordingSink struct {
	mu     sync.Mutex
	events []scopedEvent
}

type scopedEvent struct {
	tabID string
	data  string
}

func (s *recordingSink) BroadcastScoped(tabID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, scopedEvent{tabID: tabID, data: string(data)})
}

func (s *recordingSink) snapshot() []scopedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scopedEvent(nil), s.events...)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeFactory, *recordingSink) {
	t.Helper()
	ff := &fakeFactory{}
	sink := &recordingSink{}
	return NewRegistry(ff.new, sink), ff, sink
}

func TestRegistry_CreateAssignsDefaultNames(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	first, err := r.Create("", nil)
	require.NoError(t, err)
	assert.Equal(t, "Session 1", first.Name())

	second, err := r.Create("", nil)
	require.NoError(t, err)
	assert.Equal(t, "Session 2", second.Name())

	named, err := r.Create("research", nil)
	require.NoError(t, err)
	assert.Equal(t, "research", named.Name())

	resumed, err := r.Create("", &runtime.Resume{SessionID: "saved", Name: "old chat"})
	require.NoError(t, err)
	assert.Equal(t, "old chat", resumed.Name())

	list := r.List()
	require.Len(t, list, 4)
	assert.Equal(t, first.ID(), list[0].ID)
	assert.Equal(t, resumed.ID(), list[3].ID)
}

func TestRegistry_CreateFailureRegistersNothing(t *testing.T) {
	r, ff, _ := newTestRegistry(t)
	ff.fail = assert.AnError

	_, err := r.Create("", nil)
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_LastTabCloseRefused(t *testing.T) {
	r, ff, _ := newTestRegistry(t)

	h, err := r.Create("", nil)
	require.NoError(t, err)

	replacement, err := r.Close(h.ID())
	assert.ErrorIs(t, err, model.ErrLastTab)
	assert.Equal(t, h.ID(), replacement)
	assert.Equal(t, 1, r.Len())
	assert.False(t, ff.runtimes[0].isDisposed())
}

func TestRegistry_CloseDisposesAndComputesReplacement(t *testing.T) {
	r, ff, _ := newTestRegistry(t)

	a, err := r.Create("", nil)
	require.NoError(t, err)
	b, err := r.Create("", nil)
	require.NoError(t, err)
	c, err := r.Create("", nil)
	require.NoError(t, err)

	// Closing the middle tab falls back to its predecessor.
	replacement, err := r.Close(b.ID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), replacement)
	assert.True(t, ff.runtimes[1].isDisposed())

	// Closing the first remaining tab falls back to the new first.
	replacement, err = r.Close(a.ID())
	require.NoError(t, err)
	assert.Equal(t, c.ID(), replacement)

	_, ok := r.Get(a.ID())
	assert.False(t, ok)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, c.ID(), list[0].ID)
}

func TestRegistry_CloseUnknownTab(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.Create("", nil)
	require.NoError(t, err)

	_, err = r.Close("no-such-tab")
	assert.ErrorIs(t, err, model.ErrTabNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_EventsReachSinkScopedToTab(t *testing.T) {
	r, ff, sink := newTestRegistry(t)

	a, err := r.Create("", nil)
	require.NoError(t, err)
	_, err = r.Create("", nil)
	require.NoError(t, err)

	ev := runtime.Event{Type: "text_delta", Raw: json.RawMessage(`{"type":"text_delta","text":"hi"}`)}
	ff.runtimes[0].emit(ev)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)

	got := sink.snapshot()[0]
	assert.Equal(t, a.ID(), got.tabID)
	assert.JSONEq(t, string(ev.Raw), got.data)
}

func TestRegistry_EventsAfterCloseAreDropped(t *testing.T) {
	r, ff, sink := newTestRegistry(t)

	a, err := r.Create("", nil)
	require.NoError(t, err)
	_, err = r.Create("", nil)
	require.NoError(t, err)

	_, err = r.Close(a.ID())
	require.NoError(t, err)

	ff.runtimes[0].emit(runtime.Event{Type: "text_delta", Raw: json.RawMessage(`{}`)})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestRegistry_OpenSessionIDs(t *testing.T) {
	r, ff, _ := newTestRegistry(t)

	_, err := r.Create("", nil)
	require.NoError(t, err)
	_, err = r.Create("", &runtime.Resume{SessionID: "resumed-session"})
	require.NoError(t, err)

	open := r.OpenSessionIDs()
	assert.Len(t, open, 2)
	assert.True(t, open["resumed-session"])

	h, ok := r.FindBySessionID("resumed-session")
	require.True(t, ok)
	assert.Equal(t, ff.runtimes[1].sessionID, h.Runtime().SessionID())
}
