package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/agent-console/backend/internal/correlate"
	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/runtime"
	"github.com/agent-console/backend/internal/tab"
)

// SessionStore is the saved-session storage collaborator.
type SessionStore interface {
	List(ctx context.Context) ([]model.SavedSession, error)
	Get(ctx context.Context, path string) (*model.SessionRecord, error)
	Save(ctx context.Context, rec *model.SessionRecord) error
	Delete(ctx context.Context, path string) error
}

// Dispatcher is the single entry point for inbound commands. It resolves the
// connection's bound tab and invokes the registry, the hub, the store, or
// the correlator. Malformed and unrecognized commands are dropped without
// effect; the connection stays open.
type Dispatcher struct {
	hub      *Hub
	registry *tab.Registry
	store    SessionStore
	broker   *correlate.Broker
}

// NewDispatcher wires the dispatcher to its collaborators. store and broker
// may be nil; the corresponding commands become no-ops.
func NewDispatcher(hub *Hub, registry *tab.Registry, store SessionStore, broker *correlate.Broker) *Dispatcher {
	return &Dispatcher{hub: hub, registry: registry, store: store, broker: broker}
}

// Connect reconciles a newly accepted connection: it is bound to the first
// tab in registry order and immediately state-synced.
func (d *Dispatcher) Connect(c *Client) {
	d.hub.Register(c)
	h, ok := d.registry.First()
	if !ok {
		return
	}
	d.hub.Bind(c, h.ID())
	sendSync(c, h)
}

// Disconnect removes a connection's binding. Called once on disconnect.
func (d *Dispatcher) Disconnect(c *Client) {
	d.hub.Unregister(c)
}

// Dispatch handles one inbound command from a connection.
func (d *Dispatcher) Dispatch(c *Client, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}

	switch cmd.Type {
	case CmdPrompt:
		d.handlePrompt(c, &cmd)
	case CmdAbort:
		if h := d.resolveTab(c); h != nil {
			h.Runtime().Abort()
		}
	case CmdNewSession:
		d.handleNewSession(c, cmd.Name)
	case CmdSwitchSession:
		d.handleSwitch(c, cmd.TabID)
	case CmdCloseTab:
		d.handleClose(c, cmd.TabID)
	case CmdListSessions:
		d.sendSessionsList(c)
	case CmdOpenSession:
		d.handleOpenSession(c, cmd.SessionPath)
	case CmdDeleteSession:
		d.handleDeleteSession(c, cmd.SessionPath)
	case CmdUIResponse:
		d.handleUIResponse(&cmd, raw)
	case CmdPing:
		d.sendMessage(c, Pong{Type: MsgPong})
	}
}

// resolveTab returns the tab a connection's command targets: its binding if
// that tab still exists, else the first tab in registry order.
func (d *Dispatcher) resolveTab(c *Client) *tab.Handle {
	if id, ok := d.hub.Binding(c); ok {
		if h, ok := d.registry.Get(id); ok {
			return h
		}
	}
	h, ok := d.registry.First()
	if !ok {
		return nil
	}
	d.hub.Bind(c, h.ID())
	return h
}

func (d *Dispatcher) handlePrompt(c *Client, cmd *Command) {
	if cmd.Message == "" {
		return
	}
	h := d.resolveTab(c)
	if h == nil {
		return
	}
	behavior := cmd.Behavior
	if behavior == "" {
		behavior = runtime.SubmitInterrupt
	}
	// Submit starts the response asynchronously; progress is observed only
	// through the event stream.
	if err := h.Runtime().Submit(context.Background(), cmd.Message, behavior); err != nil {
		log.Printf("tab %s: submit prompt: %v", h.ID(), err)
	}
}

func (d *Dispatcher) handleNewSession(c *Client, nameHint string) {
	h, err := d.registry.Create(nameHint, nil)
	if err != nil {
		log.Printf("create tab: %v", err)
		d.sendMessage(c, ErrorMessage{Type: MsgError, Error: "failed to create session"})
		return
	}
	d.hub.Bind(c, h.ID())
	d.broadcastTabs()
	sendSync(c, h)
}

func (d *Dispatcher) handleSwitch(c *Client, tabID string) {
	h, ok := d.registry.Get(tabID)
	if !ok {
		return
	}
	d.hub.Bind(c, h.ID())
	sendSync(c, h)
}

// handleClose closes a tab, rebinds every viewer that was watching it to
// the computed replacement, and state-syncs each of them individually.
func (d *Dispatcher) handleClose(c *Client, tabID string) {
	if tabID == "" {
		if bound, ok := d.hub.Binding(c); ok {
			tabID = bound
		}
	}
	h, ok := d.registry.Get(tabID)
	if !ok {
		return
	}

	// Snapshot before the runtime is disposed; persist only once the close
	// actually happened.
	snapshot := d.buildSnapshot(h)

	replacement, err := d.registry.Close(tabID)
	if err != nil {
		// Last-tab protection or a stale identifier; registry unchanged.
		if !errors.Is(err, model.ErrLastTab) && !errors.Is(err, model.ErrTabNotFound) {
			log.Printf("close tab %s: %v", tabID, err)
		}
		return
	}

	d.saveSnapshot(snapshot)
	d.broadcastTabs()

	rep, ok := d.registry.Get(replacement)
	if !ok {
		return
	}
	for _, viewer := range d.hub.BoundTo(tabID) {
		d.hub.Bind(viewer, rep.ID())
		sendSync(viewer, rep)
	}
}

func (d *Dispatcher) handleOpenSession(c *Client, path string) {
	if d.store == nil || path == "" {
		return
	}
	rec, err := d.store.Get(context.Background(), path)
	if err != nil {
		log.Printf("open session %s: %v", path, err)
		d.sendMessage(c, ErrorMessage{Type: MsgError, Error: "failed to open session"})
		return
	}
	h, err := d.registry.Create("", &runtime.Resume{
		SessionID: rec.ID,
		Path:      rec.Path,
		Name:      rec.Name,
		Messages:  rec.Messages,
	})
	if err != nil {
		log.Printf("open session %s: %v", path, err)
		d.sendMessage(c, ErrorMessage{Type: MsgError, Error: "failed to open session"})
		return
	}
	d.hub.Bind(c, h.ID())
	d.broadcastTabs()
	sendSync(c, h)
}

// handleDeleteSession deletes a saved session. A session that is currently
// open has its tab closed first; when that close is refused (sole remaining
// tab) the delete is skipped so the store never drops a live session.
func (d *Dispatcher) handleDeleteSession(c *Client, path string) {
	if d.store == nil || path == "" {
		return
	}
	ctx := context.Background()

	rec, err := d.store.Get(ctx, path)
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			log.Printf("delete session %s: %v", path, err)
		}
		return
	}
	if h, open := d.registry.FindBySessionID(rec.ID); open {
		d.handleClose(c, h.ID())
		if _, stillOpen := d.registry.Get(h.ID()); stillOpen {
			return
		}
	}
	if err := d.store.Delete(ctx, path); err != nil {
		log.Printf("delete session %s: %v", path, err)
		return
	}
	d.sendSessionsList(c)
}

func (d *Dispatcher) handleUIResponse(cmd *Command, raw []byte) {
	if d.broker == nil || cmd.ID == "" {
		return
	}
	outcome := cmd.Outcome
	if outcome == nil {
		outcome = raw
	}
	// Unmatched identifiers are silently dropped.
	d.broker.Resolve(cmd.ID, outcome)
}

// sendSessionsList unicasts the saved sessions available to open, excluding
// sessions whose identifier matches a currently open tab.
func (d *Dispatcher) sendSessionsList(c *Client) {
	if d.store == nil {
		return
	}
	sessions, err := d.store.List(context.Background())
	if err != nil {
		log.Printf("list saved sessions: %v", err)
		d.sendMessage(c, ErrorMessage{Type: MsgError, Error: "failed to list sessions"})
		return
	}
	open := d.registry.OpenSessionIDs()
	available := make([]model.SavedSession, 0, len(sessions))
	for _, s := range sessions {
		if !open[s.ID] {
			available = append(available, s)
		}
	}
	d.sendMessage(c, SessionsList{Type: MsgSessionsList, Sessions: available})
}

// buildSnapshot captures a closing tab's conversation so it can be reopened
// later. Empty conversations are not worth keeping. A tab resumed from
// storage saves back to the record it came from.
func (d *Dispatcher) buildSnapshot(h *tab.Handle) *model.SessionRecord {
	if d.store == nil {
		return nil
	}
	rt := h.Runtime()
	msgs := rt.Messages()
	if len(msgs) == 0 {
		return nil
	}
	path := h.SavedPath()
	if path == "" {
		path = rt.SessionID() + ".session.json"
	}
	now := time.Now().UTC()
	return &model.SessionRecord{
		SavedSession: model.SavedSession{
			ID:           rt.SessionID(),
			Path:         path,
			Name:         h.Name(),
			Created:      now,
			Modified:     now,
			MessageCount: len(msgs),
			FirstMessage: firstUserText(msgs),
		},
		Messages: msgs,
	}
}

func (d *Dispatcher) saveSnapshot(rec *model.SessionRecord) {
	if rec == nil {
		return
	}
	if err := d.store.Save(context.Background(), rec); err != nil {
		log.Printf("save session %s: %v", rec.Path, err)
	}
}

func (d *Dispatcher) broadcastTabs() {
	if err := d.hub.BroadcastAllMessage(TabsUpdate{Type: MsgTabsUpdate, Tabs: d.registry.List()}); err != nil {
		log.Printf("broadcast tab list: %v", err)
	}
}

func (d *Dispatcher) sendMessage(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal %T: %v", v, err)
		return
	}
	c.Send(data)
}

// firstUserText returns a short preview of the first user prompt.
func firstUserText(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		for _, seg := range m.Content {
			if seg.Type == model.SegmentText && seg.Text != "" {
				text := strings.TrimSpace(seg.Text)
				if len(text) > 120 {
					text = text[:120]
				}
				return text
			}
		}
	}
	return ""
}
