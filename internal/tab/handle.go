// Package tab owns the set of active agent sessions and their lifecycle.
package tab

import (
	"log"

	"github.com/agent-console/backend/internal/runtime"
)

// EventSink receives a tab's runtime events for fan-out. Delivery is scoped
// by tab identifier so one tab's stream never reaches another tab's viewers.
type EventSink interface {
	BroadcastScoped(tabID string, data []byte)
}

// EventLog records a tab's event stream for later inspection. Optional.
type EventLog interface {
	Append(tabID string, raw []byte) error
	Close(tabID string)
}

const eventBacklog = 256

// Handle binds one runtime instance to its tab identity. Events emitted by
// the runtime flow through the handle's queue and out to the sink scoped by
// the tab's identifier.
type Handle struct {
	id        string
	name      string
	order     int
	savedPath string
	rt        runtime.Runtime

	events chan runtime.Event
	done   chan struct{}
}

func newHandle(id, name string, order int) *Handle {
	return &Handle{
		id:     id,
		name:   name,
		order:  order,
		events: make(chan runtime.Event, eventBacklog),
		done:   make(chan struct{}),
	}
}

func (h *Handle) ID() string               { return h.id }
func (h *Handle) Name() string             { return h.name }
func (h *Handle) Runtime() runtime.Runtime { return h.rt }

// SavedPath is the storage key this tab was resumed from, or empty for a
// fresh tab.
func (h *Handle) SavedPath() string { return h.savedPath }

// emit queues an event for fan-out. Events arriving after the tab closed
// are dropped; a full queue blocks the runtime's reader briefly rather than
// dropping mid-stream.
func (h *Handle) emit(ev runtime.Event) {
	select {
	case <-h.done:
	case h.events <- ev:
	}
}

// pump drains the handle's queue to the sink and the event log. Runs as one
// goroutine per tab for the tab's lifetime.
func (h *Handle) pump(sink EventSink, eventLog EventLog) {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.events:
			sink.BroadcastScoped(h.id, ev.Raw)
			if eventLog != nil {
				if err := eventLog.Append(h.id, ev.Raw); err != nil {
					log.Printf("tab %s: transcript: %v", h.id, err)
				}
			}
		}
	}
}

// close stops the pump and releases the runtime's resources.
func (h *Handle) close(eventLog EventLog) {
	close(h.done)
	if err := h.rt.Dispose(); err != nil {
		log.Printf("tab %s: dispose runtime: %v", h.id, err)
	}
	if eventLog != nil {
		eventLog.Close(h.id)
	}
}
