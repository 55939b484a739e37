// Package runtime defines the boundary to the conversational agent runtime
// and provides the subprocess-backed implementation used in production.
package runtime

import (
	"context"
	"encoding/json"

	"github.com/agent-console/backend/internal/model"
)

// Event is one typed event emitted by a runtime while it processes a prompt.
// Raw holds the event exactly as it will be forwarded to viewers; Type is
// extracted so the owning layers can route without re-parsing.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// EmitFunc delivers a runtime event to the owning session handle.
type EmitFunc func(Event)

// SubmitBehavior selects what happens when a prompt arrives while the
// runtime is still streaming a response.
type SubmitBehavior string

const (
	// SubmitInterrupt aborts the in-flight response and starts over with
	// the new prompt.
	SubmitInterrupt SubmitBehavior = "interrupt"

	// SubmitQueue holds the prompt and submits it after the in-flight
	// response completes.
	SubmitQueue SubmitBehavior = "queue"
)

// Asker bridges runtime-initiated questions to whichever human viewer
// answers first. Implementations must always return an outcome: the reply,
// or def on timeout or cancellation.
type Asker interface {
	Ask(ctx context.Context, method string, params json.RawMessage, def json.RawMessage) json.RawMessage
}

// Runtime is one live agent session. Submit starts a response
// asynchronously; progress and completion are observed only through emitted
// events. All methods are safe for concurrent use.
type Runtime interface {
	// Submit starts processing a prompt. It never blocks on the full
	// response. behavior decides what happens if a response is already in
	// flight.
	Submit(ctx context.Context, text string, behavior SubmitBehavior) error

	// Abort signals the in-flight response to stop. Idempotent; a no-op
	// when nothing is in flight.
	Abort()

	// Streaming reports whether a response is currently in flight.
	Streaming() bool

	// Messages returns a deep copy of the ordered conversation log.
	Messages() []model.Message

	ModelID() string
	SessionID() string

	// Dispose releases the runtime's resources. No events are emitted
	// after Dispose returns.
	Dispose() error
}

// Resume carries a previously saved session into a new runtime. Path is the
// storage key the session came from, kept so a later save lands on the same
// record.
type Resume struct {
	SessionID string
	Path      string
	Name      string
	Messages  []model.Message
}

// Options configures construction of one runtime instance.
type Options struct {
	Emit   EmitFunc
	Asker  Asker
	Resume *Resume
}

// Factory constructs a runtime for a new tab. Construction failure means no
// tab is registered.
type Factory func(opts Options) (Runtime, error)
