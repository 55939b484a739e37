package runtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agent-console/backend/internal/model"
)

// Wire event types produced by the agent process and forwarded to viewers.
const (
	EventTurnStart     = "turn_start"
	EventTurnEnd       = "turn_end"
	EventMessageStart  = "message_start"
	EventMessageEnd    = "message_end"
	EventTextDelta     = "text_delta"
	EventThinkingDelta = "thinking_delta"
	EventToolUse       = "tool_use"
	EventToolResult    = "tool_result"
	EventError         = "error"
	EventUIRequest     = "ui_request"
)

// ParseEvent extracts the type tag from a raw event line.
func ParseEvent(line []byte) (Event, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Event{}, fmt.Errorf("malformed event: %w", err)
	}
	if probe.Type == "" {
		return Event{}, fmt.Errorf("event missing type tag")
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return Event{Type: probe.Type, Raw: raw}, nil
}

// decoder folds the runtime's sequential event stream into the ordered
// conversation log a state sync is built from. It is the single writer of
// the log; readers get deep copies.
type decoder struct {
	mu        sync.Mutex
	messages  []model.Message
	streaming bool
}

func newDecoder(resume []model.Message) *decoder {
	return &decoder{messages: model.CloneMessages(resume)}
}

// AppendUser records a submitted prompt as a user message.
func (d *decoder) AppendUser(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, model.Message{
		Role:    model.RoleUser,
		Content: []model.Segment{{Type: model.SegmentText, Text: text}},
	})
}

// Apply folds one event into the log. Unknown event types are ignored; they
// are still forwarded to viewers verbatim.
func (d *decoder) Apply(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case EventTurnStart:
		d.streaming = true

	case EventTurnEnd, EventError:
		d.streaming = false

	case EventMessageStart:
		d.messages = append(d.messages, model.Message{Role: model.RoleAssistant})

	case EventTextDelta:
		d.appendDelta(ev.Raw, model.SegmentText)

	case EventThinkingDelta:
		d.appendDelta(ev.Raw, model.SegmentThinking)

	case EventToolUse:
		var p struct {
			ToolName  string          `json:"toolName"`
			ToolInput json.RawMessage `json:"toolInput"`
		}
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return
		}
		msg := d.lastAssistant()
		msg.Content = append(msg.Content, model.Segment{
			Type:      model.SegmentToolUse,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
		})

	case EventToolResult:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return
		}
		d.messages = append(d.messages, model.Message{
			Role:    model.RoleToolResult,
			Content: []model.Segment{{Type: model.SegmentText, Text: p.Text}},
		})
	}
}

// appendDelta extends the trailing segment of the current assistant message
// when it has the same type, otherwise opens a new segment.
func (d *decoder) appendDelta(raw json.RawMessage, segType model.SegmentType) {
	var p struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	msg := d.lastAssistant()
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Type == segType {
		msg.Content[n-1].Text += p.Text
		return
	}
	msg.Content = append(msg.Content, model.Segment{Type: segType, Text: p.Text})
}

// lastAssistant returns the trailing assistant message, creating one if the
// stream delivered a delta without a preceding message_start.
func (d *decoder) lastAssistant() *model.Message {
	if n := len(d.messages); n > 0 && d.messages[n-1].Role == model.RoleAssistant {
		return &d.messages[n-1]
	}
	d.messages = append(d.messages, model.Message{Role: model.RoleAssistant})
	return &d.messages[len(d.messages)-1]
}

func (d *decoder) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

func (d *decoder) EndTurn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = false
}

func (d *decoder) Messages() []model.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return model.CloneMessages(d.messages)
}
