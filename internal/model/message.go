package model

import "encoding/json"

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// SegmentType identifies the kind of content a message segment carries.
type SegmentType string

const (
	SegmentText     SegmentType = "text"
	SegmentThinking SegmentType = "thinking"
	SegmentToolUse  SegmentType = "tool_use"
)

// Segment is one ordered piece of a message's content. Assistant messages
// interleave text, thinking, and tool invocations; user and tool-result
// messages carry a single text segment.
type Segment struct {
	Type      SegmentType     `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	ToolInput json.RawMessage `json:"toolInput,omitempty"`
}

// Message is one entry in a session's ordered conversation log.
type Message struct {
	Role    Role      `json:"role"`
	Content []Segment `json:"content"`
}

// Clone returns a deep copy of the message. Segments hold raw JSON, so the
// tool input bytes are copied too.
func (m Message) Clone() Message {
	out := Message{Role: m.Role}
	if m.Content != nil {
		out.Content = make([]Segment, len(m.Content))
		copy(out.Content, m.Content)
		for i, seg := range m.Content {
			if seg.ToolInput != nil {
				out.Content[i].ToolInput = append(json.RawMessage(nil), seg.ToolInput...)
			}
		}
	}
	return out
}

// CloneMessages deep-copies an ordered message log.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
