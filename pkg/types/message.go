package types

import "strings"

// PartType tags the payload carried by a ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	URL      string   `json:"url,omitempty"`       // image location or data URL
	Data     string   `json:"data,omitempty"`      // base64 audio payload
	MimeType string   `json:"mime_type,omitempty"` // e.g. audio/wav
}

// Message is a single entry of the conversation. Either Content or Parts
// carries the body; Parts wins when both are set.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`  // assistant requests
	ToolCallID string        `json:"tool_call_id,omitempty"` // tool results
	ToolName   string        `json:"tool_name,omitempty"`
	Refusal    string        `json:"refusal,omitempty"`
}

// Text renders the textual body of the message. Non-text parts are skipped.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Clone creates a deep copy of the Message
func (m Message) Clone() Message {
	clone := m
	if m.Parts != nil {
		clone.Parts = make([]ContentPart, len(m.Parts))
		copy(clone.Parts, m.Parts)
	}
	if m.ToolCalls != nil {
		clone.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(clone.ToolCalls, m.ToolCalls)
	}
	return clone
}

// CloneMessages deep-copies a transcript.
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

// AppendUserMessage adds content to the trailing user message, or starts a
// new one when the transcript does not end with a user turn.
func AppendUserMessage(msgs []Message, content string) []Message {
	if content == "" {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleUser && len(msgs[n-1].Parts) == 0 {
		msgs[n-1].Content += "\n" + content
		return msgs
	}
	return append(msgs, Message{Role: RoleUser, Content: content})
}
