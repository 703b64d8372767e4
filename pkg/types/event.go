package types

import "time"

// Event is the interface for all session events
type Event interface {
	EventID() string
	EventType() string
	EventTimestamp() time.Time
	EventActor() string
	EventSubject() string
}

// BaseEvent is embedded in all specific event types
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject"` // session id
}

func (e *BaseEvent) EventID() string           { return e.ID }
func (e *BaseEvent) EventType() string         { return e.Type }
func (e *BaseEvent) EventTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) EventActor() string        { return e.Actor }
func (e *BaseEvent) EventSubject() string      { return e.Subject }

func NewBaseEvent(eventType, actor, subject string) BaseEvent {
	return BaseEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Actor:     actor,
		Subject:   subject,
	}
}

// Event type names.
const (
	EventSessionStarted  = "session_started"
	EventTurnStarted     = "turn_started"
	EventLLMResponse     = "llm_response"
	EventToolResult      = "tool_result"
	EventRepair          = "repair"
	EventParticipant     = "participant"
	EventMessage         = "message"
	EventSessionFinished = "session_finished"
)

// SessionStartedEvent carries the prompt a session starts from.
type SessionStartedEvent struct {
	BaseEvent
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []string  `json:"tools,omitempty"`
}

// TurnStartedEvent marks a completion request.
type TurnStartedEvent struct {
	BaseEvent
	Turn     int    `json:"turn"`
	Model    string `json:"model"`
	Messages int    `json:"messages"`
	Tokens   int    `json:"tokens,omitempty"` // estimated prompt size
}

// LLMResponseEvent records the aggregated backend response.
type LLMResponseEvent struct {
	BaseEvent
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason"`
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
}

// ToolResultEvent represents the result of a tool execution
type ToolResultEvent struct {
	BaseEvent
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	// Fallback results are answered with a MessageEvent instead of a tool
	// message.
	Fallback bool `json:"fallback,omitempty"`
}

// RepairEvent is emitted for each data-format repair round trip, and once
// more when the repair budget is exhausted.
type RepairEvent struct {
	BaseEvent
	Attempt   int      `json:"attempt"`
	Issues    []string `json:"issues"`
	Exhausted bool     `json:"exhausted,omitempty"`
}

// ParticipantEvent records messages injected by a conversation participant.
type ParticipantEvent struct {
	BaseEvent
	Label    string `json:"label"`
	Messages int    `json:"messages"`
	Error    string `json:"error,omitempty"`
}

// SessionFinishedEvent closes the event stream of a session.
type SessionFinishedEvent struct {
	BaseEvent
	Status       Status          `json:"status"`
	FinishReason string          `json:"finish_reason"`
	Error        string          `json:"error,omitempty"`
	Stats        GenerationStats `json:"stats"`
}

// MessageEvent appends a message that did not come from the backend or a
// native tool call, such as a repair request or a participant reply.
type MessageEvent struct {
	BaseEvent
	Source  string  `json:"source"`
	Message Message `json:"message"`
}
