package types

// Tool is the declaration advertised to the backend.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  JSONSchema        `json:"parameters,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// MaxTokens caps the rendered tool output; 0 means the session default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ToolCall represents an invocation request from LLM
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw, possibly malformed JSON
}

// ToolResult is the rendered outcome of one call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	Error      string `json:"error,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	Edits      []Edit `json:"edits,omitempty"`
}
