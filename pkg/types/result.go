package types

// Status is the terminal state of a session.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
	// StatusRunning is only reported for sessions that have not finished.
	StatusRunning Status = "running"
)

// Finish reasons reported by completion backends.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
	FinishCancel    = "cancel"
	FinishFail      = "fail"
)

// ResponseType selects how the final text is turned into structured data.
type ResponseType string

const (
	ResponseText       ResponseType = ""
	ResponseJSONObject ResponseType = "json_object"
	ResponseJSONSchema ResponseType = "json_schema"
)

// GenerationStats are monotonically increasing counters for one session.
type GenerationStats struct {
	Turns     int   `json:"turns"`
	ToolCalls int   `json:"tool_calls"`
	Repairs   int   `json:"repairs"`
	Usage     Usage `json:"usage"`
}

// Usage statistics for LLM
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// RunResult is what a session hands back to its caller.
type RunResult struct {
	SessionID    string               `json:"session_id"`
	Model        string               `json:"model,omitempty"`
	Status       Status               `json:"status"`
	FinishReason string               `json:"finish_reason"`
	Error        string               `json:"error,omitempty"`
	Text         string               `json:"text"`
	Messages     []Message            `json:"messages"`
	Fences       []Fence              `json:"fences,omitempty"`
	Annotations  []Diagnostic         `json:"annotations,omitempty"`
	JSON         any                  `json:"json,omitempty"`
	Vars         map[string]string    `json:"vars,omitempty"`
	FileEdits    map[string]*FileEdit `json:"file_edits,omitempty"`
	Edits        []Edit               `json:"edits,omitempty"`
	Stats        GenerationStats      `json:"stats"`
}
