package llm

import (
	"context"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Provider defines the interface for a completion backend (e.g., OpenAI, Gemini)
type Provider interface {
	// ID returns the unique identifier of the provider
	ID() string

	// Call executes a synchronous chat request
	Call(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// CallStream executes a streaming chat request. The channel is closed when
	// the response is complete; a chunk carrying Err ends the stream early.
	CallStream(ctx context.Context, req *ProviderRequest) (<-chan StreamChunk, error)
}

// StreamChunk is one partial response. Tool calls are only reported once
// complete.
type StreamChunk struct {
	Content      string
	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        *types.Usage
	Err          error
}

// ChatRequest is what the runtime asks for on each turn. Nil sampling fields
// fall back to the gateway's provider options.
type ChatRequest struct {
	Model          string
	Messages       []types.Message
	Tools          []types.Tool
	Temperature    *float64
	TopP           *float64
	MaxTokens      int
	Seed           *int
	ResponseType   types.ResponseType
	ResponseSchema types.JSONSchema
}

// ChatResponse is the aggregated backend answer for one turn.
type ChatResponse struct {
	Model        string
	Content      string
	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        types.Usage
	Vars         map[string]string
}

type ProviderRequest struct {
	Model          string
	Messages       []types.Message
	Tools          []types.Tool
	MaxTokens      int
	Temperature    float64
	TopP           float64
	Seed           *int
	ResponseType   types.ResponseType
	ResponseSchema types.JSONSchema
}

type ProviderResponse struct {
	ID           string
	Model        string
	Content      string
	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        types.Usage
	Vars         map[string]string
}
