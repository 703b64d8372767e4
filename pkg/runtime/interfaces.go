package runtime

import (
	"context"

	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Completer produces one assistant turn. onPartial, when non-nil, receives
// streamed chunks before the aggregate is returned.
type Completer interface {
	Complete(ctx context.Context, req *llm.ChatRequest, onPartial func(llm.StreamChunk)) (*llm.ChatResponse, error)
}

// ToolDispatcher runs the tool calls of one turn and returns one result per
// call in request order.
type ToolDispatcher interface {
	Run(ctx context.Context, calls []types.ToolCall) ([]types.ToolResult, error)
	List() []types.Tool
}

// Participant reviews the transcript after an assistant answer and may add
// messages, which triggers another turn.
type Participant interface {
	Name() string
	Respond(ctx context.Context, messages []types.Message) ([]types.Message, error)
}

// ParticipantFunc adapts a function to Participant.
type ParticipantFunc struct {
	Label string
	Fn    func(ctx context.Context, messages []types.Message) ([]types.Message, error)
}

func (p ParticipantFunc) Name() string { return p.Label }

func (p ParticipantFunc) Respond(ctx context.Context, messages []types.Message) ([]types.Message, error) {
	return p.Fn(ctx, messages)
}
