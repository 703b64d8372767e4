package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gm-agent-org/gm-genai/pkg/store"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// reduce is the pure function (transcript, event) -> transcript. Events that
// do not change the conversation return it as is.
func reduce(messages []types.Message, event types.Event) []types.Message {
	switch e := event.(type) {
	case *types.SessionStartedEvent:
		return types.CloneMessages(e.Messages)

	case *types.LLMResponseEvent:
		return append(messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   e.Content,
			ToolCalls: append([]types.ToolCall(nil), e.ToolCalls...),
		})

	case *types.ToolResultEvent:
		if e.Fallback {
			return messages
		}
		content := e.Output
		if !e.Success && content == "" {
			content = fmt.Sprintf("Error: %s", e.Error)
		}
		return append(messages, types.Message{
			Role:       types.RoleTool,
			Content:    content,
			ToolCallID: e.ToolCallID,
			ToolName:   e.ToolName,
		})

	case *types.MessageEvent:
		return append(messages, e.Message.Clone())
	}
	return messages
}

// safeReduce wraps reduce with panic recovery.
func safeReduce(messages []types.Message, event types.Event) (_ []types.Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reducer panic: %v\nstack: %s", p, debug.Stack())
		}
	}()
	return reduce(messages, event), nil
}

// Replay rebuilds the transcript of a stored session from its events.
func Replay(ctx context.Context, s store.Store, sessionID string) ([]types.Message, error) {
	var messages []types.Message
	err := s.IterEvents(ctx, sessionID, func(event types.Event) error {
		next, err := safeReduce(messages, event)
		if err != nil {
			return err
		}
		messages = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	return messages, nil
}
