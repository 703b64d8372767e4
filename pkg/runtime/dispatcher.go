package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// dispatch runs the pending tool calls of the last assistant turn and records
// one result per call.
func (s *run) dispatch(ctx context.Context) (state, error) {
	calls := s.pending
	s.pending = nil

	s.stats.ToolCalls += len(calls)
	if s.stats.ToolCalls > s.rt.config.MaxToolCalls {
		return stateDone, fmt.Errorf("%w: %d", ErrMaxToolCalls, s.rt.config.MaxToolCalls)
	}

	var (
		results []types.ToolResult
		err     error
	)
	if s.rt.tools == nil {
		results = unknownTools(calls)
	} else {
		results, err = s.rt.tools.Run(ctx, calls)
	}
	if err != nil {
		return stateDone, fmt.Errorf("tool dispatch failed: %w", err)
	}
	// Results of a cancelled turn are dropped with it.
	if err := ctx.Err(); err != nil {
		return stateDone, err
	}

	fallback := s.rt.config.FallbackTools && len(s.last.ToolCalls) == 0
	for _, res := range results {
		s.rt.metrics.ObserveToolCall(res.ToolName, res.IsError)
		s.edits = append(s.edits, res.Edits...)
		s.emit(ctx, &types.ToolResultEvent{
			BaseEvent:  types.NewBaseEvent(types.EventToolResult, "tool", s.id),
			ToolCallID: res.ToolCallID,
			ToolName:   res.ToolName,
			Success:    !res.IsError,
			Output:     res.Content,
			Error:      res.Error,
			Truncated:  res.Truncated,
			Fallback:   fallback,
		})
	}
	if fallback {
		s.emit(ctx, &types.MessageEvent{
			BaseEvent: types.NewBaseEvent(types.EventMessage, "tool", s.id),
			Source:    "tool_calls",
			Message:   types.Message{Role: types.RoleUser, Content: tool.RenderFallbackResults(calls, results)},
		})
	}
	return stateRequesting, nil
}

func unknownTools(calls []types.ToolCall) []types.ToolResult {
	out := make([]types.ToolResult, len(calls))
	for i, c := range calls {
		msg := fmt.Sprintf("%s: %s", tool.ErrUnknownTool, c.Name)
		out[i] = types.ToolResult{ToolCallID: c.ID, ToolName: c.Name, Content: msg, IsError: true, Error: msg}
	}
	return out
}

// fallbackToolsPrompt describes tools to a backend without native tool
// calling.
func fallbackToolsPrompt(tools []types.Tool) string {
	var sb strings.Builder
	sb.WriteString("You can call the following tools. To call tools, answer with a fenced block tagged tool_calls ")
	sb.WriteString("holding one call per line as `name: {json arguments}`, then stop and wait for the results.\n\n")
	sb.WriteString("```tool_calls\n<tool_name>: { <JSON_serialized_tool_function_arguments> }\n```\n\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			if params, err := json.Marshal(t.Parameters); err == nil {
				fmt.Fprintf(&sb, "  parameters: %s\n", params)
			}
		}
	}
	return sb.String()
}
