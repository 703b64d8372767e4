package runtime

import (
	"strings"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

func TestReduce(t *testing.T) {
	sid := types.GenerateSessionID()
	prompt := []types.Message{{Role: types.RoleUser, Content: "hi"}}

	msgs := reduce(nil, &types.SessionStartedEvent{BaseEvent: types.NewBaseEvent(types.EventSessionStarted, "runtime", sid), Messages: prompt})
	prompt[0].Content = "mutated"
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("session start should copy the prompt, got %+v", msgs)
	}

	msgs = reduce(msgs, &types.LLMResponseEvent{
		BaseEvent: types.NewBaseEvent(types.EventLLMResponse, "llm", sid),
		ToolCalls: []types.ToolCall{{ID: "c1", Name: "echo"}},
	})
	msgs = reduce(msgs, &types.ToolResultEvent{
		BaseEvent:  types.NewBaseEvent(types.EventToolResult, "tool", sid),
		ToolCallID: "c1",
		ToolName:   "echo",
		Error:      "boom",
	})
	msgs = reduce(msgs, &types.ToolResultEvent{BaseEvent: types.NewBaseEvent(types.EventToolResult, "tool", sid), Fallback: true})
	msgs = reduce(msgs, &types.RepairEvent{BaseEvent: types.NewBaseEvent(types.EventRepair, "runtime", sid)})

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[1].Role != types.RoleAssistant || len(msgs[1].ToolCalls) != 1 {
		t.Errorf("unexpected assistant message %+v", msgs[1])
	}
	if msgs[2].Role != types.RoleTool || msgs[2].Content != "Error: boom" || msgs[2].ToolCallID != "c1" {
		t.Errorf("unexpected tool message %+v", msgs[2])
	}

	msgs = reduce(msgs, &types.MessageEvent{
		BaseEvent: types.NewBaseEvent(types.EventMessage, "runtime", sid),
		Source:    "repair",
		Message:   types.Message{Role: types.RoleUser, Content: "fix it"},
	})
	if last := msgs[len(msgs)-1]; last.Role != types.RoleUser || last.Content != "fix it" {
		t.Errorf("unexpected appended message %+v", last)
	}
}

func TestFallbackToolsPrompt(t *testing.T) {
	got := fallbackToolsPrompt([]types.Tool{{Name: "echo", Description: "echoes", Parameters: types.JSONSchema{"type": "object"}}})
	for _, want := range []string{"```tool_calls", "- echo: echoes", `parameters: {"type":"object"}`} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}
