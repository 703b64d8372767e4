package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gm-agent-org/gm-genai/pkg/fence"
	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// MultiToolUse is the pseudo tool some backends use to batch calls.
const MultiToolUse = "multi_tool_use.parallel"

// Dispatcher runs the tool calls of one assistant turn.
type Dispatcher struct {
	executor *Executor
	parallel bool
}

func NewDispatcher(executor *Executor, parallel bool) *Dispatcher {
	return &Dispatcher{executor: executor, parallel: parallel}
}

// Run executes calls and returns one result per call, in request order. A
// batched call yields a single result whose content joins its parts. The
// error is non-nil only for cancellation or a batch naming an unknown tool.
func (d *Dispatcher) Run(ctx context.Context, calls []types.ToolCall) ([]types.ToolResult, error) {
	plans := make([][]types.ToolCall, len(calls))
	for i, call := range calls {
		expanded, err := d.expand(call)
		if err != nil {
			return nil, err
		}
		plans[i] = expanded
	}

	results := make([]types.ToolResult, len(calls))
	if !d.parallel {
		for i, plan := range plans {
			r, err := d.runPlan(ctx, calls[i], plan)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		g.Go(func() error {
			r, err := d.runPlan(gctx, calls[i], plan)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Dispatcher) runPlan(ctx context.Context, call types.ToolCall, plan []types.ToolCall) (types.ToolResult, error) {
	if len(plan) == 1 && plan[0].Name == call.Name {
		if err := ctx.Err(); err != nil {
			return types.ToolResult{}, err
		}
		return d.executor.Invoke(ctx, call), nil
	}

	joined := types.ToolResult{ToolCallID: call.ID, ToolName: call.Name}
	var parts []string
	for _, sub := range plan {
		if err := ctx.Err(); err != nil {
			return types.ToolResult{}, err
		}
		r := d.executor.Invoke(ctx, sub)
		parts = append(parts, r.Content)
		joined.Edits = append(joined.Edits, r.Edits...)
		joined.Truncated = joined.Truncated || r.Truncated
		if r.IsError {
			joined.IsError = true
			joined.Error = strings.TrimSpace(joined.Error + "\n" + r.Error)
		}
	}
	joined.Content = strings.Join(parts, "\n\n")
	return joined, nil
}

type toolUses struct {
	ToolUses []struct {
		RecipientName string         `json:"recipient_name"`
		Parameters    map[string]any `json:"parameters"`
	} `json:"tool_uses"`
}

// expand resolves a batched call into its parts. Other calls are returned
// unchanged, even when their tool is unknown.
func (d *Dispatcher) expand(call types.ToolCall) ([]types.ToolCall, error) {
	if call.Name != MultiToolUse {
		return []types.ToolCall{call}, nil
	}

	v, err := jsonx.Parse(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid arguments: %w", MultiToolUse, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid arguments: %w", MultiToolUse, err)
	}
	var uses toolUses
	if err := json.Unmarshal(raw, &uses); err != nil {
		return nil, fmt.Errorf("%s: invalid arguments: %w", MultiToolUse, err)
	}

	out := make([]types.ToolCall, 0, len(uses.ToolUses))
	for _, use := range uses.ToolUses {
		name := strings.TrimPrefix(use.RecipientName, "functions.")
		if _, ok := d.executor.registry.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrUnknownTool, name, MultiToolUse)
		}
		args, err := json.Marshal(use.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", MultiToolUse, name, err)
		}
		out = append(out, types.ToolCall{ID: call.ID, Name: name, Arguments: string(args)})
	}
	return out, nil
}

var fallbackCallRx = regexp.MustCompile(`^([\w\d]+):\s*(\{.*\})\s*$`)

// ParseFallbackCalls reads tool calls written as text by backends without
// native tool support, from fences tagged tool_call or tool_calls with one
// "name: {json}" line per call.
func ParseFallbackCalls(text string) []types.ToolCall {
	var calls []types.ToolCall
	for _, f := range fence.Extract(text) {
		lang := strings.ToLower(f.Language)
		if lang != "tool_call" && lang != "tool_calls" {
			continue
		}
		for _, line := range strings.Split(f.Content, "\n") {
			m := fallbackCallRx.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			calls = append(calls, types.ToolCall{
				ID:        types.GenerateCallID(),
				Name:      m[1],
				Arguments: m[2],
			})
		}
	}
	return calls
}

// RenderFallbackResults formats results as the user message that answers
// fallback tool calls.
func RenderFallbackResults(calls []types.ToolCall, results []types.ToolResult) string {
	var sb strings.Builder
	for i, call := range calls {
		if i > 0 {
			sb.WriteString("\n")
		}
		content := ""
		if i < len(results) {
			content = results[i].Content
		}
		fmt.Fprintf(&sb, "- %s(%s)\n`````\n%s\n`````\n", call.Name, call.Arguments, strings.TrimRight(content, "\n"))
	}
	return sb.String()
}

// List returns the tools advertised to the model.
func (d *Dispatcher) List() []types.Tool {
	return d.executor.List()
}
