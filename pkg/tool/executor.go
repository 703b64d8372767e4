package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// DefaultMaxTokens caps rendered tool output when neither the tool nor the
// executor sets a limit.
const DefaultMaxTokens = 4000

// Handler implements a tool. args is nil when the model sent arguments that
// could not be parsed.
type Handler func(ctx context.Context, args map[string]any) (Output, error)

// PermissionRequest represents a request for user approval
type PermissionRequest struct {
	RequestID  string            `json:"request_id"`
	ToolName   string            `json:"tool_name"`
	Permission string            `json:"permission"` // tool category, e.g. "filesystem", "shell"
	Arguments  string            `json:"arguments"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PermissionCallback is called when a tool needs user approval
// Returns true if approved, false if denied
type PermissionCallback func(ctx context.Context, req PermissionRequest) (approved bool, err error)

type Executor struct {
	registry           *Registry
	policy             *Policy
	permissionCallback PermissionCallback
	maxTokens          int
	root               string
	log                *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxTokens sets the default output budget per call.
func WithMaxTokens(n int) ExecutorOption {
	return func(e *Executor) { e.maxTokens = n }
}

// WithWorkspaceRoot makes edit filenames returned by tools relative to root.
func WithWorkspaceRoot(root string) ExecutorOption {
	return func(e *Executor) { e.root = root }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

func NewExecutor(registry *Registry, policy *Policy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:  registry,
		policy:    policy,
		maxTokens: DefaultMaxTokens,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPermissionCallback sets the callback for handling permission requests
func (e *Executor) SetPermissionCallback(cb PermissionCallback) {
	e.permissionCallback = cb
}

func (e *Executor) Registry() *Registry { return e.registry }

// Invoke runs one call. Every failure short of cancellation becomes the
// content of the returned result so the model can react to it.
func (e *Executor) Invoke(ctx context.Context, call types.ToolCall) types.ToolResult {
	result := types.ToolResult{ToolCallID: call.ID, ToolName: call.Name}

	ent, ok := e.registry.lookup(call.Name)
	if !ok {
		e.log.Warn("unknown tool", "tool", call.Name, "call_id", call.ID)
		return failed(result, ErrUnknownTool.Error())
	}

	if e.policy != nil {
		action, err := e.policy.Check(ctx, call.Name, call.Arguments)
		if err != nil || action == PolicyDeny {
			if err == nil {
				err = fmt.Errorf("policy denied execution of tool: %s", call.Name)
			}
			e.log.Warn("tool denied", "tool", call.Name, "error", err)
			return failed(result, err.Error())
		}
		if action == PolicyConfirm && e.permissionCallback != nil {
			approved, err := e.permissionCallback(ctx, PermissionRequest{
				RequestID:  types.GenerateID("perm"),
				ToolName:   call.Name,
				Permission: ent.tool.Metadata["category"],
				Arguments:  call.Arguments,
				Metadata:   ent.tool.Metadata,
			})
			if err != nil {
				return failed(result, fmt.Sprintf("permission request failed: %v", err))
			}
			if !approved {
				return failed(result, "Permission denied by user")
			}
		}
	}

	args, err := jsonx.ParseObject(call.Arguments)
	if err != nil {
		e.log.Warn("tool arguments could not be parsed", "tool", call.Name, "error", err)
		args = nil
	}

	e.log.Debug("tool call", "tool", call.Name, "call_id", call.ID)
	out, err := e.run(ctx, ent.handler, args)
	if err != nil {
		e.log.Warn("tool failed", "tool", call.Name, "error", err)
		return failed(result, err.Error())
	}

	content := Render(out)
	limit := ent.tool.MaxTokens
	if limit <= 0 {
		limit = e.maxTokens
	}
	if truncated, cut := Truncate(content, limit); cut {
		e.log.Warn("tool output truncated", "tool", call.Name, "max_tokens", limit)
		content = truncated
		result.Truncated = true
	}
	result.Content = content

	result.Edits = e.relativeEdits(EditsOf(out))
	return result
}

func (e *Executor) run(ctx context.Context, h Handler, args map[string]any) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tool panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

func (e *Executor) relativeEdits(edits []types.Edit) []types.Edit {
	if len(edits) == 0 {
		return nil
	}
	out := make([]types.Edit, len(edits))
	for i, ed := range edits {
		if e.root != "" && filepath.IsAbs(ed.Filename) {
			if rel, err := filepath.Rel(e.root, ed.Filename); err == nil && !strings.HasPrefix(rel, "..") {
				ed.Filename = filepath.ToSlash(rel)
			}
		}
		out[i] = ed
	}
	return out
}

func failed(r types.ToolResult, msg string) types.ToolResult {
	r.Content = msg
	r.IsError = true
	r.Error = msg
	return r
}

// List returns the tools advertised to the model.
func (e *Executor) List() []types.Tool {
	return e.registry.List()
}
