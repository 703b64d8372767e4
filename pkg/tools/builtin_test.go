package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

func newWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write temp file: %v", err)
		}
	}
	return NewWorkspace(dir, nil)
}

func TestHandleReadFile(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"test.txt": "hello\nworld\n"})

	t.Run("success", func(t *testing.T) {
		out, err := ws.HandleReadFile(context.Background(), map[string]any{"path": "test.txt"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		fr, ok := out.(tool.FileResult)
		if !ok || fr.Filename != "test.txt" || fr.Content != "hello\nworld\n" {
			t.Fatalf("unexpected output %#v", out)
		}
	})

	t.Run("line numbers", func(t *testing.T) {
		out, err := ws.HandleReadFile(context.Background(), map[string]any{"path": "test.txt", "line_numbers": true})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := out.(tool.FileResult).Content; got != "[1] hello\n[2] world\n" {
			t.Fatalf("unexpected content %q", got)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		if _, err := ws.HandleReadFile(context.Background(), map[string]any{}); err == nil {
			t.Fatalf("expected error for missing path")
		}
		if _, err := ws.HandleReadFile(context.Background(), nil); err == nil {
			t.Fatalf("expected error for unparsable arguments")
		}
	})

	t.Run("outside workspace", func(t *testing.T) {
		_, err := ws.HandleReadFile(context.Background(), map[string]any{"path": "../escape.txt"})
		if !errors.Is(err, security.ErrPathTraversal) {
			t.Fatalf("expected ErrPathTraversal, got %v", err)
		}
	})

	t.Run("size limit", func(t *testing.T) {
		small := *ws
		small.Limits.MaxFileSize = 3
		if _, err := small.HandleReadFile(context.Background(), map[string]any{"path": "test.txt"}); err == nil {
			t.Fatalf("expected error for oversized file")
		}
	})
}

func TestHandleRunShell(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"marker.txt": "x"})

	t.Run("empty command", func(t *testing.T) {
		if _, err := ws.HandleRunShell(context.Background(), map[string]any{}); err == nil {
			t.Fatalf("expected error for empty command")
		}
	})

	t.Run("executes in workspace", func(t *testing.T) {
		out, err := ws.HandleRunShell(context.Background(), map[string]any{"command": "ls"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		res := out.(tool.ShellResult)
		if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "marker.txt" {
			t.Fatalf("unexpected output %#v", res)
		}
	})

	t.Run("exit code", func(t *testing.T) {
		out, err := ws.HandleRunShell(context.Background(), map[string]any{"command": "echo oops >&2; exit 3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		res := out.(tool.ShellResult)
		if res.ExitCode != 3 || strings.TrimSpace(res.Stderr) != "oops" {
			t.Fatalf("unexpected output %#v", res)
		}
	})

	t.Run("blocked", func(t *testing.T) {
		_, err := ws.HandleRunShell(context.Background(), map[string]any{"command": "rm -rf /"})
		if !errors.Is(err, security.ErrBlockedCommand) {
			t.Fatalf("expected ErrBlockedCommand, got %v", err)
		}
	})
}

func TestRegisterWithExecutor(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.txt": "alpha\n"})
	reg := tool.NewRegistry()
	if err := Register(reg, ws); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := len(reg.List()); got != 7 {
		t.Fatalf("expected 7 tools, got %d", got)
	}
	if err := Register(reg, ws); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	policy := tool.NewPolicy(config.SecurityConfig{AutoApprove: true, AllowFileSystem: true}, reg)
	exec := tool.NewExecutor(reg, policy, tool.WithWorkspaceRoot(ws.Paths.Root()))

	res := exec.Invoke(context.Background(), types.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"a.txt"}`})
	if res.IsError || !strings.Contains(res.Content, "alpha") {
		t.Fatalf("unexpected result %#v", res)
	}

	// shell is off unless enabled
	res = exec.Invoke(context.Background(), types.ToolCall{ID: "2", Name: "run_shell", Arguments: `{"command":"true"}`})
	if !res.IsError {
		t.Fatalf("expected shell to be denied, got %#v", res)
	}
}
