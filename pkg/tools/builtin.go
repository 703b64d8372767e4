// Package tools provides the built-in tools a session can offer the backend.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Workspace is what the built-in tools may touch.
type Workspace struct {
	Paths    *security.PathValidator
	Commands *security.CommandValidator
	Limits   security.ResourceLimits
}

// NewWorkspace guards root with the default command and resource limits.
func NewWorkspace(root string, allowedPaths []string) *Workspace {
	return &Workspace{
		Paths:    security.NewPathValidator(root, allowedPaths),
		Commands: security.NewCommandValidator(),
		Limits:   security.DefaultResourceLimits(),
	}
}

// Definitions

var ReadFileTool = types.Tool{
	Name:        "read_file",
	Description: "Read the contents of a file in the workspace. With line_numbers, every line is prefixed with [n] as used by the diff notation.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The workspace-relative path of the file to read",
			},
			"line_numbers": map[string]any{
				"type":        "boolean",
				"description": "Prefix lines with their 1-based number",
			},
		},
		"required": []string{"path"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

var RunShellTool = types.Tool{
	Name:        "run_shell",
	Description: "Execute a shell command in the workspace root",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command line to execute",
			},
		},
		"required": []string{"command"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryShell,
	},
}

// Register adds every built-in tool to reg.
func Register(reg *tool.Registry, ws *Workspace) error {
	for _, b := range []struct {
		def     types.Tool
		handler tool.Handler
	}{
		{ReadFileTool, ws.HandleReadFile},
		{RunShellTool, ws.HandleRunShell},
		{WriteFileTool, ws.HandleWriteFile},
		{EditFileTool, ws.HandleEditFile},
		{GlobTool, ws.HandleGlob},
		{GrepTool, ws.HandleGrep},
		{DiffFilesTool, ws.HandleDiffFiles},
	} {
		if err := reg.Register(b.def, b.handler); err != nil {
			return err
		}
	}
	return nil
}

// Implementations

// decode maps loosely parsed tool arguments onto a struct.
func decode(args map[string]any, v any) error {
	if args == nil {
		return errors.New("invalid arguments: expected a JSON object")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

type ReadFileArgs struct {
	Path        string `json:"path"`
	LineNumbers bool   `json:"line_numbers"`
}

func (w *Workspace) HandleReadFile(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args ReadFileArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	content, rel, err := w.read(args.Path)
	if err != nil {
		return nil, err
	}
	if args.LineNumbers {
		content = numberLines(content)
	}
	return tool.FileResult{Filename: rel, Content: content}, nil
}

func (w *Workspace) read(path string) (content, rel string, err error) {
	abs, err := w.Paths.Resolve(path)
	if err != nil {
		return "", "", err
	}
	rel, err = w.Paths.Rel(abs)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		return "", "", fmt.Errorf("%s is a directory", rel)
	}
	if w.Limits.MaxFileSize > 0 && info.Size() > w.Limits.MaxFileSize {
		return "", "", fmt.Errorf("%s is %d bytes, larger than the %d byte limit", rel, info.Size(), w.Limits.MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", "", err
	}
	return string(data), rel, nil
}

// numberLines renders content in the diff notation's existing-line form.
func numberLines(content string) string {
	if content == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var sb strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, l)
	}
	return sb.String()
}

type RunShellArgs struct {
	Command string `json:"command"`
}

func (w *Workspace) HandleRunShell(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args RunShellArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if err := w.Commands.ValidateCommand(args.Command); err != nil {
		return nil, err
	}

	if w.Limits.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(w.Limits.MaxExecutionTime)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", args.Command)
	cmd.Dir = w.Paths.Root()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := tool.ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// a failing command is a result the model should see
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}
