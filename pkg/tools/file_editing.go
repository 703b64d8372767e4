package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/llmdiff"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Both tools only propose edits. The session materializes them together with
// the edits parsed from the final answer.

var WriteFileTool = types.Tool{
	Name:        "write_file",
	Description: "Write a file in the workspace, creating it or replacing its whole content",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The workspace-relative path of the file",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The complete new content of the file",
			},
		},
		"required": []string{"path", "content"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

var EditFileTool = types.Tool{
	Name:        "edit_file",
	Description: "Replace one exact occurrence of old_content with new_content in a workspace file",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The workspace-relative path of the file",
			},
			"old_content": map[string]any{
				"type":        "string",
				"description": "The exact text to replace. It must occur exactly once.",
			},
			"new_content": map[string]any{
				"type":        "string",
				"description": "The replacement text",
			},
		},
		"required": []string{"path", "old_content", "new_content"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (w *Workspace) HandleWriteFile(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args WriteFileArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	before, rel, err := w.read(args.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		abs, rerr := w.Paths.Resolve(args.Path)
		if rerr != nil {
			return nil, rerr
		}
		if rel, rerr = w.Paths.Rel(abs); rerr != nil {
			return nil, rerr
		}
		return tool.PromptResult{
			Text: fmt.Sprintf("Create %s", rel),
			Edits: []types.Edit{{
				Type:     types.EditCreateFile,
				Filename: rel,
				Label:    fmt.Sprintf("Create %s", rel),
				Text:     args.Content,
			}},
		}, nil
	case err != nil:
		return nil, err
	}

	return tool.PromptResult{
		Text: renderChange(rel, before, args.Content),
		Edits: []types.Edit{{
			Type:     types.EditReplace,
			Filename: rel,
			Label:    fmt.Sprintf("Update %s", rel),
			Text:     args.Content,
		}},
	}, nil
}

type EditFileArgs struct {
	Path       string `json:"path"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
}

func (w *Workspace) HandleEditFile(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args EditFileArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Path == "" || args.OldContent == "" {
		return nil, fmt.Errorf("path and old_content are required")
	}

	before, rel, err := w.read(args.Path)
	if err != nil {
		return nil, err
	}
	switch n := strings.Count(before, args.OldContent); n {
	case 0:
		return nil, fmt.Errorf("old_content not found in %s", rel)
	case 1:
	default:
		return nil, fmt.Errorf("old_content occurs %d times in %s, include more context", n, rel)
	}
	after := strings.Replace(before, args.OldContent, args.NewContent, 1)

	return tool.PromptResult{
		Text: renderChange(rel, before, after),
		Edits: []types.Edit{{
			Type:     types.EditReplace,
			Filename: rel,
			Label:    fmt.Sprintf("Update %s", rel),
			Text:     after,
		}},
	}, nil
}

func renderChange(name, before, after string) string {
	diff := llmdiff.Render(before, after, 2)
	if diff == "" {
		return fmt.Sprintf("%s is unchanged", name)
	}
	return fmt.Sprintf("Update %s\n%s", name, tool.Fenced(diff, "diff"))
}
