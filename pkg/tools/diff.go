package tools

import (
	"context"
	"fmt"

	"github.com/gm-agent-org/gm-genai/pkg/llmdiff"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var DiffFilesTool = types.Tool{
	Name:        "diff_files",
	Description: "Compute a unified diff between two workspace files. Context and added lines carry their [n] line number in the second file.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"from": map[string]any{
				"type":        "string",
				"description": "The original file",
			},
			"to": map[string]any{
				"type":        "string",
				"description": "The changed file",
			},
		},
		"required": []string{"from", "to"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

type DiffFilesArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (w *Workspace) HandleDiffFiles(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args DiffFilesArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.From == "" || args.To == "" {
		return nil, fmt.Errorf("from and to are required")
	}

	before, from, err := w.read(args.From)
	if err != nil {
		return nil, err
	}
	after, to, err := w.read(args.To)
	if err != nil {
		return nil, err
	}
	diff := llmdiff.Llmify(llmdiff.Unified("a/"+from, "b/"+to, before, after, 3))
	if diff == "" {
		return tool.Text(fmt.Sprintf("%s and %s are identical", from, to)), nil
	}
	return tool.Text(tool.Fenced(diff, "diff")), nil
}
