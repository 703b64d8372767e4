package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

func TestHandleWriteFile(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"old.txt": "one\ntwo\n"})
	ctx := context.Background()

	out, err := ws.HandleWriteFile(ctx, map[string]any{"path": "dir/new.txt", "content": "fresh\n"})
	require.NoError(t, err)
	pr := out.(tool.PromptResult)
	require.Len(t, pr.Edits, 1)
	assert.Equal(t, types.Edit{Type: types.EditCreateFile, Filename: "dir/new.txt", Label: "Create dir/new.txt", Text: "fresh\n"}, pr.Edits[0])

	out, err = ws.HandleWriteFile(ctx, map[string]any{"path": "old.txt", "content": "one\n2\n"})
	require.NoError(t, err)
	pr = out.(tool.PromptResult)
	require.Len(t, pr.Edits, 1)
	assert.Equal(t, types.EditReplace, pr.Edits[0].Type)
	assert.Contains(t, pr.Text, "- [2] two")
	assert.Contains(t, pr.Text, "+ 2")

	// nothing touches disk
	_, err = os.Stat(filepath.Join(ws.Paths.Root(), "dir", "new.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(ws.Paths.Root(), "old.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestHandleEditFile(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "x := 1\ny := 1\nz := 2\n"})
	ctx := context.Background()

	out, err := ws.HandleEditFile(ctx, map[string]any{"path": "a.go", "old_content": "z := 2", "new_content": "z := 3"})
	require.NoError(t, err)
	pr := out.(tool.PromptResult)
	require.Len(t, pr.Edits, 1)
	assert.Equal(t, "x := 1\ny := 1\nz := 3\n", pr.Edits[0].Text)
	assert.Equal(t, "Update a.go", pr.Edits[0].Label)

	_, err = ws.HandleEditFile(ctx, map[string]any{"path": "a.go", "old_content": ":= 1", "new_content": ":= 0"})
	assert.ErrorContains(t, err, "occurs 2 times")

	_, err = ws.HandleEditFile(ctx, map[string]any{"path": "a.go", "old_content": "w := 9", "new_content": ""})
	assert.ErrorContains(t, err, "not found")

	_, err = ws.HandleEditFile(ctx, map[string]any{"path": "missing.go", "old_content": "a", "new_content": "b"})
	assert.Error(t, err)
}
