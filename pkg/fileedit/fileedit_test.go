package fileedit

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/gm-genai/pkg/fence"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

const pySource = "import re\n\ndef f(): pass\n"

func TestComputeFileAndDiff(t *testing.T) {
	text := "DIFF ./a.py:\n```diff\n[1] import re\n\n- [3] def f(): pass\n+ [3] def f(): return 1\n```\n\n" +
		"```txt file=notes/hello.txt\nhi\n```\n"
	files := fstest.MapFS{"a.py": {Data: []byte(pySource)}}

	res, err := Compute(context.Background(), Input{Text: text, Fences: fence.Extract(text)}, Options{Files: files})
	require.NoError(t, err)

	require.Contains(t, res.FileEdits, "a.py")
	require.Contains(t, res.FileEdits, "notes/hello.txt")
	assert.Equal(t, "import re\n\ndef f(): return 1\n", *res.FileEdits["a.py"].After)
	assert.Equal(t, pySource, *res.FileEdits["a.py"].Before)
	assert.Nil(t, res.FileEdits["notes/hello.txt"].Before)

	require.Len(t, res.Edits, 2)
	assert.Equal(t, types.EditReplace, res.Edits[0].Type)
	assert.Equal(t, "Update a.py", res.Edits[0].Label)
	assert.Equal(t, types.EditCreateFile, res.Edits[1].Type)
	assert.Equal(t, "Create notes/hello.txt", res.Edits[1].Label)
	assert.True(t, res.Edits[1].Overwrite)
	assert.Equal(t, "hi\n", res.Edits[1].Text)
}

func TestComputeChainsBlocksOnSameFile(t *testing.T) {
	fences := []types.Fence{
		{Label: "FILE a.txt", Content: "one\ntwo\nthree\n"},
		{Label: "DIFF a.txt", Content: "[1] one\n- [2] two\n+ [2] TWO\n"},
	}
	res, err := Compute(context.Background(), Input{Fences: fences}, Options{Files: fstest.MapFS{}})
	require.NoError(t, err)
	assert.Equal(t, "one\nTWO\nthree\n", *res.FileEdits["a.txt"].After)
}

func TestComputeSkipsInvalidFences(t *testing.T) {
	fences := []types.Fence{
		{Label: "FILE a.txt", Content: "x", Validation: &types.Validation{SchemaError: "bad"}},
		{Label: "SUMMARY", Content: "not a file"},
	}
	res, err := Compute(context.Background(), Input{Fences: fences}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.FileEdits)
	assert.Empty(t, res.Edits)
}

func TestComputeRecordsApplyError(t *testing.T) {
	fences := []types.Fence{{Label: "DIFF a.txt", Content: "[70] a\n+ x\n- [71] b"}}
	files := fstest.MapFS{"a.txt": {Data: []byte("a\nb")}}

	res, err := Compute(context.Background(), Input{Fences: fences}, Options{Files: files})
	require.NoError(t, err)
	fe := res.FileEdits["a.txt"]
	require.NotNil(t, fe.Validation)
	assert.NotEmpty(t, fe.Validation.ApplyError)
	assert.Nil(t, fe.After)
	assert.Empty(t, res.Edits)
}

func TestComputeRejectsEscapingPaths(t *testing.T) {
	fences := []types.Fence{{Label: "FILE ../outside.txt", Content: "x"}}
	res, err := Compute(context.Background(), Input{Fences: fences}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.FileEdits)
}

func TestComputeChangelog(t *testing.T) {
	log := "ChangeLog:1@a.py\nDescription: return one.\nOriginalCode@3-3:\n[3] def f(): pass\nChangedCode@3-3:\n[3] def f(): return 1\n"
	fences := []types.Fence{{Label: "changelog", Language: "changelog", Content: log}}
	files := fstest.MapFS{"a.py": {Data: []byte(pySource)}}

	res, err := Compute(context.Background(), Input{Fences: fences}, Options{Files: files})
	require.NoError(t, err)
	require.Len(t, res.Changelogs, 1)
	require.Contains(t, res.FileEdits, "a.py")
	assert.Contains(t, *res.FileEdits["a.py"].After, "def f(): return 1")
}

func TestComputeMerge(t *testing.T) {
	merge := func(_ context.Context, filename, _ string, before *string, generated string) (string, error) {
		if before == nil {
			return generated, nil
		}
		return *before + generated, nil
	}
	failing := func(context.Context, string, string, *string, string) (string, error) {
		return "", errors.New("merge failed")
	}
	fences := []types.Fence{{Label: "FILE log.txt", Content: "b\n"}}
	files := fstest.MapFS{"log.txt": {Data: []byte("a\n")}}

	res, err := Compute(context.Background(), Input{Fences: fences}, Options{Files: files, Merges: []MergeFunc{merge, failing}})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", *res.FileEdits["log.txt"].After)
}

func TestComputeProcessors(t *testing.T) {
	replaced := "rewritten"
	proc := func(_ context.Context, in ProcessorInput) (*ProcessorOutput, error) {
		assert.Equal(t, "original", in.Text)
		return &ProcessorOutput{
			Text:        &replaced,
			Files:       map[string]string{"gen.txt": "generated"},
			Annotations: []types.Diagnostic{{Severity: "info", Message: "replaced"}},
		}, nil
	}
	res, err := Compute(context.Background(), Input{
		Text:        "original",
		Annotations: []types.Diagnostic{{Severity: "error", Message: "dropped"}},
	}, Options{Processors: []OutputProcessor{proc}})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", res.Text)
	require.Len(t, res.Annotations, 1)
	assert.Equal(t, "replaced", res.Annotations[0].Message)
	require.Contains(t, res.FileEdits, "gen.txt")
	assert.True(t, res.FileEdits["gen.txt"].Validation.Valid())
}

func TestComputeFileOutputs(t *testing.T) {
	schemas := map[string]types.JSONSchema{
		"CITY": {
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
			"required":   []any{"name"},
		},
	}
	fences := []types.Fence{
		{Label: "FILE good.json", Content: `{"name":"Paris"}`},
		{Label: "FILE bad.yaml", Content: "population: 3\n"},
		{Label: "FILE other.json", Content: `{}`},
		{Label: "FILE readme.md", Content: "# hi"},
	}
	outputs := []FileOutput{
		{Pattern: "good.json", SchemaID: "CITY"},
		{Pattern: "*.yaml", SchemaID: "CITY"},
		{Pattern: "other.json", SchemaID: "MISSING"},
		{Pattern: "**/*.json", SchemaID: "CITY"},
		{Pattern: "*.md"},
	}

	res, err := Compute(context.Background(), Input{Fences: fences}, Options{FileOutputs: outputs, Schemas: schemas})
	require.NoError(t, err)

	assert.True(t, res.FileEdits["good.json"].Validation.Valid())
	assert.Equal(t, "CITY", res.FileEdits["good.json"].Validation.SchemaID)
	assert.NotEmpty(t, res.FileEdits["bad.yaml"].Validation.SchemaError)
	assert.Equal(t, "schema MISSING not found", res.FileEdits["other.json"].Validation.SchemaError)
	assert.True(t, res.FileEdits["readme.md"].Validation.Valid())

	for _, e := range res.Edits {
		if e.Filename == "bad.yaml" {
			assert.False(t, e.Validated.Valid())
		}
	}
}

func TestComputeToolEdits(t *testing.T) {
	files := fstest.MapFS{"a.txt": {Data: []byte("old")}}
	toolEdits := []types.Edit{
		{Type: types.EditReplace, Filename: "a.txt", Text: "new"},
		{Type: types.EditCreateFile, Filename: "a.txt", Text: "clobber"},
		{Type: types.EditInsert, Filename: "b.txt", Text: "line"},
	}
	res, err := Compute(context.Background(), Input{}, Options{Files: files, ToolEdits: toolEdits})
	require.NoError(t, err)
	assert.Equal(t, "new", *res.FileEdits["a.txt"].After)
	require.Len(t, res.Edits, 2)
	assert.Equal(t, types.EditInsert, res.Edits[0].Type)
	assert.Equal(t, "Update a.txt", res.Edits[1].Label)
}

func TestComputeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, Input{Fences: []types.Fence{{Label: "FILE a", Content: "x"}}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
