// Package fileedit turns the fenced blocks of a finished answer into a
// per-file before/after record and a flat list of edits.
package fileedit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gm-agent-org/gm-genai/pkg/changelog"
	"github.com/gm-agent-org/gm-genai/pkg/fence"
	"github.com/gm-agent-org/gm-genai/pkg/llmdiff"
	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var ErrSchemaNotFound = errors.New("not found")

// FileOutput declares files the answer is expected to produce. Pattern is a
// doublestar glob over workspace-relative paths.
type FileOutput struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	SchemaID    string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// MergeFunc combines a generated file body with the current content. before
// is nil for a new file.
type MergeFunc func(ctx context.Context, filename, label string, before *string, generated string) (string, error)

// ProcessorInput is what an OutputProcessor sees.
type ProcessorInput struct {
	Text        string
	FileEdits   map[string]*types.FileEdit
	Fences      []types.Fence
	Frames      []fence.Frame
	Vars        map[string]string
	Annotations []types.Diagnostic
	Schemas     map[string]types.JSONSchema
}

// ProcessorOutput holds an OutputProcessor's replacements. Nil fields leave
// the corresponding value unchanged.
type ProcessorOutput struct {
	Text        *string
	Files       map[string]string
	Annotations []types.Diagnostic
}

// OutputProcessor rewrites the answer before edits are derived.
type OutputProcessor func(ctx context.Context, in ProcessorInput) (*ProcessorOutput, error)

// Options configure Compute.
type Options struct {
	// Files reads current contents, keyed by workspace-relative slash path.
	Files fs.FS
	// Validator rejects targets outside the workspace. Optional.
	Validator   *security.PathValidator
	FileOutputs []FileOutput
	Schemas     map[string]types.JSONSchema
	Merges      []MergeFunc
	Processors  []OutputProcessor
	// ToolEdits are edits proposed by tools during the session.
	ToolEdits []types.Edit
	Logger    *slog.Logger
}

// Input is the finished answer.
type Input struct {
	Text        string
	Fences      []types.Fence
	Frames      []fence.Frame
	Vars        map[string]string
	Annotations []types.Diagnostic
}

// Result is the materialized answer.
type Result struct {
	Text        string
	Annotations []types.Diagnostic
	FileEdits   map[string]*types.FileEdit
	Edits       []types.Edit
	Changelogs  []string
}

var (
	fileLabelRx     = regexp.MustCompile(`(?i)^((file|diff):?)\s+`)
	changelogNameRx = regexp.MustCompile(`(?i)^changelog$`)
	changelogLangRx = regexp.MustCompile(`(?i)^changelog`)
	dataFileRx      = regexp.MustCompile(`(?i)\.(json|ya?ml)$`)
)

type computer struct {
	opts  Options
	log   *slog.Logger
	edits map[string]*types.FileEdit
}

// Compute applies every valid file, diff and changelog fence in order, runs
// the output processors, validates declared file outputs and derives the
// edit list. Block-level failures are logged and recorded on the file's
// validation; they never fail the call.
func Compute(ctx context.Context, in Input, opts Options) (*Result, error) {
	c := &computer{opts: opts, log: opts.Logger, edits: make(map[string]*types.FileEdit)}
	if c.log == nil {
		c.log = slog.Default()
	}

	res := &Result{
		Text:        in.Text,
		Annotations: append([]types.Diagnostic(nil), in.Annotations...),
	}

	for _, f := range in.Fences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !f.Validation.Valid() {
			continue
		}
		switch {
		case fileLabelRx.MatchString(f.Label):
			c.applyFileFence(ctx, f)
		case changelogNameRx.MatchString(f.Label) || changelogLangRx.MatchString(f.Language):
			res.Changelogs = append(res.Changelogs, f.Content)
			c.applyChangelog(f.Content)
		}
	}

	c.applyToolEdits(res)

	if len(opts.Processors) > 0 {
		if err := c.process(ctx, in, res); err != nil {
			c.log.Error("output processor failed", "error", err)
		}
	}

	c.validateFileOutputs()
	res.FileEdits = c.edits
	res.Edits = append(res.Edits, edits(c.edits)...)
	return res, nil
}

// fileEdit returns the record for name, creating it from disk on first use.
func (c *computer) fileEdit(name string) (*types.FileEdit, string, error) {
	rel, err := c.normalize(name)
	if err != nil {
		return nil, "", err
	}
	if fe, ok := c.edits[rel]; ok {
		return fe, rel, nil
	}

	fe := &types.FileEdit{Filename: rel}
	if c.opts.Files != nil {
		data, err := fs.ReadFile(c.opts.Files, rel)
		switch {
		case err == nil:
			before := string(data)
			fe.Before = &before
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, "", fmt.Errorf("read %s: %w", rel, err)
		}
	}
	c.edits[rel] = fe
	return fe, rel, nil
}

func (c *computer) normalize(name string) (string, error) {
	name = strings.TrimSpace(unquote(name))
	if name == "" {
		return "", fmt.Errorf("empty filename")
	}
	if c.opts.Validator != nil {
		return c.opts.Validator.Rel(name)
	}
	rel := path.Clean(filepath.ToSlash(name))
	if !fs.ValidPath(rel) {
		return "", fmt.Errorf("%w: %s", security.ErrPathTraversal, name)
	}
	return rel, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// current is the content later blocks build on.
func current(fe *types.FileEdit) string {
	switch {
	case fe.After != nil:
		return *fe.After
	case fe.Before != nil:
		return *fe.Before
	default:
		return ""
	}
}

func (c *computer) applyFileFence(ctx context.Context, f types.Fence) {
	m := fileLabelRx.FindStringSubmatch(f.Label)
	kind := strings.ToLower(m[2])
	name := f.Label[len(m[0]):]

	fe, rel, err := c.fileEdit(name)
	if err != nil {
		c.log.Warn("skipping block with invalid target", "label", f.Label, "error", err)
		return
	}

	switch kind {
	case "file":
		after := f.Content
		for _, merge := range c.opts.Merges {
			var base *string
			if fe.After != nil {
				base = fe.After
			} else {
				base = fe.Before
			}
			merged, err := merge(ctx, rel, f.Label, base, f.Content)
			if err != nil {
				c.log.Error("error custom merging file", "file", rel, "error", err)
				break
			}
			after = merged
		}
		fe.After = &after
	case "diff":
		out, by, err := llmdiff.Apply(current(fe), f.Content)
		if err != nil {
			c.log.Error("error applying diff", "file", rel, "error", err)
			setApplyError(fe, err)
			return
		}
		c.log.Debug("diff applied", "file", rel, "reconciler", by)
		fe.After = &out
	}
}

func (c *computer) applyChangelog(content string) {
	cls, err := changelog.Parse(content)
	if err != nil {
		c.log.Error("error parsing changelog", "error", err)
		return
	}
	for _, cl := range cls {
		fe, rel, err := c.fileEdit(cl.Filename)
		if err != nil {
			c.log.Warn("skipping changelog with invalid target", "file", cl.Filename, "error", err)
			continue
		}
		out, err := changelog.Apply(current(fe), cl)
		if err != nil {
			c.log.Error("error applying changelog", "file", rel, "index", cl.Index, "error", err)
			setApplyError(fe, err)
			continue
		}
		fe.After = &out
	}
}

func setApplyError(fe *types.FileEdit, err error) {
	if fe.Validation == nil {
		fe.Validation = &types.Validation{}
	}
	fe.Validation.ApplyError = err.Error()
}

// applyToolEdits folds whole-file tool edits into the file records. Other
// edit kinds are passed through to the result.
func (c *computer) applyToolEdits(res *Result) {
	for _, e := range c.opts.ToolEdits {
		if e.Type != types.EditReplace && e.Type != types.EditCreateFile {
			res.Edits = append(res.Edits, e)
			continue
		}
		fe, _, err := c.fileEdit(e.Filename)
		if err != nil {
			c.log.Warn("skipping tool edit with invalid target", "file", e.Filename, "error", err)
			continue
		}
		if e.Type == types.EditCreateFile && fe.Before != nil && !e.Overwrite {
			c.log.Warn("tool edit would overwrite existing file", "file", e.Filename)
			continue
		}
		text := e.Text
		fe.After = &text
	}
}

func (c *computer) process(ctx context.Context, in Input, res *Result) error {
	for _, p := range c.opts.Processors {
		out, err := p(ctx, ProcessorInput{
			Text:        res.Text,
			FileEdits:   c.edits,
			Fences:      in.Fences,
			Frames:      in.Frames,
			Vars:        in.Vars,
			Annotations: res.Annotations,
			Schemas:     c.opts.Schemas,
		})
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		if out.Text != nil {
			res.Text = *out.Text
		}
		for name, content := range out.Files {
			fe, _, err := c.fileEdit(name)
			if err != nil {
				return err
			}
			content := content
			fe.After = &content
			fe.Validation = &types.Validation{}
		}
		if out.Annotations != nil {
			res.Annotations = append([]types.Diagnostic(nil), out.Annotations...)
		}
	}
	return nil
}

// validateFileOutputs checks each edited file against the first file output
// whose pattern matches it.
func (c *computer) validateFileOutputs() {
	if len(c.opts.FileOutputs) == 0 {
		return
	}
	for _, name := range sortedNames(c.edits) {
		fe := c.edits[name]
		if fe.After == nil {
			continue
		}
		for _, fo := range c.opts.FileOutputs {
			if ok, _ := doublestar.Match(fo.Pattern, name); !ok {
				continue
			}
			v := c.validateOutput(name, *fe.After, fo)
			if fe.Validation != nil {
				v.ApplyError = fe.Validation.ApplyError
			}
			fe.Validation = v
			if fe.Validation.SchemaError != "" {
				c.log.Warn("file output failed validation", "file", name, "pattern", fo.Pattern, "error", fe.Validation.SchemaError)
			}
			break
		}
	}
}

func (c *computer) validateOutput(name, content string, fo FileOutput) *types.Validation {
	v := &types.Validation{SchemaID: fo.SchemaID}
	if !dataFileRx.MatchString(name) {
		return v
	}

	language := "json"
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		language = "yaml"
	}
	data, err := fence.ParseData(language, content)
	if err != nil {
		v.SchemaError = err.Error()
		return v
	}
	if fo.SchemaID == "" {
		return v
	}
	schema, ok := c.opts.Schemas[fo.SchemaID]
	if !ok {
		v.SchemaError = fmt.Errorf("schema %s %w", fo.SchemaID, ErrSchemaNotFound).Error()
		return v
	}
	if err := fence.ValidateJSON(data, schema); err != nil {
		v.SchemaError = err.Error()
	}
	return v
}

func sortedNames(m map[string]*types.FileEdit) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// edits flattens changed file records into replace and createfile edits.
func edits(fileEdits map[string]*types.FileEdit) []types.Edit {
	var out []types.Edit
	for _, name := range sortedNames(fileEdits) {
		fe := fileEdits[name]
		if !fe.Changed() {
			continue
		}
		if fe.Before != nil {
			out = append(out, types.Edit{
				Type:      types.EditReplace,
				Filename:  name,
				Label:     "Update " + name,
				Text:      *fe.After,
				Validated: fe.Validation,
			})
			continue
		}
		out = append(out, types.Edit{
			Type:      types.EditCreateFile,
			Filename:  name,
			Label:     "Create " + name,
			Text:      *fe.After,
			Overwrite: true,
			Validated: fe.Validation,
		})
	}
	return out
}
