package tool

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Output is the closed set of values a Handler may return.
type Output interface {
	isOutput()
}

// Text is returned verbatim.
type Text string

// ShellResult is the outcome of a process run. Edits lists files the
// process is known to have produced.
type ShellResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Edits    []types.Edit
}

// FileResult is the content of one file.
type FileResult struct {
	Filename string
	Content  string
	Edits    []types.Edit
}

// PromptResult is text produced by a nested generation, optionally with
// file edits it proposes.
type PromptResult struct {
	Text  string
	Edits []types.Edit
}

// Structured is any other value; it is rendered as YAML. Edits are not
// part of the rendering.
type Structured struct {
	Value any
	Edits []types.Edit
}

func (Text) isOutput()         {}
func (ShellResult) isOutput()  {}
func (FileResult) isOutput()   {}
func (PromptResult) isOutput() {}
func (Structured) isOutput()   {}

// EditsOf returns the file edits attached to an output, if any.
func EditsOf(o Output) []types.Edit {
	switch v := o.(type) {
	case ShellResult:
		return v.Edits
	case FileResult:
		return v.Edits
	case PromptResult:
		return v.Edits
	case Structured:
		return v.Edits
	default:
		return nil
	}
}

// Render turns an output into the text sent back to the model.
func Render(o Output) string {
	switch v := o.(type) {
	case nil:
		return ""
	case Text:
		return string(v)
	case ShellResult:
		return renderShell(v)
	case FileResult:
		return "FILENAME: " + v.Filename + "\n" + Fenced(v.Content, "")
	case PromptResult:
		return v.Text
	case Structured:
		return renderStructured(v.Value)
	default:
		return fmt.Sprint(v)
	}
}

func renderShell(r ShellResult) string {
	if r.ExitCode == 0 {
		return r.Stdout
	}
	parts := []string{"EXIT_CODE: " + strconv.Itoa(r.ExitCode)}
	if r.Stdout != "" {
		parts = append(parts, "STDOUT:\n"+Fenced(r.Stdout, "text"))
	}
	if r.Stderr != "" {
		parts = append(parts, "STDERR:\n"+Fenced(r.Stderr, "text"))
	}
	return strings.Join(parts, "\n\n")
}

func renderStructured(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool, int, int64, float64:
		return fmt.Sprint(s)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Fenced wraps content in a markdown fence long enough not to collide with
// backticks inside it.
func Fenced(content, language string) string {
	marker := "```"
	for strings.Contains(content, marker) {
		marker += "`"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return marker + language + "\n" + content + marker
}
