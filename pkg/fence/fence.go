// Package fence extracts labelled, backtick-delimited blocks from generated
// text and validates the data blocks among them.
package fence

import (
	"regexp"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var (
	argRx         = regexp.MustCompile(`([\w-]+)=("[^"]*"|'[^']*'|\S+)`)
	labelValueRx  = regexp.MustCompile(`(\w+):\s+(\S+)`)
	lineBreakRx   = regexp.MustCompile(`\r?\n`)
	innerFencedRx = regexp.MustCompile("(?s)^\\s*`{3,}\\w*\\r?\\n(.*)\\r?\\n`{3,}\\s*$")
)

type opening struct {
	marker   string
	language string
	args     map[string]string
}

// openFence parses a line such as "```yaml schema=CITY file=out.yaml".
func openFence(line string) (opening, bool) {
	n := 0
	for n < len(line) && line[n] == '`' {
		n++
	}
	if n < 3 {
		return opening{}, false
	}
	o := opening{marker: line[:n], args: map[string]string{}}
	rest := strings.TrimSpace(line[n:])
	if first, _, _ := strings.Cut(rest, " "); first != "" && !strings.Contains(first, "=") {
		o.language = first
		rest = strings.TrimPrefix(rest, first)
	}
	for _, m := range argRx.FindAllStringSubmatch(rest, -1) {
		o.args[m[1]] = unquote(m[2])
	}
	return o, true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Extract returns the fenced blocks of text in order. A block is labelled by
// a file= argument on its opening line, by a preceding "Label:" line, or by a
// preceding "key: value" line; otherwise its label is empty. A block whose
// closing fence never arrives is returned with the content read so far.
func Extract(text string) []types.Fence {
	if text == "" {
		return nil
	}

	var (
		out     []types.Fence
		current *types.Fence
		marker  string
		body    strings.Builder
	)
	flush := func() {
		current.Content = normalize(current, body.String())
		out = append(out, *current)
		current = nil
	}

	lines := lineBreakRx.Split(text, -1)
	for i, line := range lines {
		if current != nil {
			if strings.TrimRight(line, " \t") == marker {
				flush()
				continue
			}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		o, ok := openFence(line)
		if !ok {
			continue
		}
		var prev string
		if i > 0 {
			prev = lines[i-1]
		}
		current = &types.Fence{Label: label(prev, o), Language: o.language, Args: o.args}
		marker = o.marker
		body.Reset()
	}
	if current != nil && body.Len() > 0 {
		flush()
	}
	return out
}

func label(prev string, o opening) string {
	if file := o.args["file"]; file != "" {
		return "FILE " + file
	}
	if strings.HasSuffix(prev, ":") {
		return undoublequote(strings.TrimSuffix(prev, ":"))
	}
	if m := labelValueRx.FindStringSubmatch(prev); m != nil {
		return undoublequote(m[1]) + " " + undoublequote(m[2])
	}
	return ""
}

// normalize unwraps a file block whose body is itself a single fenced block.
func normalize(f *types.Fence, content string) string {
	if f.Args["file"] == "" {
		return content
	}
	if m := innerFencedRx.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

func undoublequote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Unfence returns the body of text when all of it is one fenced block in one
// of the given languages, or in any language when none are given. Otherwise
// text is returned unchanged.
func Unfence(text string, languages ...string) string {
	trimmed := strings.TrimSpace(text)
	lines := lineBreakRx.Split(trimmed, -1)
	if len(lines) < 2 {
		return text
	}
	o, ok := openFence(lines[0])
	if !ok || strings.TrimSpace(lines[len(lines)-1]) != o.marker {
		return text
	}
	if len(languages) > 0 && !matchLanguage(o.language, languages) {
		return text
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

func matchLanguage(language string, languages []string) bool {
	for _, l := range languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// IsData reports whether the fence holds JSON or YAML.
func IsData(f types.Fence) bool {
	switch strings.ToLower(f.Language) {
	case "json", "json5", "jsonc", "yaml", "yml":
		return true
	}
	return false
}
