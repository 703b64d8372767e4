package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var errEnough = errors.New("enough matches")

const (
	defaultGlobResults = 100
	defaultGrepResults = 50
)

// GlobTool searches for files matching a pattern
var GlobTool = types.Tool{
	Name:        "glob",
	Description: "Search for workspace files matching a glob pattern (e.g., '**/*.go', 'src/**/*.ts'). Returns the matching paths.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern to match files (e.g., '**/*.go', 'pkg/**/*.json')",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 100)",
				"default":     defaultGlobResults,
			},
		},
		"required": []string{"pattern"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

// GrepTool searches for content within files
var GrepTool = types.Tool{
	Name:        "grep",
	Description: "Search for a regular expression in workspace files. Returns matching lines with file paths and line numbers.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for",
			},
			"file_pattern": map[string]any{
				"type":        "string",
				"description": "Only search files matching this glob pattern (default: '**')",
				"default":     "**",
			},
			"case_sensitive": map[string]any{
				"type":        "boolean",
				"description": "Whether the search is case sensitive (default: false)",
				"default":     false,
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of matches to return (default: 50)",
				"default":     defaultGrepResults,
			},
		},
		"required": []string{"pattern"},
	},
	Metadata: map[string]string{
		"category": tool.CategoryFilesystem,
	},
}

type GlobArgs struct {
	Pattern    string `json:"pattern"`
	MaxResults int    `json:"max_results"`
}

func (w *Workspace) HandleGlob(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args GlobArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if args.MaxResults <= 0 {
		args.MaxResults = defaultGlobResults
	}

	matches, err := w.walk(ctx, args.Pattern, args.MaxResults)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return tool.Text(fmt.Sprintf("No files found matching pattern: %s", args.Pattern)), nil
	}
	return tool.Text(strings.Join(matches, "\n")), nil
}

// walk lists regular files under the workspace root matching pattern.
func (w *Workspace) walk(ctx context.Context, pattern string, limit int) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", pattern)
	}
	var matches []string
	err := doublestar.GlobWalk(os.DirFS(w.Paths.Root()), pattern, func(p string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches = append(matches, p)
		if limit > 0 && len(matches) >= limit {
			return errEnough
		}
		return nil
	}, doublestar.WithFailOnIOErrors())
	if err != nil && !errors.Is(err, errEnough) {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

type GrepArgs struct {
	Pattern       string `json:"pattern"`
	FilePattern   string `json:"file_pattern"`
	CaseSensitive bool   `json:"case_sensitive"`
	MaxResults    int    `json:"max_results"`
}

// GrepMatch is one matching line.
type GrepMatch struct {
	File string `yaml:"file"`
	Line int    `yaml:"line"`
	Text string `yaml:"text"`
}

func (w *Workspace) HandleGrep(ctx context.Context, raw map[string]any) (tool.Output, error) {
	var args GrepArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if args.FilePattern == "" {
		args.FilePattern = "**"
	}
	if args.MaxResults <= 0 {
		args.MaxResults = defaultGrepResults
	}

	expr := args.Pattern
	if !args.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	files, err := w.walk(ctx, args.FilePattern, 0)
	if err != nil {
		return nil, err
	}

	matches := []GrepMatch{}
	for _, name := range files {
		if len(matches) >= args.MaxResults {
			break
		}
		found, err := w.grepFile(name, re, args.MaxResults-len(matches))
		if err != nil {
			continue
		}
		matches = append(matches, found...)
	}
	return tool.Structured{Value: matches}, nil
}

func (w *Workspace) grepFile(name string, re *regexp.Regexp, limit int) ([]GrepMatch, error) {
	abs, err := w.Paths.Resolve(name)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil || (w.Limits.MaxFileSize > 0 && info.Size() > w.Limits.MaxFileSize) {
		return nil, fmt.Errorf("skipping %s", name)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []GrepMatch
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && len(out) < limit; n++ {
		if line := scanner.Text(); re.MatchString(line) {
			out = append(out, GrepMatch{File: name, Line: n, Text: line})
		}
	}
	return out, scanner.Err()
}
