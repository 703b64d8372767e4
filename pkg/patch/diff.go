package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/llmdiff"
)

var ErrNoChanges = errors.New("no changes detected")

// GenerateDiff creates a unified diff between old and new content
func (e *engine) GenerateDiff(ctx context.Context, filePath, oldContent, newContent string) (string, error) {
	if isBinary(oldContent) || isBinary(newContent) {
		return "", fmt.Errorf("binary files are not supported")
	}

	lines := e.cfg.MaxContextLines
	if lines == 0 {
		lines = 3
	}
	diff := llmdiff.Unified("a/"+filePath, "b/"+filePath, oldContent, newContent, lines)
	if diff == "" {
		return "", ErrNoChanges
	}
	return diff, nil
}

// isBinary checks if content contains binary data
// Simple heuristic: check for null bytes in first 8KB
func isBinary(content string) bool {
	checkLen := min(len(content), 8192)
	return strings.IndexByte(content[:checkLen], 0) >= 0
}

// countChanges analyzes a diff and returns lines added/removed
func countChanges(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			added++
		} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			removed++
		}
	}
	return
}
