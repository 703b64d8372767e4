package llmdiff

import (
	"fmt"
	"strings"
)

// minChunkSize is how many leading lines of a chunk must match to anchor it.
const minChunkSize = 4

// ApplyDiff applies chunks by locating them in the source by content. Line
// numbers are ignored. When an anchor cannot be found the walk stops and the
// edits applied so far are kept.
//
// The expected sequence is existing, optionally deleted, optionally added,
// then the next existing chunk or the end of the file.
func ApplyDiff(source string, chunks []Chunk) (string, error) {
	if len(chunks) == 0 || source == "" {
		return source, nil
	}

	body, eol := strings.CutSuffix(source, "\n")
	lines := strings.Split(body, "\n")
	current := 0
	i := 0
	for i+1 < len(chunks) {
		chunk := chunks[i]
		i++
		if chunk.State != Existing {
			return "", fmt.Errorf("%w: expecting existing chunk at %d, got %s", ErrUnexpectedChunk, i-1, chunk.State)
		}

		start := findChunk(lines, chunk, current)
		if start < 0 {
			break
		}
		current = start + len(chunk.Lines)

		if chunks[i].State == Deleted {
			deleted := chunks[i]
			i++
			if at := findChunk(lines, deleted, current); at == current && current+len(deleted.Lines) <= len(lines) {
				lines = append(lines[:current], lines[current+len(deleted.Lines):]...)
			}
			if i >= len(chunks) {
				break
			}
			if chunks[i].State == Existing {
				continue
			}
		}

		added := chunks[i]
		i++
		if added.State != Added {
			return "", fmt.Errorf("%w: expecting added chunk at %d, got %s", ErrUnexpectedChunk, i-1, added.State)
		}

		end := len(lines)
		if i < len(chunks) {
			next := chunks[i]
			if next.State != Existing {
				return "", fmt.Errorf("%w: expecting existing chunk at %d, got %s", ErrUnexpectedChunk, i, next.State)
			}
			end = findChunk(lines, next, current)
		}
		if end < 0 {
			break
		}

		tail := append([]string{}, lines[end:]...)
		lines = append(append(lines[:current], added.Lines...), tail...)
		current += len(added.Lines)
	}

	out := strings.Join(lines, "\n")
	if eol {
		out += "\n"
	}
	return out, nil
}

// findChunk returns the index at or after start where the chunk's leading
// lines match, comparing trimmed text, or -1.
func findChunk(lines []string, chunk Chunk, start int) int {
	if len(chunk.Lines) == 0 {
		return start
	}
	n := min(minChunkSize, len(chunk.Lines))
	first := strings.TrimSpace(chunk.Lines[0])
	for at := start; at+n <= len(lines); at++ {
		if strings.TrimSpace(lines[at]) != first {
			continue
		}
		found := true
		for k := 1; k < n; k++ {
			if strings.TrimSpace(lines[at+k]) != strings.TrimSpace(chunk.Lines[k]) {
				found = false
				break
			}
		}
		if found {
			return at
		}
	}
	return -1
}
