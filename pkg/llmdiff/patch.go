package llmdiff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingLineNumber is returned when a chunk line has no usable number.
	ErrMissingLineNumber = errors.New("diff: missing or invalid line number")
	// ErrInvalidLineNumber matches every *LineError.
	ErrInvalidLineNumber = errors.New("diff: invalid line number")
	// ErrUnexpectedChunk is returned when the chunk sequence is malformed.
	ErrUnexpectedChunk = errors.New("diff: unexpected chunk")
)

// LineError reports a line number outside of the file.
type LineError struct {
	Line  int // 1-based number from the diff
	Lines int // number of lines in the file
}

func (e *LineError) Error() string {
	return fmt.Sprintf("diff: invalid line number %d in %d", e.Line, e.Lines)
}

func (e *LineError) Is(target error) bool { return target == ErrInvalidLineNumber }

type patchLine struct {
	text    string
	removed bool
}

// ApplyPatch applies chunks by trusting their line numbers exactly.
// Deleted lines are marked in place, then added chunks are inserted after the
// last line of the closest preceding existing chunk, last chunk first, so
// earlier insertion points stay valid.
func ApplyPatch(source string, chunks []Chunk) (string, error) {
	if len(chunks) == 0 || source == "" {
		return source, nil
	}

	src := strings.Split(source, "\n")
	lines := make([]patchLine, len(src))
	for i, l := range src {
		lines[i] = patchLine{text: l}
	}

	for _, chunk := range chunks {
		if chunk.State == Added {
			continue
		}
		for li := range chunk.Lines {
			n := lineNumber(chunk, li)
			if n <= 0 {
				return "", ErrMissingLineNumber
			}
			if n > len(lines) {
				return "", &LineError{Line: n, Lines: len(lines)}
			}
			if chunk.State == Deleted {
				lines[n-1].removed = true
			}
		}
	}

	for ci := len(chunks) - 1; ci >= 0; ci-- {
		chunk := chunks[ci]
		if chunk.State != Added {
			continue
		}
		prev := ci - 1
		for prev >= 0 && chunks[prev].State != Existing {
			prev--
		}
		if prev < 0 {
			return "", fmt.Errorf("%w: added chunk %d has no preceding existing chunk", ErrUnexpectedChunk, ci)
		}
		at := 0
		if nums := chunks[prev].LineNumbers; len(nums) > 0 {
			at = nums[len(nums)-1]
		}
		if at > len(lines) {
			return "", &LineError{Line: at, Lines: len(lines)}
		}
		inserted := make([]patchLine, len(chunk.Lines))
		for i, l := range chunk.Lines {
			inserted[i] = patchLine{text: l}
		}
		lines = append(lines[:at], append(inserted, lines[at:]...)...)
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !l.removed {
			out = append(out, l.text)
		}
	}
	return strings.Join(out, "\n"), nil
}

func lineNumber(c Chunk, i int) int {
	if i >= len(c.LineNumbers) {
		return 0
	}
	return c.LineNumbers[i]
}
