// Package llmdiff parses and applies the line-annotated diff notation that
// language models emit instead of byte-exact patches.
//
// A diff is a sequence of lines of three kinds:
//
//	[12] unchanged line          existing
//	- [13] removed line          deleted
//	+ inserted line              added
//
// Line numbers refer to the original file and are optional; missing numbers
// are inferred from the previous line.
package llmdiff

import (
	"regexp"
	"strconv"
	"strings"
)

// State is the kind of a Chunk.
type State string

const (
	Existing State = "existing"
	Deleted  State = "deleted"
	Added    State = "added"
)

// Chunk is a maximal run of diff lines sharing one state. LineNumbers runs
// parallel to Lines; 0 means the number could not be resolved.
type Chunk struct {
	State       State
	Lines       []string
	LineNumbers []int
}

var (
	changeLineRx   = regexp.MustCompile(`^(\[(\d+)\]\s)?(-|\+)\s(\[(\d+)\]\s)?`)
	existingLineRx = regexp.MustCompile(`^\[(\d+)\]\s`)
)

// Parse turns diff text into chunks without consulting the target file, so
// re-emitted unchanged lines are only removed by the cleanup pass.
func Parse(text string) []Chunk {
	return parse(text, nil)
}

// ParseAgainst parses diff text for the given file content. Added lines that
// are identical to the file's line at their resolved number are dropped.
func ParseAgainst(text, source string) []Chunk {
	return parse(text, strings.Split(source, "\n"))
}

func parse(text string, source []string) []Chunk {
	if text == "" {
		return nil
	}

	chunks := []*Chunk{{State: Existing}}
	chunk := chunks[0]
	push := func(state State, line string, number int) {
		if chunk.State != state {
			chunk = &Chunk{State: state}
			chunks = append(chunks, chunk)
		}
		chunk.Lines = append(chunk.Lines, line)
		chunk.LineNumbers = append(chunk.LineNumbers, number)
	}

	current := 0
	for _, line := range strings.Split(text, "\n") {
		if m := changeLineRx.FindStringSubmatch(line); m != nil {
			content := line[len(m[0]):]
			number := atoi(m[5])
			if number == 0 {
				number = atoi(m[2])
			}
			op := m[3]

			if number == 0 && current > 0 {
				current++
				number = current
				if op == "-" {
					current--
				}
			} else {
				current = number
			}

			if op == "+" {
				if number > 0 && number <= len(source) && source[number-1] == content {
					continue
				}
				push(Added, content, number)
			} else {
				push(Deleted, content, number)
			}
			continue
		}

		number := 0
		content := line
		if m := existingLineRx.FindStringSubmatch(line); m != nil {
			number = atoi(m[1])
			content = line[len(m[0]):]
		}
		if number == 0 && current > 0 {
			current++
			number = current
		} else {
			current = number
		}
		push(Existing, content, number)
	}

	// trailing blank lines of the final existing chunk carry no information
	if chunk.State == Existing {
		for n := len(chunk.Lines); n > 0 && strings.TrimSpace(chunk.Lines[n-1]) == ""; n-- {
			chunk.Lines = chunk.Lines[:n-1]
			chunk.LineNumbers = chunk.LineNumbers[:n-1]
		}
		if len(chunk.Lines) == 0 {
			chunks = chunks[:len(chunks)-1]
		}
	}

	// An anchor line immediately re-emitted as an addition is an echo, not an
	// edit. This can also drop an intentional single-line no-op.
	for i := 0; i < len(chunks)-1; i++ {
		cur, next := chunks[i], chunks[i+1]
		if cur.State == Existing && next.State == Added &&
			len(cur.Lines) == 1 && len(next.Lines) == 1 &&
			cur.Lines[0] == next.Lines[0] {
			chunks = append(chunks[:i], chunks[i+2:]...)
		}
	}

	if len(chunks) > 0 && chunks[0].State != Existing {
		chunks = append([]*Chunk{{State: Existing}}, chunks...)
	}

	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = *c
	}
	return out
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Count returns the number of chunks in each state.
func Count(chunks []Chunk) (existing, deleted, added int) {
	for _, c := range chunks {
		switch c.State {
		case Existing:
			existing++
		case Deleted:
			deleted++
		case Added:
			added++
		}
	}
	return
}
