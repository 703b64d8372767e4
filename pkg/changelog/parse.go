// Package changelog reads and applies the block-oriented ChangeLog notation:
//
//	ChangeLog:1@src/main.go
//	Description: rename helper.
//	OriginalCode@4-5:
//	[4] func helper() {
//	[5] }
//	ChangedCode@4-5:
//	[4] func assist() {
//	[5] }
package changelog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrMissingHeader      = errors.New("changelog: missing ChangeLog header")
	ErrMissingDescription = errors.New("changelog: missing ChangeLog description")
	ErrMissingChangedCode = errors.New("changelog: missing ChangedCode block")
	ErrRange              = errors.New("changelog: line range outside of file")
)

// Line is one numbered line of a chunk.
type Line struct {
	Index   int
	Content string
}

// Chunk is a 1-based inclusive line range with its literal contents.
type Chunk struct {
	Start int
	End   int
	Lines []Line
}

// Change pairs the original range of a file with its replacement.
type Change struct {
	Original Chunk
	Changed  Chunk
}

// ChangeLog is the set of changes to one file.
type ChangeLog struct {
	Index       int
	Filename    string
	Description string
	Changes     []Change
}

var (
	headerRx      = regexp.MustCompile(`(?i)^ChangeLog:\s*(\d+)@(.*)$`)
	descriptionRx = regexp.MustCompile(`(?i)^Description:(.*)$`)
	originalRx    = regexp.MustCompile(`(?i)^OriginalCode@(\d+)-(\d+):$`)
	changedRx     = regexp.MustCompile(`(?i)^ChangedCode@(\d+)-(\d+):$`)
	lineRx        = regexp.MustCompile(`^\[(\d+)\](.*)$`)
)

type parser struct {
	lines []string
	pos   int
}

// Parse reads every changelog in text. Blank lines and stray fence markers
// between blocks are ignored; any other deviation from the grammar is an
// error.
func Parse(text string) ([]ChangeLog, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	var out []ChangeLog

	for p.more() {
		if p.skippable() {
			p.pos++
			continue
		}

		m := headerRx.FindStringSubmatch(p.peek())
		if m == nil {
			return nil, p.errorf(ErrMissingHeader)
		}
		index, _ := strconv.Atoi(m[1])
		cl := ChangeLog{Index: index, Filename: strings.TrimSpace(m[2])}
		p.pos++

		m = descriptionRx.FindStringSubmatch(p.peek())
		if m == nil {
			return nil, p.errorf(ErrMissingDescription)
		}
		cl.Description = strings.TrimSpace(m[1])
		p.pos++

		for p.more() {
			if p.skippable() {
				p.pos++
				continue
			}
			change, ok, err := p.change()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			cl.Changes = append(cl.Changes, change)
		}
		out = append(out, cl)
	}
	return out, nil
}

func (p *parser) more() bool { return p.pos < len(p.lines) }

func (p *parser) peek() string {
	if !p.more() {
		return ""
	}
	return p.lines[p.pos]
}

func (p *parser) skippable() bool {
	l := strings.TrimSpace(p.peek())
	return l == "" || strings.HasPrefix(l, "```")
}

func (p *parser) errorf(err error) error {
	return fmt.Errorf("%w at line %d: %q", err, p.pos+1, p.peek())
}

func (p *parser) change() (Change, bool, error) {
	m := originalRx.FindStringSubmatch(p.peek())
	if m == nil {
		return Change{}, false, nil
	}
	p.pos++
	original := p.chunk(m)

	m = changedRx.FindStringSubmatch(p.peek())
	if m == nil {
		return Change{}, false, p.errorf(ErrMissingChangedCode)
	}
	p.pos++
	changed := p.chunk(m)

	return Change{Original: original, Changed: changed}, true, nil
}

func (p *parser) chunk(m []string) Chunk {
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	c := Chunk{Start: start, End: end}
	for p.more() {
		lm := lineRx.FindStringSubmatch(p.peek())
		if lm == nil {
			break
		}
		index, _ := strconv.Atoi(lm[1])
		c.Lines = append(c.Lines, Line{Index: index, Content: strings.TrimPrefix(lm[2], " ")})
		p.pos++
	}
	return c
}
