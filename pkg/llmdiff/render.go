package llmdiff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineOp is one line of a line-level diff. oldNo and newNo are the 1-based
// positions in the old and new file; for inserts oldNo is the next old line,
// for deletes newNo is the next new line.
type lineOp struct {
	kind  diffmatchpatch.Operation
	text  string
	oldNo int
	newNo int
}

func diffLines(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var ops []lineOp
	oldNo, newNo := 1, 1
	for _, d := range diffs {
		for _, l := range splitLines(d.Text) {
			op := lineOp{kind: d.Type, text: l, oldNo: oldNo, newNo: newNo}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldNo++
				newNo++
			case diffmatchpatch.DiffDelete:
				oldNo++
			case diffmatchpatch.DiffInsert:
				newNo++
			}
			ops = append(ops, op)
		}
	}
	return ops
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

type span struct{ lo, hi int }

// hunks groups changed ops with up to context unchanged lines on each side.
func hunks(ops []lineOp, context int) []span {
	var out []span
	for i, op := range ops {
		if op.kind == diffmatchpatch.DiffEqual {
			continue
		}
		lo, hi := max(0, i-context), min(len(ops), i+context+1)
		if n := len(out); n > 0 && lo <= out[n-1].hi {
			out[n-1].hi = max(out[n-1].hi, hi)
			continue
		}
		out = append(out, span{lo, hi})
	}
	return out
}

// Render writes the diff notation that turns before into after, keeping at
// least one unchanged line around each change so insertions stay anchored.
// It returns "" when the contents are equal.
func Render(before, after string, context int) string {
	context = max(context, 1)
	ops := diffLines(before, after)

	var sb strings.Builder
	for _, h := range hunks(ops, context) {
		for _, op := range ops[h.lo:h.hi] {
			switch op.kind {
			case diffmatchpatch.DiffEqual:
				fmt.Fprintf(&sb, "[%d] %s\n", op.oldNo, op.text)
			case diffmatchpatch.DiffDelete:
				fmt.Fprintf(&sb, "- [%d] %s\n", op.oldNo, op.text)
			case diffmatchpatch.DiffInsert:
				fmt.Fprintf(&sb, "+ %s\n", op.text)
			}
		}
	}
	return sb.String()
}

// Unified renders a git-style unified diff between before and after.
func Unified(from, to, before, after string, context int) string {
	ops := diffLines(before, after)
	hs := hunks(ops, context)
	if len(hs) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", from, to)
	for _, h := range hs {
		part := ops[h.lo:h.hi]
		oldCount, newCount := 0, 0
		for _, op := range part {
			if op.kind != diffmatchpatch.DiffInsert {
				oldCount++
			}
			if op.kind != diffmatchpatch.DiffDelete {
				newCount++
			}
		}
		oldStart, newStart := part[0].oldNo, part[0].newNo
		if oldCount == 0 {
			oldStart--
		}
		if newCount == 0 {
			newStart--
		}
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		for _, op := range part {
			switch op.kind {
			case diffmatchpatch.DiffEqual:
				sb.WriteString(" ")
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-")
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+")
			}
			sb.WriteString(op.text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

var hunkHeaderRx = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Llmify prefixes the context and added lines of a unified diff with their
// line number in the new file, the form models are asked to read. It returns
// "" when the text contains no hunk.
func Llmify(diff string) string {
	if diff == "" {
		return ""
	}

	var sb strings.Builder
	found := false
	oldLeft, newLeft, line := 0, 0, 0
	for _, l := range splitLines(diff) {
		if oldLeft > 0 || newLeft > 0 {
			switch {
			case strings.HasPrefix(l, "-"):
				oldLeft--
				sb.WriteString(l)
			case strings.HasPrefix(l, "+"):
				newLeft--
				fmt.Fprintf(&sb, "[%d] %s", line, l)
				line++
			case strings.HasPrefix(l, `\`):
				sb.WriteString(l)
			default:
				oldLeft--
				newLeft--
				fmt.Fprintf(&sb, "[%d] %s", line, l)
				line++
			}
			sb.WriteString("\n")
			continue
		}

		if m := hunkHeaderRx.FindStringSubmatch(l); m != nil {
			found = true
			oldLeft = countOrOne(m[2])
			newLeft = countOrOne(m[4])
			line, _ = strconv.Atoi(m[3])
		}
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	if !found {
		return ""
	}
	return sb.String()
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}
