package changelog

import (
	"fmt"
	"strings"
)

// Apply replaces each original range with its changed lines, in order. Ranges
// of later changes are read in the coordinates of the untouched file and
// shifted by how much earlier changes grew or shrank it. cl is not modified.
func Apply(source string, cl ChangeLog) (string, error) {
	lines := strings.Split(source, "\n")
	shift := 0

	for i, change := range cl.Changes {
		start := change.Original.Start + shift
		count := change.Original.End - change.Original.Start + 1
		if start < 1 || start-1 > len(lines) || count < 0 {
			return "", fmt.Errorf("%w: change %d spans %d-%d in %d lines",
				ErrRange, i+1, start, start+count-1, len(lines))
		}
		count = min(count, len(lines)-(start-1))

		replacement := make([]string, len(change.Changed.Lines))
		for j, l := range change.Changed.Lines {
			replacement[j] = l.Content
		}
		tail := append([]string{}, lines[start-1+count:]...)
		lines = append(append(lines[:start-1], replacement...), tail...)

		shift += len(change.Changed.Lines) - len(change.Original.Lines)
	}
	return strings.Join(lines, "\n"), nil
}
