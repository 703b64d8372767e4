package llmdiff

import (
	"errors"
	"fmt"
)

// Reconciler names the algorithm that produced a result.
type Reconciler string

const (
	ByLineNumber Reconciler = "patch"
	ByContent    Reconciler = "diff"
)

// Apply parses text against source and reconciles it, by line number first
// and by content when that fails. Both failures are returned joined.
func Apply(source, text string) (string, Reconciler, error) {
	chunks := ParseAgainst(text, source)

	out, perr := ApplyPatch(source, chunks)
	if perr == nil {
		return out, ByLineNumber, nil
	}

	out, derr := ApplyDiff(source, chunks)
	if derr == nil {
		return out, ByContent, nil
	}

	return "", "", errors.Join(
		fmt.Errorf("patch: %w", perr),
		fmt.Errorf("diff: %w", derr),
	)
}
