package llmdiff

import (
	"errors"
	"strings"
	"testing"
)

const pySource = "import re\n\ndef f(): pass\n"
const pyDiff = "[1] import re\n\n- [3] def f(): pass\n+ [3] def f(): return 1\n"
const pyWant = "import re\n\ndef f(): return 1\n"

func TestParse(t *testing.T) {
	chunks := Parse(pyDiff)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	want := []State{Existing, Deleted, Added}
	for i, c := range chunks {
		if c.State != want[i] {
			t.Errorf("chunk %d: state = %s, want %s", i, c.State, want[i])
		}
	}
	if got := chunks[0].LineNumbers; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("existing line numbers = %v, want [1 2]", got)
	}
	if chunks[2].Lines[0] != "def f(): return 1" {
		t.Errorf("added line = %q", chunks[2].Lines[0])
	}
}

func TestParseInference(t *testing.T) {
	chunks := Parse("[10] a\nb\n- c\n+ d\ne")
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %+v", chunks)
	}
	if got := chunks[0].LineNumbers; got[0] != 10 || got[1] != 11 {
		t.Errorf("existing numbers = %v", got)
	}
	if got := chunks[1].LineNumbers[0]; got != 12 {
		t.Errorf("deleted number = %d, want 12", got)
	}
	// a deletion does not advance the cursor, so the addition reuses its slot
	if got := chunks[2].LineNumbers[0]; got != 12 {
		t.Errorf("added number = %d, want 12", got)
	}
}

func TestParseEmpty(t *testing.T) {
	if chunks := Parse(""); chunks != nil {
		t.Fatalf("expected no chunks, got %+v", chunks)
	}
}

func TestParseLeadingChange(t *testing.T) {
	chunks := Parse("- [1] a\n+ b")
	if len(chunks) != 3 || chunks[0].State != Existing || len(chunks[0].Lines) != 0 {
		t.Fatalf("expected empty leading existing chunk, got %+v", chunks)
	}
}

func TestParseDropsEchoedAnchor(t *testing.T) {
	chunks := Parse("[4] return x\n+ return x")
	if len(chunks) != 0 {
		t.Fatalf("expected echo to be removed, got %+v", chunks)
	}
}

func TestParseAgainstDropsUnchangedAddition(t *testing.T) {
	source := "a\nb\nc"
	chunks := ParseAgainst("[1] a\n+ [2] b\n[3] c", source)
	_, _, added := Count(chunks)
	if added != 0 {
		t.Fatalf("expected no added chunks, got %+v", chunks)
	}
	out, err := ApplyPatch(source, chunks)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if out != source {
		t.Errorf("got %q, want unchanged source", out)
	}
}

func TestApplyPatch(t *testing.T) {
	out, err := ApplyPatch(pySource, ParseAgainst(pyDiff, pySource))
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if out != pyWant {
		t.Errorf("got %q, want %q", out, pyWant)
	}
}

func TestApplyPatchErrors(t *testing.T) {
	source := "a\nb\nc"

	_, err := ApplyPatch(source, Parse("[1] a\n- [9] b"))
	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected LineError, got %v", err)
	}
	if lineErr.Line != 9 || lineErr.Lines != 3 {
		t.Errorf("unexpected error fields: %+v", lineErr)
	}
	if !errors.Is(err, ErrInvalidLineNumber) {
		t.Error("LineError should match ErrInvalidLineNumber")
	}

	_, err = ApplyPatch(source, Parse("a\n- b\n+ c"))
	if !errors.Is(err, ErrMissingLineNumber) {
		t.Fatalf("expected ErrMissingLineNumber, got %v", err)
	}
}

func TestApplyPatchEmptyInput(t *testing.T) {
	out, err := ApplyPatch("", Parse(pyDiff))
	if err != nil || out != "" {
		t.Fatalf("got %q, %v", out, err)
	}
	out, err = ApplyPatch(pySource, nil)
	if err != nil || out != pySource {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestApplyDiff(t *testing.T) {
	out, err := ApplyDiff(pySource, Parse(pyDiff))
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if out != pyWant {
		t.Errorf("got %q, want %q", out, pyWant)
	}
}

func TestApplyDiffIgnoresLineNumbers(t *testing.T) {
	source := "one\ntwo\nthree\nfour\n"
	diff := "[40] two\n- [41] three\n+ THREE\n[42] four"
	out, err := ApplyDiff(source, Parse(diff))
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if want := "one\ntwo\nTHREE\nfour\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestApplyDiffLongAnchor(t *testing.T) {
	source := "l1\nl2\nl3\nl4\nl5\nl6\nl7\n"
	diff := "l1\nl2\nl3\nl4\nl5\n+ inserted\nl6"
	out, err := ApplyDiff(source, Parse(diff))
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if want := "l1\nl2\nl3\nl4\nl5\ninserted\nl6\nl7\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestApplyDiffMissingAnchorStops(t *testing.T) {
	source := "a\nb\nc\n"
	diff := "[1] a\n- [2] b\n+ B\n[3] c\n+ C\n[9] nowhere\n+ x"
	out, err := ApplyDiff(source, Parse(diff))
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if want := "a\nB\nc\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestApplyDiffUnexpectedChunk(t *testing.T) {
	chunks := []Chunk{
		{State: Existing, Lines: []string{"a"}},
		{State: Added, Lines: []string{"x"}},
		{State: Added, Lines: []string{"y"}},
	}
	_, err := ApplyDiff("a\nb", chunks)
	if !errors.Is(err, ErrUnexpectedChunk) {
		t.Fatalf("expected ErrUnexpectedChunk, got %v", err)
	}
}

func TestReconcilersAgree(t *testing.T) {
	tests := []struct {
		name   string
		source string
		diff   string
	}{
		{"replace", pySource, pyDiff},
		{"insert", "a\nb\nc\nd\n", "[2] b\n+ b2\n[3] c"},
		{"delete", "a\nb\nc\nd\n", "[1] a\n- [2] b\n[3] c"},
		{"append", "a\nb\n", "[2] b\n+ c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ParseAgainst(tt.diff, tt.source)
			patched, err := ApplyPatch(tt.source, chunks)
			if err != nil {
				t.Fatalf("ApplyPatch failed: %v", err)
			}
			diffed, err := ApplyDiff(tt.source, chunks)
			if err != nil {
				t.Fatalf("ApplyDiff failed: %v", err)
			}
			if patched != diffed {
				t.Errorf("reconcilers disagree:\npatch: %q\ndiff:  %q", patched, diffed)
			}
		})
	}
}

func TestApplyFallsBackToContent(t *testing.T) {
	source := "one\ntwo\nthree\n"
	out, by, err := Apply(source, "[70] two\n- [71] three\n+ 3")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if by != ByContent {
		t.Errorf("reconciler = %s, want %s", by, ByContent)
	}
	if want := "one\ntwo\n3\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}

	_, by, err = Apply(pySource, pyDiff)
	if err != nil || by != ByLineNumber {
		t.Fatalf("expected line number reconciler, got %s, %v", by, err)
	}
}

func TestApplyBothFail(t *testing.T) {
	_, _, err := Apply("a\nb", "[70] a\n+ x\n- [71] b")
	if !errors.Is(err, ErrInvalidLineNumber) || !errors.Is(err, ErrUnexpectedChunk) {
		t.Fatalf("expected both reconcilers to fail, got %v", err)
	}
	if !strings.Contains(err.Error(), "patch:") || !strings.Contains(err.Error(), "diff:") {
		t.Errorf("expected both failures, got %v", err)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	before := "a\nb\nc\nd\n"
	after := "a\nB\nc\nd\ne\n"

	diff := Render(before, after, 1)
	want := "[1] a\n- [2] b\n+ B\n[3] c\n[4] d\n+ e\n"
	if diff != want {
		t.Fatalf("Render:\n%s\nwant:\n%s", diff, want)
	}

	out, by, err := Apply(before, diff)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if by != ByLineNumber {
		t.Errorf("reconciler = %s", by)
	}
	if out != after {
		t.Errorf("got %q, want %q", out, after)
	}
}

func TestRenderFixedPoint(t *testing.T) {
	out, err := ApplyPatch(pySource, ParseAgainst(pyDiff, pySource))
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	diff := Render(out, out, 2)
	if diff != "" {
		t.Fatalf("expected empty diff, got %q", diff)
	}
	if chunks := ParseAgainst(diff, out); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %+v", chunks)
	}
}

func TestUnifiedAndLlmify(t *testing.T) {
	before := "a\nb\nc\n"
	after := "a\nB\nc\n"

	unified := Unified("a/x.txt", "b/x.txt", before, after, 1)
	wantUnified := "--- a/x.txt\n+++ b/x.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"
	if unified != wantUnified {
		t.Fatalf("Unified:\n%s\nwant:\n%s", unified, wantUnified)
	}

	got := Llmify(unified)
	want := "--- a/x.txt\n+++ b/x.txt\n@@ -1,3 +1,3 @@\n[1]  a\n-b\n[2] +B\n[3]  c\n"
	if got != want {
		t.Errorf("Llmify:\n%s\nwant:\n%s", got, want)
	}

	if Llmify("no hunks here") != "" {
		t.Error("expected empty result without hunks")
	}
	if Unified("a", "b", before, before, 3) != "" {
		t.Error("expected empty unified diff for equal contents")
	}
}
