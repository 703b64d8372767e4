package changelog

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const template = `ChangeLog:1@<file1>
Description: <summary1>.
OriginalCode@4-6:
[4] <white space> <original code line>
[5] <white space> <original code line>
[6] <white space> <original code line>
ChangedCode@4-6:
[4] <white space> <changed code line>
[5] <white space> <changed code line>
[6] <white space> <changed code line>
OriginalCode@9-10:
[9] <white space> <original code line>
[10] <white space> <original code line>
ChangedCode@9-9:
[9] <white space> <changed code line>
ChangeLog:2@<file2>
Description: <summary2>.
OriginalCode@15-16:
[15] <white space> <original code line>
[16] <white space> <original code line>
ChangedCode@15-17:
[15] <white space> <changed code line>
[16] <white space> <changed code line>
[17] <white space> <changed code line>
OriginalCode@23-23:
[23] <white space> <original code line>
ChangedCode@23-23:
[23] <white space> <changed code line>`

func TestParseTemplate(t *testing.T) {
	res, err := Parse(template)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 changelogs, got %d", len(res))
	}
	if res[0].Filename != "<file1>" || res[1].Filename != "<file2>" {
		t.Errorf("unexpected filenames: %q, %q", res[0].Filename, res[1].Filename)
	}
	if len(res[0].Changes) != 2 || len(res[1].Changes) != 2 {
		t.Errorf("expected 2 changes each, got %d and %d", len(res[0].Changes), len(res[1].Changes))
	}
	if res[0].Index != 1 || res[1].Index != 2 {
		t.Errorf("unexpected indexes: %d, %d", res[0].Index, res[1].Index)
	}
	if res[0].Description != "<summary1>." {
		t.Errorf("description = %q", res[0].Description)
	}

	c := res[1].Changes[0]
	if c.Original.Start != 15 || c.Original.End != 16 || c.Changed.End != 17 {
		t.Errorf("unexpected ranges: %+v", c)
	}
	if got := c.Changed.Lines[2]; got.Index != 17 || got.Content != "<white space> <changed code line>" {
		t.Errorf("unexpected line: %+v", got)
	}
}

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		filename string
		changes  int
	}{
		{
			name: "url",
			source: `ChangeLog:1@email_validator.py
Description: Implement a function to validate both email addresses and URLs.
OriginalCode@1-3:
[1] # Placeholder for email validation logic
[2] 
[3] # Placeholder for URL validation logic
ChangedCode@1-10:
[1] import re
[2] 
[3] def validate_email(email):
[4]     pattern = r'^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$'
[5]     return re.match(pattern, email) is not None
`,
			filename: "email_validator.py",
			changes:  1,
		},
		{
			name: "blank lines between changes",
			source: `
ChangeLog:1@annotations.md
Description: Corrected grammatical errors.
OriginalCode@9-9:
[9] Annotations are errors, warning or notes.
ChangedCode@9-9:
[9] Annotations are markers such as errors, warnings, or notes.

OriginalCode@17-19:
[17] If you use annotation in your script text.
[18] 
[19] Using the system prompt.
ChangedCode@17-19:
[17] If you include annotation in your script text.
[18] 
[19] Utilizing the system prompt.

OriginalCode@30-31:
[30] The prompt enables line numbers.
[31] with the precision of the answer.
ChangedCode@30-31:
[30] The prompt facilitates line numbers.
[31] enhancing the accuracy of the answer.

OriginalCode@40-41:
[40] The annotation are converted
[41] through the Problems panel.
ChangedCode@40-41:
[40] Annotations are transformed
[41] via the Problems panel.

OriginalCode@45-46:
[45] Convert those into SARIF files.
[46] 
ChangedCode@45-46:
[45] Converts these into SARIF files.
[46] 

OriginalCode@85-86:
[85] -   Access may vary based on visibilty
[86]     rules.
ChangedCode@85-86:
[85] -   Access may vary depending on visibility
[86]     policies.
        `,
			filename: "annotations.md",
			changes:  6,
		},
		{
			name: "nested path",
			source: `ChangeLog:1@packages/core/src/cancellation.ts
Description: Added comments to explain the purpose of the code.

OriginalCode@42-44:
[42] export function checkCancelled(token: CancellationToken) {
[43]     if (token?.isCancellationRequested) throw new CancelError("user cancelled")
[44] }
ChangedCode@42-44:
[42] export function checkCancelled(token: CancellationToken) {
[43]     // Throws a CancelError if the cancellation has been requested
[44]     if (token?.isCancellationRequested) throw new CancelError("user cancelled")
[45] }`,
			filename: "packages/core/src/cancellation.ts",
			changes:  1,
		},
		{
			name: "leading blank line",
			source: `
ChangeLog:1@src/edits/su/fib.ts
Description: Implement the Fibonacci function.
OriginalCode@105-107:
[105]     // TODO: implement fibonacci algorithm
[106]     return 0 // BODY
[107] }
ChangedCode@105-107:
[105]     if (n <= 1) return n;
[106]     return fibonacci(n - 1) + fibonacci(n - 2);
[107] }
`,
			filename: "src/edits/su/fib.ts",
			changes:  1,
		},
		{
			name: "unbalanced fences",
			source: "`````changelog\n" + `ChangeLog:1@src/edits/bigfibs/fib.py
Description: Implemented new_function, removed comments and empty lines.
OriginalCode@48-51:
[48] def new_function(sum):
[49]     # TODO
[50]     return 0
[51]     # return (10 - (sum % 10)) % 10;
ChangedCode@48-50:
[48] def new_function(sum):
[49]     return (10 - (sum % 10)) % 10
[50] 
` + "```\n",
			filename: "src/edits/bigfibs/fib.py",
			changes:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.source)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(res) != 1 {
				t.Fatalf("expected 1 changelog, got %d", len(res))
			}
			if res[0].Filename != tt.filename {
				t.Errorf("filename = %q, want %q", res[0].Filename, tt.filename)
			}
			if len(res[0].Changes) != tt.changes {
				t.Errorf("changes = %d, want %d", len(res[0].Changes), tt.changes)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"no header", "not a changelog", ErrMissingHeader},
		{"no description", "ChangeLog:1@a.go\nOriginalCode@1-1:", ErrMissingDescription},
		{
			"no changed block",
			"ChangeLog:1@a.go\nDescription: x\nOriginalCode@1-1:\n[1] a\nsomething else",
			ErrMissingChangedCode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	res, err := Parse("\n\n")
	if err != nil || len(res) != 0 {
		t.Fatalf("expected nothing, got %v, %v", res, err)
	}
}

func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestApplyShiftsLaterRanges(t *testing.T) {
	source := numbered(20)
	cls, err := Parse(`ChangeLog:1@file.txt
Description: grow the first block, shrink the second.
OriginalCode@4-6:
[4] line 4
[5] line 5
[6] line 6
ChangedCode@4-8:
[4] four
[5] five
[6] five and a half
[7] six
[8] six and a half
OriginalCode@9-10:
[9] line 9
[10] line 10
ChangedCode@9-9:
[9] nine and ten`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	out, err := Apply(source, cls[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []string{
		"line 1", "line 2", "line 3",
		"four", "five", "five and a half", "six", "six and a half",
		"line 7", "line 8",
		"nine and ten",
	}
	for i := 11; i <= 20; i++ {
		want = append(want, fmt.Sprintf("line %d", i))
	}
	if got := strings.Split(out, "\n"); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got:\n%s\nwant:\n%s", out, strings.Join(want, "\n"))
	}

	// the parsed changelog is left untouched
	if cls[0].Changes[1].Original.Start != 9 {
		t.Errorf("changelog mutated: %+v", cls[0].Changes[1].Original)
	}
}

func TestApplyOutOfRange(t *testing.T) {
	cl := ChangeLog{Changes: []Change{{
		Original: Chunk{Start: 0, End: 1},
		Changed:  Chunk{Start: 0, End: 1},
	}}}
	if _, err := Apply("a\nb", cl); !errors.Is(err, ErrRange) {
		t.Fatalf("expected ErrRange, got %v", err)
	}
}

func TestApplyAppendsAtEnd(t *testing.T) {
	cl := ChangeLog{Changes: []Change{{
		Original: Chunk{Start: 3, End: 3},
		Changed:  Chunk{Start: 3, End: 4, Lines: []Line{{3, "c"}, {4, "d"}}},
	}}}
	out, err := Apply("a\nb\nold", cl)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out != "a\nb\nc\nd" {
		t.Errorf("got %q", out)
	}
}
