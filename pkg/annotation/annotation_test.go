package annotation

import (
	"strings"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

func TestParseGitHub(t *testing.T) {
	output := `
::error file=packages/core/src/github.ts,line=71,endLine=71,code=concatenation_override::The change on line 71 may override the text.

::error file=packages/core/src/github.ts,line=161,endLine=161,code=concatenation_override::Similarly, line 161 could override the body.

::notice file=packages/core/src/github.ts,line=140,endLine=141::Unused code.
`
	diags := Parse(output)
	if len(diags) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d: %+v", len(diags), diags)
	}
	want := types.Diagnostic{
		Severity: "error",
		Filename: "packages/core/src/github.ts",
		Line:     71,
		EndLine:  71,
		Code:     "concatenation_override",
		Message:  "The change on line 71 may override the text.",
	}
	if diags[0] != want {
		t.Errorf("got %+v, want %+v", diags[0], want)
	}
	if diags[2].Severity != "info" || diags[2].EndLine != 141 || diags[2].Code != "" {
		t.Errorf("unexpected notice: %+v", diags[2])
	}
}

func TestParseTypeScript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want types.Diagnostic
	}{
		{
			name: "tsc pretty",
			in:   "\n\nsrc/annotations.ts:11:28 - error TS1005: ',' expected.\n        ",
			want: types.Diagnostic{Severity: "error", Filename: "src/annotations.ts", Line: 11, EndLine: 28, Code: "TS1005", Message: "',' expected."},
		},
		{
			name: "tsc parentheses",
			in:   "src/connection.ts(71,5): error TS1128: Declaration or statement expected.",
			want: types.Diagnostic{Severity: "error", Filename: "src/connection.ts", Line: 71, EndLine: 71, Code: "TS1128", Message: "Declaration or statement expected."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Parse(tt.in)
			if len(diags) != 1 {
				t.Fatalf("expected 1 diagnostic, got %+v", diags)
			}
			if diags[0] != tt.want {
				t.Errorf("got %+v, want %+v", diags[0], tt.want)
			}
		})
	}
}

func TestParseAzure(t *testing.T) {
	diags := Parse("##vso[task.logissue type=warning;sourcepath=foo.cs;linenumber=12;code=100;]Found something.")
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", diags)
	}
	d := diags[0]
	if d.Severity != "warning" || d.Filename != "foo.cs" || d.Line != 12 || d.Code != "100" || d.Message != "Found something." {
		t.Errorf("unexpected diagnostic: %+v", d)
	}
}

func TestParseDeduplicates(t *testing.T) {
	line := "::warning file=a.go,line=1,endLine=1::dup"
	if diags := Parse(line + "\n" + line); len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if Parse("") != nil {
		t.Error("expected nil for empty text")
	}
}

func TestErase(t *testing.T) {
	out := Erase("keep\n::error file=a.go,line=1,endLine=1::bad\nalso keep")
	if strings.Contains(out, "::error") || !strings.Contains(out, "also keep") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCommands(t *testing.T) {
	d := types.Diagnostic{Severity: "info", Filename: "a.go", Line: 3, EndLine: 4, Message: "hi"}
	if got := GitHubCommand(d); got != "::notice file=a.go,line=3,endLine=4::hi" {
		t.Errorf("GitHubCommand = %q", got)
	}
	if got := AzureCommand(d); got != "##[debug]hi at a.go" {
		t.Errorf("AzureCommand = %q", got)
	}
	d.Severity = "error"
	if got := AzureCommand(d); got != "##vso[task.logissue type=error;sourcepath=a.go;linenumber=3]hi" {
		t.Errorf("AzureCommand = %q", got)
	}
	if diags := Parse(GitHubCommand(d)); len(diags) != 1 || diags[0].Line != 3 {
		t.Errorf("command does not round trip: %+v", diags)
	}
}
