// Package annotation lifts CI-style diagnostics out of generated text. GitHub
// Actions workflow commands, Azure DevOps logging commands and TypeScript
// compiler output are recognized.
package annotation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var (
	// ::error file=foo.js,line=10,endLine=11,code=x::Something went wrong.
	githubRx = regexp.MustCompile(`(?im)^\s*::(?P<severity>notice|warning|error)\s*file=(?P<file>[^,]+),\s*line=(?P<line>\d+),\s*endLine=(?P<endLine>\d+)\s*(?:,\s*code=(?P<code>[^,:]+)?\s*)?::(?P<message>.*)$`)
	// ##vso[task.logissue type=warning;sourcepath=foo.cs;linenumber=1;]Found something.
	azureRx = regexp.MustCompile(`(?im)^\s*##vso\[task\.logissue\s+type=(?P<severity>error|warning);sourcepath=(?P<file>[^;]+);linenumber=(?P<line>\d+)(?:;code=(?P<code>\d+);)?[^\]]*\](?P<message>.*)$`)
	// foo.ts:10:5 - error TS1005: ';' expected.
	typescriptRx = regexp.MustCompile(`(?im)^(?P<file>[^:\s].+?):(?P<line>\d+)(?::(?P<endLine>\d+))?(?::\d+)?\s+-\s+(?P<severity>error|warning)\s+(?P<code>[^:]+)\s*:\s*(?P<message>.*)$`)
	// src/connection.ts(71,5): error TS1128: Declaration or statement expected.
	typescriptParenRx = regexp.MustCompile(`(?im)^(?P<file>[^\(\n]+)\((?P<line>\d+),(?P<col>\d+)\):\s+(?P<severity>error|warning)\s+(?P<code>TS\d+):\s+(?P<message>.+)$`)

	patterns = []*regexp.Regexp{typescriptParenRx, typescriptRx, githubRx, azureRx}
)

var severities = map[string]string{
	"info":    "info",
	"notice":  "info",
	"warning": "warning",
	"error":   "error",
}

// Parse returns the distinct diagnostics found in text.
func Parse(text string) []types.Diagnostic {
	if text == "" {
		return nil
	}

	var out []types.Diagnostic
	seen := make(map[types.Diagnostic]bool)
	for _, rx := range patterns {
		for _, m := range rx.FindAllStringSubmatch(text, -1) {
			d := diagnostic(rx, m)
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func diagnostic(rx *regexp.Regexp, m []string) types.Diagnostic {
	group := func(name string) string {
		if i := rx.SubexpIndex(name); i >= 0 {
			return m[i]
		}
		return ""
	}

	sev, ok := severities[strings.ToLower(group("severity"))]
	if !ok {
		sev = "info"
	}
	line, _ := strconv.Atoi(group("line"))
	end, err := strconv.Atoi(group("endLine"))
	if err != nil {
		end = line
	}
	return types.Diagnostic{
		Severity: sev,
		Filename: strings.TrimSpace(group("file")),
		Line:     line,
		EndLine:  end,
		Code:     strings.TrimSpace(group("code")),
		Message:  group("message"),
	}
}

// Erase removes every recognized annotation line from text.
func Erase(text string) string {
	for _, rx := range patterns {
		text = rx.ReplaceAllString(text, "")
	}
	return text
}

// GitHubCommand formats d as a GitHub Actions workflow command.
func GitHubCommand(d types.Diagnostic) string {
	sev := d.Severity
	if sev == "info" {
		sev = "notice"
	}
	return fmt.Sprintf("::%s file=%s,line=%d,endLine=%d::%s", sev, d.Filename, d.Line, d.EndLine, d.Message)
}

// AzureCommand formats d as an Azure DevOps logging command.
func AzureCommand(d types.Diagnostic) string {
	if d.Severity == "info" {
		return fmt.Sprintf("##[debug]%s at %s", d.Message, d.Filename)
	}
	return fmt.Sprintf("##vso[task.logissue type=%s;sourcepath=%s;linenumber=%d]%s", d.Severity, d.Filename, d.Line, d.Message)
}
