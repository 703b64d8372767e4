// Package repair finds data blocks in an assistant answer that do not match
// their declared schema and phrases the request to fix them.
package repair

import (
	"fmt"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/fence"
	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Issue is one schema violation.
type Issue struct {
	Label    string
	SchemaID string
	Error    string
}

// Check validates every schema-tagged data fence in content against schemas,
// and the whole content against responseSchema when one is given.
func Check(content string, schemas map[string]types.JSONSchema, responseSchema types.JSONSchema) []Issue {
	var issues []Issue

	fences := fence.Extract(content)
	for _, frame := range fence.ValidateAll(fences, schemas) {
		if frame.Validation.SchemaError == "" {
			continue
		}
		issues = append(issues, Issue{
			Label:    frame.Label,
			SchemaID: frame.SchemaID,
			Error:    frame.Validation.SchemaError,
		})
	}

	if responseSchema != nil {
		var msg string
		value, err := jsonx.Parse(fence.Unfence(content, "json"))
		if err != nil {
			msg = err.Error()
		} else if err := fence.ValidateJSON(value, responseSchema); err != nil {
			msg = err.Error()
		}
		if msg != "" {
			issues = append(issues, Issue{Error: msg})
		}
	}
	return issues
}

// Message renders the user turn asking the model to fix issues.
func Message(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = fmt.Sprintf("data: %s\nschema: %s,\nerror: %s", is.Label, is.SchemaID, is.Error)
	}
	return "DATA_FORMAT_ISSUES:\n```\n" + strings.Join(parts, "\n\n") + "\n```\n\nRepair the DATA_FORMAT_ISSUES. THIS IS IMPORTANT."
}
