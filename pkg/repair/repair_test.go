package repair

import (
	"strings"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var personSchema = types.JSONSchema{
	"type":     "object",
	"required": []any{"name"},
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
	},
}

func TestCheckFences(t *testing.T) {
	schemas := map[string]types.JSONSchema{"PERSON": personSchema}

	valid := "PERSON:\n```json schema=PERSON\n{\"name\": \"Ada\"}\n```\n"
	if issues := Check(valid, schemas, nil); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}

	invalid := "PERSON:\n```json schema=PERSON\n{\"age\": 3}\n```\n"
	issues := Check(invalid, schemas, nil)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %+v", issues)
	}
	if issues[0].Label != "PERSON" || issues[0].SchemaID != "PERSON" || issues[0].Error == "" {
		t.Errorf("unexpected issue: %+v", issues[0])
	}

	unknown := "```yaml schema=NOPE\nname: x\n```\n"
	issues = Check(unknown, schemas, nil)
	if len(issues) != 1 || issues[0].Error != "schema NOPE not found" {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestCheckResponseSchema(t *testing.T) {
	if issues := Check(`{"name": "Ada"}`, nil, personSchema); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
	if issues := Check("```json\n{\"name\": \"Ada\"}\n```", nil, personSchema); len(issues) != 0 {
		t.Fatalf("expected fenced answer to validate, got %+v", issues)
	}
	if issues := Check(`{"name": 1}`, nil, personSchema); len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %+v", issues)
	}
	if issues := Check("not json at all", nil, personSchema); len(issues) != 1 {
		t.Fatalf("expected parse issue, got %+v", issues)
	}
}

func TestMessage(t *testing.T) {
	got := Message([]Issue{
		{Label: "PERSON", SchemaID: "PERSON", Error: "missing name"},
		{Error: "not an object"},
	})
	want := "DATA_FORMAT_ISSUES:\n```\n" +
		"data: PERSON\nschema: PERSON,\nerror: missing name\n\n" +
		"data: \nschema: ,\nerror: not an object\n" +
		"```\n\nRepair the DATA_FORMAT_ISSUES. THIS IS IMPORTANT."
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if !strings.HasPrefix(Message(nil), "DATA_FORMAT_ISSUES:") {
		t.Error("unexpected prefix")
	}
}
