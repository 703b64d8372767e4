package fence

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Frame is the outcome of validating one data fence.
type Frame struct {
	SchemaID   string
	Label      string
	Data       any
	Validation *types.Validation
}

// Compile resolves a JSON schema so it can validate instances.
func Compile(schema types.JSONSchema) (*jsonschema.Resolved, error) {
	if schema == nil {
		return nil, fmt.Errorf("no schema provided")
	}
	doc := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" {
			continue
		}
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}

// ValidateJSON checks data against schema. data must hold the types
// encoding/json decodes into.
func ValidateJSON(data any, schema types.JSONSchema) error {
	resolved, err := Compile(schema)
	if err != nil {
		return err
	}
	return resolved.Validate(data)
}

// ParseData decodes a JSON or YAML body according to language.
func ParseData(language, content string) (any, error) {
	switch strings.ToLower(language) {
	case "yaml", "yml":
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return jsonx.Normalize(v)
	default:
		return jsonx.Parse(content)
	}
}

// Validate checks one data fence that declares a schema= argument and
// records the result on the fence. ok is false when the fence declares no
// schema or is not JSON or YAML.
func Validate(f *types.Fence, schemas map[string]types.JSONSchema) (Frame, bool) {
	id := f.Args["schema"]
	if id == "" || !IsData(*f) {
		return Frame{}, false
	}

	frame := Frame{SchemaID: id, Label: f.Label}
	v := &types.Validation{SchemaID: id}
	data, err := ParseData(f.Language, f.Content)
	switch {
	case err != nil:
		v.SchemaError = err.Error()
	case schemas[id] == nil:
		v.SchemaError = fmt.Sprintf("schema %s not found", id)
	default:
		if err := ValidateJSON(data, schemas[id]); err != nil {
			v.SchemaError = err.Error()
		}
	}
	frame.Data = data
	frame.Validation = v
	f.Validation = v
	return frame, true
}

// ValidateAll validates every data fence in place and returns one frame per
// fence that declared a schema.
func ValidateAll(fences []types.Fence, schemas map[string]types.JSONSchema) []Frame {
	var frames []Frame
	for i := range fences {
		if frame, ok := Validate(&fences[i], schemas); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// FirstData returns the decoded body of the first JSON or YAML fence that
// parses.
func FirstData(fences []types.Fence) (any, bool) {
	for _, f := range fences {
		if !IsData(f) {
			continue
		}
		if data, err := ParseData(f.Language, f.Content); err == nil {
			return data, true
		}
	}
	return nil, false
}
