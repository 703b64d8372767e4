// Package jsonx parses the loosely formatted JSON that language models
// produce: fenced, with comments, trailing commas or unquoted keys.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmpty is returned by Parse for blank input.
	ErrEmpty = errors.New("jsonx: empty input")

	objectOrArrayRx = regexp.MustCompile(`^\s*[\{\[]`)
	jsonFenceRx     = regexp.MustCompile("(?s)^\\s*(`{3,})(?:json5?|jsonc)?[ \t]*\r?\n(.*?)\r?\n\\s*`{3,}\\s*$")
)

// IsObjectOrArray reports whether text starts with '{' or '['.
func IsObjectOrArray(text string) bool {
	return objectOrArrayRx.MatchString(text)
}

// Parse decodes text strictly first, then as JSON with comments and trailing
// commas, then as a YAML flow document. An outer json fence is removed.
func Parse(text string) (any, error) {
	text = unfence(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}

	var v any
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}

	if std, herr := hujson.Standardize([]byte(text)); herr == nil {
		if json.Unmarshal(std, &v) == nil {
			return v, nil
		}
	}

	if IsObjectOrArray(text) {
		if yerr := yaml.Unmarshal([]byte(text), &v); yerr == nil && v != nil {
			return Normalize(v)
		}
	}
	return nil, fmt.Errorf("jsonx: %w", err)
}

// TryParse is Parse without the error.
func TryParse(text string) (any, bool) {
	v, err := Parse(text)
	return v, err == nil
}

// ParseObject decodes text into a map, treating "" as an empty object.
func ParseObject(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("jsonx: expected object, got %T", v)
	}
	return m, nil
}

// Normalize round-trips v through encoding/json so that it only holds the
// types json.Unmarshal produces.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonx: normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("jsonx: normalize: %w", err)
	}
	return out, nil
}

func unfence(text string) string {
	if m := jsonFenceRx.FindStringSubmatch(text); m != nil {
		return m[2]
	}
	return text
}
