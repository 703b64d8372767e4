package types

import (
	"github.com/oklog/ulid/v2"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// JSONSchema represents a JSON Schema definition
type JSONSchema map[string]any

// ID Generation Helpers

func GenerateID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

func GenerateEventID() string   { return GenerateID("evt") }
func GenerateSessionID() string { return GenerateID("ses") }
func GenerateCallID() string    { return GenerateID("call") }
func GeneratePatchID() string   { return GenerateID("pch") }
