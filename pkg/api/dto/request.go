package dto

import "github.com/gm-agent-org/gm-genai/pkg/types"

// RunRequest is the request body for starting a run.
type RunRequest struct {
	// ID names the session; one is generated when empty.
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
	// Prompt and System are shorthands appended after Messages.
	Prompt   string          `json:"prompt,omitempty"`
	System   string          `json:"system,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	ResponseType   types.ResponseType          `json:"response_type,omitempty"`
	ResponseSchema types.JSONSchema            `json:"response_schema,omitempty"`
	Schemas        map[string]types.JSONSchema `json:"schemas,omitempty"`
	FileOutputs    []FileOutput                `json:"file_outputs,omitempty"`

	// Apply writes the resulting file edits to the workspace.
	Apply bool `json:"apply,omitempty"`
	// Async returns immediately; poll GET /api/v1/runs/:id for the result.
	Async bool `json:"async,omitempty"`
}

// FileOutput declares which generated files are expected and how to check them.
type FileOutput struct {
	Pattern     string `json:"pattern" binding:"required"`
	SchemaID    string `json:"schema_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// PermissionResponseRequest is the request body for answering a permission request
type PermissionResponseRequest struct {
	Approved bool `json:"approved"`
	Always   bool `json:"always"`
}
