package service

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gm-agent-org/gm-genai/pkg/api/dto"
	"github.com/gm-agent-org/gm-genai/pkg/fileedit"
	"github.com/gm-agent-org/gm-genai/pkg/runtime"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// NewSession validates req and maps it onto a runtime session.
func NewSession(req dto.RunRequest) (*runtime.Session, error) {
	msgs := types.CloneMessages(req.Messages)
	if req.System != "" {
		msgs = append([]types.Message{{Role: types.RoleSystem, Content: req.System}}, msgs...)
	}
	if req.Prompt != "" {
		msgs = types.AppendUserMessage(msgs, req.Prompt)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: prompt or messages required", ErrInvalidRequest)
	}

	switch req.ResponseType {
	case types.ResponseText, types.ResponseJSONObject:
	case types.ResponseJSONSchema:
		if len(req.ResponseSchema) == 0 {
			return nil, fmt.Errorf("%w: response_schema required for %s", ErrInvalidRequest, req.ResponseType)
		}
	default:
		return nil, fmt.Errorf("%w: unknown response_type %q", ErrInvalidRequest, req.ResponseType)
	}

	outputs := make([]fileedit.FileOutput, 0, len(req.FileOutputs))
	for _, fo := range req.FileOutputs {
		if !doublestar.ValidatePattern(fo.Pattern) {
			return nil, fmt.Errorf("%w: invalid file output pattern %q", ErrInvalidRequest, fo.Pattern)
		}
		if fo.SchemaID != "" {
			if _, ok := req.Schemas[fo.SchemaID]; !ok {
				return nil, fmt.Errorf("%w: file output %s references unknown schema %s", ErrInvalidRequest, fo.Pattern, fo.SchemaID)
			}
		}
		outputs = append(outputs, fileedit.FileOutput{Pattern: fo.Pattern, SchemaID: fo.SchemaID, Description: fo.Description})
	}

	id := req.ID
	if id == "" {
		id = types.GenerateSessionID()
	}
	return &runtime.Session{
		ID:             id,
		Model:          req.Model,
		Messages:       msgs,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxTokens,
		Seed:           req.Seed,
		ResponseType:   req.ResponseType,
		ResponseSchema: req.ResponseSchema,
		Schemas:        req.Schemas,
		FileOutputs:    outputs,
	}, nil
}
