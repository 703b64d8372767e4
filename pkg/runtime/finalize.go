package runtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/annotation"
	"github.com/gm-agent-org/gm-genai/pkg/fence"
	"github.com/gm-agent-org/gm-genai/pkg/fileedit"
	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// finalize turns the last assistant answer into the session result.
func (s *run) finalize(ctx context.Context) (state, error) {
	text := ""
	if s.last != nil {
		text = fence.Unfence(s.last.Content, "markdown", "md")
	}

	fences := fence.Extract(text)
	frames := fence.ValidateAll(fences, s.sess.Schemas)
	annotations := annotation.Parse(text)

	res := &types.RunResult{
		Status:       types.StatusSuccess,
		FinishReason: types.FinishStop,
		Text:         text,
		Fences:       fences,
	}
	if s.last != nil && s.last.FinishReason != "" {
		res.FinishReason = s.last.FinishReason
	}
	res.JSON = s.structured(text, fences)

	out, err := fileedit.Compute(ctx, fileedit.Input{
		Text:        text,
		Fences:      fences,
		Frames:      frames,
		Vars:        s.vars,
		Annotations: annotations,
	}, fileedit.Options{
		Files:       s.rt.files,
		Validator:   s.rt.validator,
		FileOutputs: s.sess.FileOutputs,
		Schemas:     s.sess.Schemas,
		Merges:      s.sess.Merges,
		Processors:  s.sess.Processors,
		ToolEdits:   s.edits,
		Logger:      s.log,
	})
	if err != nil {
		return stateDone, err
	}
	res.Text = out.Text
	res.Annotations = out.Annotations
	res.FileEdits = out.FileEdits
	res.Edits = out.Edits

	s.result = res
	return stateDone, nil
}

// structured decodes the answer according to the requested response type.
// Failures are logged and leave the value nil.
func (s *run) structured(text string, fences []types.Fence) any {
	switch s.sess.ResponseType {
	case types.ResponseJSONObject:
		v, err := jsonx.Parse(text)
		if err != nil {
			s.log.Warn("response is not a JSON object", "error", err)
			return nil
		}
		if s.sess.ResponseSchema != nil {
			if err := fence.ValidateJSON(v, s.sess.ResponseSchema); err != nil {
				s.log.Warn("response does not match schema", "error", err)
			}
		}
		return v

	case types.ResponseJSONSchema:
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(fence.Unfence(text, "json"))), &v); err != nil {
			s.log.Error("response is not valid JSON", "error", err)
			return nil
		}
		return v
	}

	if jsonx.IsObjectOrArray(text) {
		if v, ok := jsonx.TryParse(text); ok {
			return v
		}
	}
	if v, ok := fence.FirstData(fences); ok {
		return v
	}
	return nil
}
