package openai

import (
	"encoding/json"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/types"
	sdk "github.com/sashabaranov/go-openai"
)

func TestConvertMessages(t *testing.T) {
	msgs := []types.Message{{Role: "user", Content: "hi"}, {Role: "assistant", ToolCalls: []types.ToolCall{{ID: "1", Name: "tool", Arguments: "{}"}}}, {Role: "tool", ToolCallID: "1", ToolName: "tool", Content: "result"}}
	converted, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convert messages error: %v", err)
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if converted[1].ToolCalls[0].Function.Name != "tool" {
		t.Fatalf("unexpected tool call conversion: %+v", converted[1].ToolCalls[0])
	}
	if converted[1].Content != " " {
		t.Fatalf("expected placeholder content, got %q", converted[1].Content)
	}
	if converted[2].Role != "tool" || converted[2].ToolCallID != "1" {
		t.Fatalf("unexpected tool message conversion: %+v", converted[2])
	}
}

func TestConvertMessageParts(t *testing.T) {
	msgs := []types.Message{{Role: "user", Parts: []types.ContentPart{
		{Type: types.PartText, Text: "describe"},
		{Type: types.PartImage, URL: "https://example.com/a.png"},
	}}}
	converted, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convert messages error: %v", err)
	}
	if converted[0].Content != "" || len(converted[0].MultiContent) != 2 {
		t.Fatalf("expected multi content, got %+v", converted[0])
	}
	if converted[0].MultiContent[1].ImageURL.URL != "https://example.com/a.png" {
		t.Fatalf("image url lost: %+v", converted[0].MultiContent[1])
	}

	_, err = convertMessages([]types.Message{{Role: "user", Parts: []types.ContentPart{{Type: types.PartAudio}}}})
	if err == nil {
		t.Fatalf("expected audio parts to be rejected")
	}
}

func TestConvertToolsAndBack(t *testing.T) {
	tools := []types.Tool{{Name: "read", Description: "desc", Parameters: types.JSONSchema{"type": "object"}}}
	converted := convertTools(tools)
	if len(converted) != 1 || converted[0].Function.Name != "read" {
		t.Fatalf("unexpected conversion: %+v", converted)
	}

	calls := []sdk.ToolCall{{ID: "1", Function: sdk.FunctionCall{Name: "read", Arguments: "{}"}}}
	back := convertToolCalls(calls)
	if len(back) != 1 || back[0].Name != "read" {
		t.Fatalf("unexpected tool call conversion back: %+v", back)
	}
}

func TestConvertUsage(t *testing.T) {
	u := sdk.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	res := convertUsage(u)
	if res.TotalTokens != 3 || res.PromptTokens != 1 || res.CompletionTokens != 2 {
		t.Fatalf("unexpected usage conversion: %+v", res)
	}
}

func TestConvertFinishReason(t *testing.T) {
	tests := map[sdk.FinishReason]string{
		sdk.FinishReasonStop:          types.FinishStop,
		sdk.FinishReasonToolCalls:     types.FinishToolCalls,
		sdk.FinishReasonLength:        types.FinishLength,
		sdk.FinishReasonContentFilter: types.FinishFail,
		"":                            "",
	}
	for in, want := range tests {
		if got := convertFinishReason(in); got != want {
			t.Errorf("convertFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildRequestResponseFormat(t *testing.T) {
	seed := 3
	req, err := buildRequest(&llm.ProviderRequest{
		Model:          "gpt",
		TopP:           0.9,
		Seed:           &seed,
		ResponseType:   types.ResponseJSONSchema,
		ResponseSchema: types.JSONSchema{"type": "object"},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != sdk.ChatCompletionResponseFormatTypeJSONSchema {
		t.Fatalf("expected json_schema format, got %+v", req.ResponseFormat)
	}
	raw, err := json.Marshal(req.ResponseFormat.JSONSchema.Schema)
	if err != nil || string(raw) != `{"type":"object"}` {
		t.Fatalf("unexpected schema %s (%v)", raw, err)
	}
	if *req.Seed != 3 || req.TopP != float32(0.9) {
		t.Fatalf("sampling options lost: %+v", req)
	}

	req, err = buildRequest(&llm.ProviderRequest{ResponseType: types.ResponseJSONObject})
	if err != nil || req.ResponseFormat.Type != sdk.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("expected json_object format, got %+v (%v)", req.ResponseFormat, err)
	}

	req, _ = buildRequest(&llm.ProviderRequest{})
	if req.ResponseFormat != nil {
		t.Fatalf("expected no response format for text")
	}
}
