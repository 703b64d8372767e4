package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/types"
	"github.com/sashabaranov/go-openai"
)

type Provider struct {
	client *openai.Client
	config Config
}

type Config struct {
	APIKey  string
	BaseURL string
}

func New(cfg Config) *Provider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (p *Provider) ID() string {
	return "openai"
}

func (p *Provider) Call(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	openAIReq, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openAIReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	return &llm.ProviderResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		Usage:        convertUsage(resp.Usage),
		ToolCalls:    convertToolCalls(choice.Message.ToolCalls),
		FinishReason: convertFinishReason(choice.FinishReason),
	}, nil
}

func buildRequest(req *llm.ProviderRequest) (openai.ChatCompletionRequest, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("convert messages: %w", err)
	}
	format, err := convertResponseFormat(req.ResponseType, req.ResponseSchema)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("convert response format: %w", err)
	}

	return openai.ChatCompletionRequest{
		Model:          req.Model,
		Messages:       msgs,
		Tools:          convertTools(req.Tools),
		MaxTokens:      req.MaxTokens,
		Temperature:    float32(req.Temperature),
		TopP:           float32(req.TopP),
		Seed:           req.Seed,
		ResponseFormat: format,
	}, nil
}

// Helpers

func convertMessages(msgs []types.Message) ([]openai.ChatCompletionMessage, error) {
	var result []openai.ChatCompletionMessage
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Refusal: m.Refusal,
		}

		if len(m.Parts) > 0 {
			parts, err := convertParts(m.Parts)
			if err != nil {
				return nil, err
			}
			msg.MultiContent = parts
		} else {
			// go-openai omits an empty Content; some compatible backends
			// reject messages without it.
			msg.Content = m.Content
			if msg.Content == "" {
				msg.Content = " "
			}
		}

		if m.Role == types.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}

		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}

		result = append(result, msg)
	}
	return result, nil
}

func convertParts(parts []types.ContentPart) ([]openai.ChatMessagePart, error) {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case types.PartText:
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case types.PartImage:
			out = append(out, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.URL, Detail: openai.ImageURLDetailAuto},
			})
		default:
			return nil, fmt.Errorf("unsupported content part %q", p.Type)
		}
	}
	return out, nil
}

func convertTools(tools []types.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

func convertResponseFormat(rt types.ResponseType, schema types.JSONSchema) (*openai.ChatCompletionResponseFormat, error) {
	switch rt {
	case types.ResponseJSONObject:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}, nil
	case types.ResponseJSONSchema:
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, err
		}
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "result",
				Schema: json.RawMessage(raw),
				Strict: true,
			},
		}, nil
	default:
		return nil, nil
	}
}

func convertUsage(u openai.Usage) types.Usage {
	return types.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func convertToolCalls(calls []openai.ToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]types.ToolCall, len(calls))
	for i, c := range calls {
		result[i] = types.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		}
	}
	return result
}

func convertFinishReason(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return types.FinishToolCalls
	case openai.FinishReasonLength:
		return types.FinishLength
	case openai.FinishReasonContentFilter:
		return types.FinishFail
	case "":
		return ""
	default:
		return types.FinishStop
	}
}

func (p *Provider) CallStream(ctx context.Context, req *llm.ProviderRequest) (<-chan llm.StreamChunk, error) {
	openAIReq, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	openAIReq.Stream = true
	openAIReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(c llm.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Tool calls arrive in pieces keyed by index.
		var order []int
		builder := make(map[int]*types.ToolCall)
		flush := func(reason string, usage *types.Usage) {
			var calls []types.ToolCall
			for _, idx := range order {
				calls = append(calls, *builder[idx])
			}
			send(llm.StreamChunk{ToolCalls: calls, FinishReason: reason, Usage: usage})
		}

		var finish string
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				flush(finish, nil)
				return
			}
			if err != nil {
				send(llm.StreamChunk{Err: err})
				return
			}

			if resp.Usage != nil {
				usage := convertUsage(*resp.Usage)
				flush(finish, &usage)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !send(llm.StreamChunk{Content: delta.Content}) {
					return
				}
			}

			for _, tc := range delta.ToolCalls {
				idx := len(order)
				if tc.Index != nil {
					idx = *tc.Index
				}
				call, ok := builder[idx]
				if !ok {
					call = &types.ToolCall{}
					builder[idx] = call
					order = append(order, idx)
				}
				call.Arguments += tc.Function.Arguments
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
			}

			if r := resp.Choices[0].FinishReason; r != "" {
				finish = convertFinishReason(r)
			}
		}
	}()

	return ch, nil
}
