package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

type Gateway struct {
	provider Provider
	options  config.ProviderOptions
}

func NewGateway(provider Provider, opts config.ProviderOptions) *Gateway {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7 // Default if not set
	}
	return &Gateway{
		provider: provider,
		options:  opts,
	}
}

// ProviderID names the backend behind the gateway.
func (g *Gateway) ProviderID() string {
	return g.provider.ID()
}

func (g *Gateway) request(req *ChatRequest) *ProviderRequest {
	provReq := &ProviderRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Tools:          req.Tools,
		MaxTokens:      g.options.MaxTokens,
		Temperature:    g.options.Temperature,
		Seed:           req.Seed,
		ResponseType:   req.ResponseType,
		ResponseSchema: req.ResponseSchema,
	}
	if provReq.Model == "" {
		provReq.Model = g.options.Model
	}
	if req.MaxTokens > 0 {
		provReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		provReq.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		provReq.TopP = *req.TopP
	}
	return provReq
}

func (g *Gateway) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := g.provider.Call(ctx, g.request(req))
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Model:        resp.Model,
		Content:      resp.Content,
		ToolCalls:    resp.ToolCalls,
		FinishReason: finishReason(resp.FinishReason, resp.ToolCalls),
		Usage:        resp.Usage,
		Vars:         resp.Vars,
	}, nil
}

func (g *Gateway) StreamChat(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	return g.provider.CallStream(ctx, g.request(req))
}

// Complete streams the response, reporting each partial chunk to onPartial,
// and returns the aggregate. With a nil onPartial it is a plain Chat call.
func (g *Gateway) Complete(ctx context.Context, req *ChatRequest, onPartial func(StreamChunk)) (*ChatResponse, error) {
	if onPartial == nil {
		return g.Chat(ctx, req)
	}

	stream, err := g.StreamChat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	resp := &ChatResponse{Model: req.Model}
	var content strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		onPartial(chunk)
		content.WriteString(chunk.Content)
		resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp.Content = content.String()
	resp.FinishReason = finishReason(resp.FinishReason, resp.ToolCalls)
	return resp, nil
}

func finishReason(reason string, calls []types.ToolCall) string {
	if reason != "" {
		return reason
	}
	if len(calls) > 0 {
		return types.FinishToolCalls
	}
	return types.FinishStop
}
