package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

type stubProvider struct {
	chunks []StreamChunk
	last   *ProviderRequest
}

func (*stubProvider) ID() string { return "stub" }

func (s *stubProvider) Call(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	s.last = req
	return &ProviderResponse{Model: req.Model, Content: "ok", ToolCalls: []types.ToolCall{{Name: req.Tools[0].Name}}, Usage: types.Usage{TotalTokens: 1}}, nil
}

func (s *stubProvider) CallStream(ctx context.Context, req *ProviderRequest) (<-chan StreamChunk, error) {
	s.last = req
	ch := make(chan StreamChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestGatewayChat(t *testing.T) {
	gw := NewGateway(&stubProvider{}, config.ProviderOptions{})
	resp, err := gw.Chat(context.Background(), &ChatRequest{Model: "m", Messages: []types.Message{{Content: "hi"}}, Tools: []types.Tool{{Name: "t"}}})
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if resp.Model != "m" || resp.Content != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected tool calls to propagate")
	}
	if resp.FinishReason != types.FinishToolCalls {
		t.Fatalf("expected tool_calls finish reason, got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 1 {
		t.Fatalf("expected usage to propagate")
	}
}

func TestGatewayRequestOverrides(t *testing.T) {
	p := &stubProvider{}
	gw := NewGateway(p, config.ProviderOptions{Model: "default-model", MaxTokens: 100})
	temp, topP, seed := 0.0, 0.5, 7
	_, err := gw.Chat(context.Background(), &ChatRequest{
		Tools:        []types.Tool{{Name: "t"}},
		Temperature:  &temp,
		TopP:         &topP,
		Seed:         &seed,
		ResponseType: types.ResponseJSONObject,
	})
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if p.last.Model != "default-model" || p.last.MaxTokens != 100 {
		t.Fatalf("expected option defaults, got %+v", p.last)
	}
	if p.last.Temperature != 0 || p.last.TopP != 0.5 || *p.last.Seed != 7 {
		t.Fatalf("expected request overrides, got %+v", p.last)
	}
	if p.last.ResponseType != types.ResponseJSONObject {
		t.Fatalf("response type lost: %+v", p.last)
	}
}

func TestGatewayCompleteAggregates(t *testing.T) {
	p := &stubProvider{chunks: []StreamChunk{
		{Content: "hel"},
		{Content: "lo"},
		{ToolCalls: []types.ToolCall{{ID: "1", Name: "read_file"}}, FinishReason: types.FinishToolCalls, Usage: &types.Usage{TotalTokens: 9}},
	}}
	gw := NewGateway(p, config.ProviderOptions{})

	var partials []string
	resp, err := gw.Complete(context.Background(), &ChatRequest{Model: "m"}, func(c StreamChunk) {
		partials = append(partials, c.Content)
	})
	if err != nil {
		t.Fatalf("complete error: %v", err)
	}
	if resp.Content != "hello" || len(resp.ToolCalls) != 1 {
		t.Fatalf("unexpected aggregate: %+v", resp)
	}
	if resp.FinishReason != types.FinishToolCalls || resp.Usage.TotalTokens != 9 {
		t.Fatalf("unexpected finish/usage: %+v", resp)
	}
	if len(partials) != 3 || partials[0] != "hel" {
		t.Fatalf("unexpected partials: %q", partials)
	}
}

func TestGatewayCompleteStreamError(t *testing.T) {
	boom := errors.New("boom")
	p := &stubProvider{chunks: []StreamChunk{{Content: "a"}, {Err: boom}}}
	gw := NewGateway(p, config.ProviderOptions{})
	if _, err := gw.Complete(context.Background(), &ChatRequest{}, func(StreamChunk) {}); !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestGatewayCompleteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := NewGateway(&stubProvider{}, config.ProviderOptions{})
	if _, err := gw.Complete(ctx, &ChatRequest{}, func(StreamChunk) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
