package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Step is one scripted backend turn. When Func is set it decides the
// response instead of the literal fields.
type Step struct {
	Content      string
	ToolCalls    []types.ToolCall
	FinishReason string
	Vars         map[string]string
	Err          error
	Func         func(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error)
}

// Provider replays a script of responses. Once the script is exhausted the
// last step repeats; without a script it answers with ResponseContent or an
// echo of the last message.
type Provider struct {
	ResponseContent string

	mu       sync.Mutex
	script   []Step
	next     int
	requests []*llm.ProviderRequest
}

func New(response string) *Provider {
	return &Provider{
		ResponseContent: response,
	}
}

// NewScripted returns a provider that answers with steps in order.
func NewScripted(steps ...Step) *Provider {
	return &Provider{script: steps}
}

func (p *Provider) ID() string {
	return "mock"
}

// Requests returns every request received so far.
func (p *Provider) Requests() []*llm.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ProviderRequest(nil), p.requests...)
}

func (p *Provider) Call(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	snapshot := *req
	snapshot.Messages = types.CloneMessages(req.Messages)
	p.requests = append(p.requests, &snapshot)
	step, scripted := p.step()
	p.mu.Unlock()

	if !scripted {
		content := p.ResponseContent
		if content == "" && len(req.Messages) > 0 {
			lastMsg := req.Messages[len(req.Messages)-1]
			content = fmt.Sprintf("Mock response to: %s", lastMsg.Text())
		}
		step = Step{Content: content}
	}

	if step.Func != nil {
		return step.Func(ctx, req)
	}
	if step.Err != nil {
		return nil, step.Err
	}

	calls := make([]types.ToolCall, len(step.ToolCalls))
	for i, c := range step.ToolCalls {
		if c.ID == "" {
			c.ID = types.GenerateCallID()
		}
		calls[i] = c
	}
	reason := step.FinishReason
	if reason == "" {
		reason = types.FinishStop
		if len(calls) > 0 {
			reason = types.FinishToolCalls
		}
	}

	return &llm.ProviderResponse{
		ID:           fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Model:        "mock-model",
		Content:      step.Content,
		ToolCalls:    calls,
		FinishReason: reason,
		Usage:        types.Usage{CompletionTokens: len(strings.Fields(step.Content)), TotalTokens: len(strings.Fields(step.Content))},
		Vars:         step.Vars,
	}, nil
}

func (p *Provider) step() (Step, bool) {
	if len(p.script) == 0 {
		return Step{}, false
	}
	i := min(p.next, len(p.script)-1)
	p.next++
	return p.script[i], true
}

// CallStream replays the Call response word by word.
func (p *Provider) CallStream(ctx context.Context, req *llm.ProviderRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		send := func(c llm.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, word := range strings.SplitAfter(resp.Content, " ") {
			if word == "" {
				continue
			}
			if !send(llm.StreamChunk{Content: word}) {
				return
			}
		}
		usage := resp.Usage
		send(llm.StreamChunk{ToolCalls: resp.ToolCalls, FinishReason: resp.FinishReason, Usage: &usage})
	}()
	return ch, nil
}
