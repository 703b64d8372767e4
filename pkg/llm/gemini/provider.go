package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/types"
	"google.golang.org/genai"
)

// Config contains Gemini-specific configuration.
type Config struct {
	APIKey    string
	ProjectID string
	Location  string
	Model     string
}

type Provider struct {
	client *genai.Client
	config Config
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI, // Default to Gemini API
	}

	if cfg.ProjectID != "" && cfg.Location != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.ProjectID
		clientConfig.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Provider{
		client: client,
		config: cfg,
	}, nil
}

func (p *Provider) ID() string {
	return "gemini"
}

func (p *Provider) Call(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	modelName, contents, conf, err := p.prepareCall(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelName, contents, conf)
	if err != nil {
		return nil, err
	}

	return convertResponse(resp, modelName)
}

func (p *Provider) CallStream(ctx context.Context, req *llm.ProviderRequest) (<-chan llm.StreamChunk, error) {
	modelName, contents, conf, err := p.prepareCall(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Models.GenerateContentStream(ctx, modelName, contents, conf)

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

		for chunk, err := range stream {
			if err != nil {
				send(llm.StreamChunk{Err: err})
				return
			}
			if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
				continue
			}
			cand := chunk.Candidates[0]
			out := llm.StreamChunk{
				Content:      chunk.Text(),
				ToolCalls:    convertFunctionCalls(cand.Content.Parts),
				FinishReason: convertFinishReason(cand.FinishReason, false),
			}
			if out.FinishReason != "" && chunk.UsageMetadata != nil {
				usage := convertUsage(chunk.UsageMetadata)
				out.Usage = &usage
			}
			if out.Content == "" && len(out.ToolCalls) == 0 && out.FinishReason == "" {
				continue
			}
			if !send(out) {
				return
			}
		}
	}()

	return ch, nil
}

func (p *Provider) prepareCall(req *llm.ProviderRequest) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	// 1. Separate System Prompt
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Text()}},
			}
			continue
		}

		content, err := convertMessage(m)
		if err != nil {
			return "", nil, nil, err
		}
		contents = append(contents, content)
	}

	// 2. Convert Tools
	tools := convertTools(req.Tools)

	// 3. Prepare Config
	conf := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxTokens),
		SystemInstruction: systemInstruction,
		Tools:             tools,
	}
	if req.TopP > 0 {
		conf.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.Seed != nil {
		conf.Seed = genai.Ptr(int32(*req.Seed))
	}
	switch req.ResponseType {
	case types.ResponseJSONObject:
		conf.ResponseMIMEType = "application/json"
	case types.ResponseJSONSchema:
		conf.ResponseMIMEType = "application/json"
		conf.ResponseSchema = convertSchema(req.ResponseSchema)
	}

	// 4. Model Name
	modelName := req.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	return modelName, contents, conf, nil
}

// Helpers

func convertMessage(m types.Message) (*genai.Content, error) {
	role := "user"
	if m.Role == types.RoleAssistant {
		role = "model"
	}

	var parts []*genai.Part

	// 1. Text Content
	for _, p := range m.Parts {
		part, err := convertPart(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(m.Parts) == 0 && m.Content != "" && m.Role != types.RoleTool {
		parts = append(parts, &genai.Part{Text: m.Content})
	}

	// 2. Tool Calls (Assistant -> FunctionCall)
	for _, tc := range m.ToolCalls {
		var args map[string]any
		if tc.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool arguments for %s: %w", tc.Name, err)
			}
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				Name: tc.Name,
				Args: args,
			},
		})
	}

	// 3. Tool Results (Tool -> FunctionResponse)
	if m.Role == types.RoleTool {
		// Wrap content as "result" to ensure JSON object
		response := map[string]any{"result": m.Content}

		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				Name:     m.ToolName, // Use the proper Tool Name
				Response: response,
			},
		})
	}

	return &genai.Content{
		Role:  role,
		Parts: parts,
	}, nil
}

func convertPart(p types.ContentPart) (*genai.Part, error) {
	switch p.Type {
	case types.PartText:
		return &genai.Part{Text: p.Text}, nil
	case types.PartImage:
		if strings.HasPrefix(p.URL, "data:") {
			mime, data, err := decodeDataURL(p.URL)
			if err != nil {
				return nil, err
			}
			return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}, nil
		}
		return &genai.Part{FileData: &genai.FileData{FileURI: p.URL, MIMEType: p.MimeType}}, nil
	case types.PartAudio:
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, fmt.Errorf("decode audio part: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: p.MimeType, Data: data}}, nil
	default:
		return nil, fmt.Errorf("unsupported content part %q", p.Type)
	}
}

// decodeDataURL splits "data:image/png;base64,...." into mime type and bytes.
func decodeDataURL(url string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mime, _, _ := strings.Cut(header, ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mime, data, nil
}

func convertTools(tools []types.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Parameters),
		})
	}

	if len(fds) == 0 {
		return nil
	}

	return []*genai.Tool{
		{
			FunctionDeclarations: fds,
		},
	}
}

func convertSchema(schema types.JSONSchema) *genai.Schema {
	if schema == nil {
		return nil
	}

	valType, _ := schema["type"].(string)

	s := &genai.Schema{
		Type:        toGenaiType(valType),
		Description: getString(schema, "description"),
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for k, v := range props {
			if vMap, ok := v.(map[string]any); ok {
				s.Properties[k] = convertSchema(vMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}

	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}

	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}

	return s
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

func convertResponse(resp *genai.GenerateContentResponse, model string) (*llm.ProviderResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}
	cand := resp.Candidates[0]

	var content strings.Builder
	var toolCalls []types.ToolCall
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			content.WriteString(part.Text)
		}
		toolCalls = convertFunctionCalls(cand.Content.Parts)
	}

	return &llm.ProviderResponse{
		ID:           resp.ResponseID,
		Model:        model,
		Content:      content.String(),
		ToolCalls:    toolCalls,
		FinishReason: convertFinishReason(cand.FinishReason, len(toolCalls) > 0),
		Usage:        convertUsage(resp.UsageMetadata),
	}, nil
}

// convertFunctionCalls marshals function call args back to JSON. Gemini does
// not always assign call IDs, so missing ones are generated.
func convertFunctionCalls(parts []*genai.Part) []types.ToolCall {
	var calls []types.ToolCall
	for _, part := range parts {
		if part.FunctionCall == nil {
			continue
		}
		argsBytes, _ := json.Marshal(part.FunctionCall.Args)
		id := part.FunctionCall.ID
		if id == "" {
			id = types.GenerateCallID()
		}
		calls = append(calls, types.ToolCall{
			ID:        id,
			Name:      part.FunctionCall.Name,
			Arguments: string(argsBytes),
		})
	}
	return calls
}

func convertUsage(u *genai.GenerateContentResponseUsageMetadata) types.Usage {
	if u == nil {
		return types.Usage{}
	}
	return types.Usage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

func convertFinishReason(r genai.FinishReason, toolCalls bool) string {
	switch {
	case r == "":
		return ""
	case toolCalls:
		return types.FinishToolCalls
	case r == genai.FinishReasonStop:
		return types.FinishStop
	case r == genai.FinishReasonMaxTokens:
		return types.FinishLength
	default:
		return types.FinishFail
	}
}
