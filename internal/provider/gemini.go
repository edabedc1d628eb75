package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"finch/pkg/models"
)

// GeminiProvider drives Google's Gemini API via google.golang.org/genai.
// Grounded on the teacher's internal/agent/providers/google.go: system
// instructions travel via GenerateContentConfig.SystemInstruction rather
// than a message, tool calls become genai.FunctionCall parts, and tool
// results become genai.FunctionResponse parts carried on a user-role
// content entry (spec §4.4's "content blocks within a user message"
// tool-result branch).
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider constructs a driver authenticated with apiKey.
func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string) (*GeminiProvider, error) {
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, defaultModel: defaultModel}, nil
}

func (p *GeminiProvider) Name() string            { return "gemini" }
func (p *GeminiProvider) DefaultModel() string    { return p.defaultModel }
func (p *GeminiProvider) SupportsStreaming() bool { return true }
func (p *GeminiProvider) SupportsTools() bool     { return true }

func (p *GeminiProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *GeminiProvider) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = geminiTools(req.Tools)
	}
	return config
}

// Send implements the batched half of the uniform contract.
func (p *GeminiProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	model := p.model(req)
	contents := geminiContents(req.Messages)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, p.buildConfig(req))
	if err != nil {
		return nil, NewError(p.Name(), model, err)
	}

	out := &Response{Model: model, Role: models.RoleAssistant, ProviderName: p.Name()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			appendGeminiPart(out, part)
		}
	}
	return out, nil
}

// SendStream implements the streaming half of the uniform contract,
// iterating Gemini's Go 1.23 iter.Seq2 stream as the teacher's
// processStreamResponse does.
func (p *GeminiProvider) SendStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	model := p.model(req)
	contents := geminiContents(req.Messages)
	config := p.buildConfig(req)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				out <- StreamChunk{Error: NewError(p.Name(), model, err)}
				return
			}
			if resp == nil {
				continue
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						out <- StreamChunk{Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							args = []byte("{}")
						}
						out <- StreamChunk{ToolUse: &models.ToolUseContent{
							ID: part.FunctionCall.Name, Name: part.FunctionCall.Name, Input: args,
						}}
					}
				}
			}
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

func appendGeminiPart(out *Response, part *genai.Part) {
	if part == nil {
		return
	}
	if part.Text != "" {
		out.Content = append(out.Content, models.Text(part.Text))
	}
	if part.FunctionCall != nil {
		args, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			args = []byte("{}")
		}
		out.Content = append(out.Content, models.ToolUse(part.FunctionCall.Name, part.FunctionCall.Name, args))
	}
}

func geminiContents(messages []models.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}
		for _, b := range msg.Content {
			switch b.Type {
			case models.BlockText:
				content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
			case models.BlockToolUse:
				var args map[string]any
				if err := json.Unmarshal(b.ToolUse.Input, &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: b.ToolUse.Name, Args: args},
				})
			case models.BlockToolResult:
				var response map[string]any
				if err := json.Unmarshal([]byte(b.ToolResult.Content), &response); err != nil {
					response = map[string]any{"result": b.ToolResult.Content, "error": b.ToolResult.IsError}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: b.ToolResult.ToolUseID, Response: response},
				})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func geminiTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema genai.Schema
		_ = json.Unmarshal(t.InputSchema, &schema)
		decls[i] = &genai.FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: &schema}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
