package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"finch/pkg/models"
)

// OpenAIProvider drives OpenAI's function-call tool emulation (spec
// §4.4: "providers without [a dedicated system field] prepend a
// {role: system} message" and "function-call emulation" for tool
// results carried as role=tool messages). Grounded on the teacher's
// internal/agent/providers/openai.go.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
}

// NewOpenAIProvider constructs a driver pointed at the public OpenAI
// API. NewOpenAICompatibleProvider below targets a custom base URL,
// used by local.go for OpenAI-wire-compatible local inference.
func NewOpenAIProvider(apiKey, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), name: "openai", defaultModel: defaultModel}
}

// NewOpenAICompatibleProvider builds a driver against any OpenAI-wire
// base URL (SPEC_FULL.md §11's local-preferred inference backend), with
// a Chain-distinguishing name so a local backend and the public OpenAI
// driver can coexist in the same fallback chain.
func NewOpenAICompatibleProvider(apiKey, baseURL, defaultModel string) *OpenAIProvider {
	return NewNamedOpenAICompatibleProvider("openai", apiKey, baseURL, defaultModel)
}

// NewNamedOpenAICompatibleProvider is NewOpenAICompatibleProvider with
// an explicit chain name; local.go uses this to report as "local"
// rather than "openai" so FallbackConfig's per-member circuit breaker
// and rate limiter state do not collide across the two drivers.
func NewNamedOpenAICompatibleProvider(name, apiKey, baseURL, defaultModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), name: name, defaultModel: defaultModel}
}

func (p *OpenAIProvider) Name() string            { return p.name }
func (p *OpenAIProvider) DefaultModel() string    { return p.defaultModel }
func (p *OpenAIProvider) SupportsStreaming() bool { return true }
func (p *OpenAIProvider) SupportsTools() bool     { return true }

func (p *OpenAIProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *OpenAIProvider) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: openaiMessages(req.Messages, req.System),
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = openaiTools(req.Tools)
	}
	return chatReq
}

// Send implements the batched half of the uniform contract.
func (p *OpenAIProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, NewError(p.Name(), p.model(req), err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(p.Name(), p.model(req), fmt.Errorf("empty choices"))
	}

	choice := resp.Choices[0]
	out := &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Role:         models.RoleAssistant,
		ProviderName: p.Name(),
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, models.Text(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, models.ToolUse(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	return out, nil
}

// SendStream implements the streaming half of the uniform contract.
// Grounded on the teacher's processStream: tool-call argument
// fragments are accumulated per index and emitted once a finish_reason
// of "tool_calls" or stream EOF closes that index out.
func (p *OpenAIProvider) SendStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, NewError(p.Name(), p.model(req), err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		type building struct{ id, name, args string }
		calls := map[int]*building{}

		flush := func() {
			for _, c := range calls {
				if c.id != "" && c.name != "" {
					out <- StreamChunk{ToolUse: &models.ToolUseContent{ID: c.id, Name: c.name, Input: json.RawMessage(c.args)}}
				}
			}
			calls = map[int]*building{}
		}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					flush()
					out <- StreamChunk{Done: true}
					return
				}
				out <- StreamChunk{Error: NewError(p.Name(), p.model(req), err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- StreamChunk{Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if calls[idx] == nil {
					calls[idx] = &building{}
				}
				if tc.ID != "" {
					calls[idx].id = tc.ID
				}
				if tc.Function.Name != "" {
					calls[idx].name = tc.Function.Name
				}
				calls[idx].args += tc.Function.Arguments
			}
			if resp.Choices[0].FinishReason == "tool_calls" {
				flush()
			}
		}
	}()
	return out, nil
}

func openaiMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var toolResults []models.ToolResultContent
		var toolCalls []openai.ToolCall
		var text string
		for _, b := range msg.Content {
			switch b.Type {
			case models.BlockText:
				text += b.Text
			case models.BlockToolResult:
				toolResults = append(toolResults, *b.ToolResult)
			case models.BlockToolUse:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ToolUse.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolUse.Name,
						Arguments: string(b.ToolUse.Input),
					},
				})
			}
		}

		if len(toolResults) > 0 {
			for _, tr := range toolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleTool, Content: tr.Content, ToolCallID: tr.ToolUseID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{Role: role, Content: text, ToolCalls: toolCalls}
		out = append(out, oaiMsg)
	}
	return out
}

func openaiTools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}
