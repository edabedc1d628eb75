package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"finch/pkg/models"
)

// AnthropicProvider drives Anthropic's native content-block and
// tool-use wire format (spec §4.4's "dedicated system field" and
// "native" tool encoding branches). Grounded on the teacher's
// internal/agent/providers/anthropic.go, trimmed to the non-beta
// message path: no computer-use tool support, since SPEC_FULL.md's
// tool set (bash/read/write/edit/patch/glob/grep/web_fetch/
// spawn_subagent) never needs it.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider constructs a driver authenticated with apiKey.
func NewAnthropicProvider(apiKey, defaultModel string) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) Name() string           { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string   { return p.defaultModel }
func (p *AnthropicProvider) SupportsStreaming() bool { return true }
func (p *AnthropicProvider) SupportsTools() bool    { return true }

func (p *AnthropicProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	messages, err := anthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}
	return params, nil
}

// Send implements the batched half of the uniform contract.
func (p *AnthropicProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	resp := &Response{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Role:         models.RoleAssistant,
		ProviderName: p.Name(),
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content = append(resp.Content, models.Text(variant.Text))
		case anthropic.ToolUseBlock:
			input, _ := variant.Input.MarshalJSON()
			resp.Content = append(resp.Content, models.ToolUse(variant.ID, variant.Name, input))
		}
	}
	return resp, nil
}

// SendStream implements the streaming half of the uniform contract,
// translating Anthropic's SSE events into StreamChunk values (spec
// §4.4 "streaming"). Grounded on the teacher's processStream.
func (p *AnthropicProvider) SendStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)
		var toolID, toolName string
		var toolInput strings.Builder
		var inputTokens, outputTokens int

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				inputTokens = int(start.Message.Usage.InputTokens)
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					use := block.AsToolUse()
					toolID, toolName = use.ID, use.Name
					toolInput.Reset()
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- StreamChunk{Text: delta.Text}
					}
				case "input_json_delta":
					toolInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if toolID != "" {
					out <- StreamChunk{ToolUse: &models.ToolUseContent{
						ID: toolID, Name: toolName, Input: json.RawMessage(toolInput.String()),
					}}
					toolID = ""
				}
			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					outputTokens = int(delta.Usage.OutputTokens)
				}
			case "message_stop":
				out <- StreamChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamChunk{Error: p.wrapError(err)}
		}
	}()
	return out, nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	wrapped := NewError(p.Name(), "", err)
	var apiErr *anthropic.Error
	if isAnthropicAPIError(err, &apiErr) {
		wrapped.WithStatus(apiErr.StatusCode)
	}
	return wrapped
}

func isAnthropicAPIError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}

func anthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Content {
			switch b.Type {
			case models.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case models.BlockToolUse:
				var input any
				if err := json.Unmarshal(b.ToolUse.Input, &input); err != nil {
					return nil, fmt.Errorf("decode tool_use input: %w", err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
			case models.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, b.ToolResult.Content, b.ToolResult.IsError))
			case models.BlockImage:
				blocks = append(blocks, anthropic.NewTextBlock("[image omitted: unsupported in non-vision turn]"))
			}
		}
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func anthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.InputSchema, &schema)
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out
}
