package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"finch/pkg/models"
)

// BedrockProvider drives AWS Bedrock's Converse/ConverseStream API. Per
// SPEC_FULL.md §11 it serves as the teacher's high-capacity fallback
// member: a chain entry behind the interactive Anthropic/OpenAI/Gemini
// members, for call volumes or models that warrant AWS-billed capacity.
// Grounded on the teacher's internal/agent/providers/bedrock.go.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrockProvider builds a driver using the default AWS credential
// chain (environment, shared config, or IAM role) for region.
func NewBedrockProvider(ctx context.Context, region, defaultModel string) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	if defaultModel == "" {
		defaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg), defaultModel: defaultModel}, nil
}

func (p *BedrockProvider) Name() string            { return "bedrock" }
func (p *BedrockProvider) DefaultModel() string    { return p.defaultModel }
func (p *BedrockProvider) SupportsStreaming() bool { return true }
func (p *BedrockProvider) SupportsTools() bool     { return true }

func (p *BedrockProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

type bedrockCommon struct {
	modelID         *string
	messages        []types.Message
	system          []types.SystemContentBlock
	inferenceConfig *types.InferenceConfiguration
	toolConfig      *types.ToolConfiguration
}

func (p *BedrockProvider) buildCommon(req *Request) bedrockCommon {
	c := bedrockCommon{modelID: aws.String(p.model(req)), messages: bedrockMessages(req.Messages)}
	if req.System != "" {
		c.system = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		c.inferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		c.toolConfig = bedrockToolConfig(req.Tools)
	}
	return c
}

func (p *BedrockProvider) buildInput(req *Request) *bedrockruntime.ConverseInput {
	c := p.buildCommon(req)
	return &bedrockruntime.ConverseInput{
		ModelId: c.modelID, Messages: c.messages, System: c.system,
		InferenceConfig: c.inferenceConfig, ToolConfig: c.toolConfig,
	}
}

// Send implements the batched half of the uniform contract via Converse.
func (p *BedrockProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	model := p.model(req)
	out, err := p.client.Converse(ctx, p.buildInput(req))
	if err != nil {
		return nil, NewError(p.Name(), model, err)
	}

	resp := &Response{Model: model, Role: models.RoleAssistant, ProviderName: p.Name(), StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp, nil
	}
	for _, block := range msg.Value.Content {
		appendBedrockBlock(resp, block)
	}
	return resp, nil
}

func appendBedrockBlock(resp *Response, block types.ContentBlock) {
	switch v := block.(type) {
	case *types.ContentBlockMemberText:
		resp.Content = append(resp.Content, models.Text(v.Value))
	case *types.ContentBlockMemberToolUse:
		input, err := v.Value.Input.MarshalSmithyDocument()
		if err != nil {
			input = []byte("{}")
		}
		resp.Content = append(resp.Content, models.ToolUse(aws.ToString(v.Value.ToolUseId), aws.ToString(v.Value.Name), input))
	}
}

// SendStream implements the streaming half via ConverseStream, grounded
// on the teacher's processStream tool-call accumulation loop.
func (p *BedrockProvider) SendStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	model := p.model(req)
	c := p.buildCommon(req)
	streamOut, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         c.modelID,
		Messages:        c.messages,
		System:          c.system,
		InferenceConfig: c.inferenceConfig,
		ToolConfig:      c.toolConfig,
	})
	if err != nil {
		return nil, NewError(p.Name(), model, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		eventStream := streamOut.GetStream()
		defer eventStream.Close()

		var toolID, toolName string
		var toolInput strings.Builder

		for event := range eventStream.Events() {
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID, toolName = aws.ToString(tu.Value.ToolUseId), aws.ToString(tu.Value.Name)
					toolInput.Reset()
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- StreamChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				if toolID != "" {
					out <- StreamChunk{ToolUse: &models.ToolUseContent{ID: toolID, Name: toolName, Input: json.RawMessage(toolInput.String())}}
					toolID = ""
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				out <- StreamChunk{Done: true}
				return
			}
		}
		if err := eventStream.Err(); err != nil {
			out <- StreamChunk{Error: NewError(p.Name(), model, err)}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

func bedrockMessages(messages []models.Message) []types.Message {
	var out []types.Message
	for _, msg := range messages {
		var content []types.ContentBlock
		for _, b := range msg.Content {
			switch b.Type {
			case models.BlockText:
				content = append(content, &types.ContentBlockMemberText{Value: b.Text})
			case models.BlockToolResult:
				content = append(content, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(b.ToolResult.ToolUseID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: b.ToolResult.Content}},
				}})
			case models.BlockToolUse:
				var input any
				if err := json.Unmarshal(b.ToolUse.Input, &input); err != nil {
					input = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(b.ToolUse.ID),
					Name:      aws.String(b.ToolUse.Name),
					Input:     document.NewLazyDocument(input),
				}})
			}
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out
}

func bedrockToolConfig(tools []ToolDefinition) *types.ToolConfiguration {
	specs := make([]types.Tool, len(tools))
	for i, t := range tools {
		var schemaDoc any
		_ = json.Unmarshal(t.InputSchema, &schemaDoc)
		specs[i] = &types.ToolMemberToolSpec{Value: types.ToolSpec{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
		}}
	}
	return &types.ToolConfiguration{Tools: specs}
}
