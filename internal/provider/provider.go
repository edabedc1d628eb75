// Package provider implements the uniform LLM provider contract of spec
// §4.4: a batched and streaming request/response shape shared across
// heterogeneous upstream APIs, plus the fallback chain that tries
// providers in order until one succeeds.
package provider

import (
	"context"
	"encoding/json"

	"finch/pkg/models"
)

// ToolDefinition describes a callable tool as surfaced to a provider,
// independent of how internal/tool registers or executes it.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is the uniform ProviderRequest of spec §3: {messages[], model,
// max_tokens, system?, tools?[], temperature?, stream}.
type Request struct {
	Messages    []models.Message
	Model       string
	MaxTokens   int
	System      string
	Tools       []ToolDefinition
	Temperature float64
	Stream      bool
}

// Response is the uniform ProviderResponse of spec §3: {id, model,
// content-blocks[], stop-reason?, role, provider-name}.
type Response struct {
	ID           string
	Model        string
	Content      []models.ContentBlock
	StopReason   string
	Role         models.Role
	ProviderName string
	InputTokens  int
	OutputTokens int
}

// TextContent concatenates every text block in the response, in order.
func (r *Response) TextContent() string {
	var out string
	for _, b := range r.Content {
		if b.Type == models.BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool-use block in the response, in order.
func (r *Response) ToolUses() []models.ToolUseContent {
	var out []models.ToolUseContent
	for _, b := range r.Content {
		if b.Type == models.BlockToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// StreamChunk is one element of a streaming response: a partial text
// delta, a complete tool-use block, a terminal Done signal, or an Error
// that terminates the stream (spec §4.4 "streaming").
type StreamChunk struct {
	Text         string
	ToolUse      *models.ToolUseContent
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Provider is the uniform contract every driver implements: batched
// Send, streaming SendStream, and capability/metadata accessors (spec
// §4.4 "Uniform contract").
type Provider interface {
	Name() string
	DefaultModel() string
	SupportsStreaming() bool
	SupportsTools() bool
	Send(ctx context.Context, req *Request) (*Response, error)
	SendStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}
