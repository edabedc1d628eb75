// Package models defines the core data types shared between the agentic
// loop, the provider drivers, and the daemon surface.
package models

import "encoding/json"

// Role tags a Message with who produced it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockType tags a ContentBlock with its concrete payload.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a Message's ordered content list. Exactly
// one of the payload fields is populated, matching Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text carries BlockText payload.
	Text string `json:"text,omitempty"`

	// Image carries BlockImage payload.
	Image *ImageContent `json:"image,omitempty"`

	// ToolUse carries BlockToolUse payload: a model-issued tool invocation.
	ToolUse *ToolUseContent `json:"tool_use,omitempty"`

	// ToolResult carries BlockToolResult payload: the outcome of executing
	// a prior ToolUse block.
	ToolResult *ToolResultContent `json:"tool_result,omitempty"`
}

// ImageContent is an inline base64-encoded image attachment.
type ImageContent struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ToolUseContent is a model's request to invoke a tool.
type ToolUseContent struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultContent is the outcome of executing a ToolUseContent block.
// ToolUseID must reference a ToolUse block in an immediately preceding
// assistant message within the same request (see sanitize.go).
type ToolResultContent struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Text builds a text content block.
func Text(s string) ContentBlock { return ContentBlock{Type: BlockText, Text: s} }

// ToolUse builds a tool-use content block.
func ToolUse(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUse: &ToolUseContent{ID: id, Name: name, Input: input}}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResult: &ToolResultContent{
		ToolUseID: toolUseID, Content: content, IsError: isError,
	}}
}

// Image builds an image content block.
func Image(mediaType, data string) ContentBlock {
	return ContentBlock{Type: BlockImage, Image: &ImageContent{MediaType: mediaType, Data: data}}
}

// Message is one conversation turn: a role plus an ordered list of content
// blocks. See the package doc and spec §3 for the tool-use/tool-result
// pairing invariant.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text concatenates every text block in the message, in order.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool-use block in the message, in order.
func (m Message) ToolUses() []ToolUseContent {
	var out []ToolUseContent
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// ToolResults returns every tool-result block in the message, in order.
func (m Message) ToolResults() []ToolResultContent {
	var out []ToolResultContent
	for _, b := range m.Content {
		if b.Type == BlockToolResult && b.ToolResult != nil {
			out = append(out, *b.ToolResult)
		}
	}
	return out
}

// HasToolUse reports whether the message carries any tool-use block.
func (m Message) HasToolUse() bool { return len(m.ToolUses()) > 0 }
