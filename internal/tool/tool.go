// Package tool implements the tool registry and executor of spec §4.6:
// name-indexed tool definitions, permission-gated dispatch, and the
// builtin tool set (bash, file I/O, patch, glob/grep, web_fetch, and
// sub-agent spawn). Grounded on the teacher's internal/tools/exec
// package for the Tool interface shape (Name/Description/Schema/Execute)
// and internal/exec for shell-argument safety helpers; schema validation
// follows pkg/pluginsdk/validation.go's santhosh-tekuri/jsonschema/v5
// usage.
package tool

import (
	"context"
	"encoding/json"
	"io"
)

// Definition is what a tool publishes to providers so they can form
// valid tool-use blocks (spec §4.6 Registry).
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Result is the outcome of executing one tool-use (spec §4.6 Executor:
// "execute(tool-use, context, …) → {content, is_error}").
type Result struct {
	Content string
	IsError bool
}

// ErrorResult builds a Result carrying an error message, used both for
// tool-reported failures and the catastrophic-execute-error fallback
// (spec §4.6 step 5).
func ErrorResult(msg string) Result { return Result{Content: "Error: " + msg, IsError: true} }

// OKResult builds a successful Result.
func OKResult(content string) Result { return Result{Content: content} }

// Context carries per-invocation state through to a tool's Execute
// method: a working directory for path resolution, a live-output sink
// (§13 Open Question: modeled as an io.Writer), and the session id for
// sub-agent scoping.
type Context struct {
	WorkDir   string
	Output    io.Writer
	SessionID string
}

// Tool is one executable capability exposed to the provider.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	// Signature renders the ToolSignature context-key for input (spec
	// §4.6 step 1): a canonical human-readable rendering of the
	// invocation's salient inputs, e.g. "cargo test in /path".
	Signature(input json.RawMessage, ctx Context) string
	Execute(ctx context.Context, toolCtx Context, input json.RawMessage) Result
}
