package tool

import (
	"context"
	"encoding/json"
)

// SubAgentRunner runs a nested bounded agentic loop against a scoped
// task and returns its final text, or an error. It is injected rather
// than imported directly: internal/agentloop depends on this package for
// its tool registry, so the dependency must run tool -> (func value) and
// not tool -> agentloop, to avoid an import cycle.
type SubAgentRunner func(ctx context.Context, task string) (string, error)

// SubAgentTool implements the "sub-agent spawn" capability named in
// spec §1's purpose line and supplemented from
// original_source/src/tools/implementations/spawn.rs (SPEC_FULL.md §12):
// spawn a nested bounded agentic loop against a scoped sub-task and
// return its final text as the tool result.
type SubAgentTool struct {
	Run SubAgentRunner
}

func NewSubAgentTool(run SubAgentRunner) *SubAgentTool { return &SubAgentTool{Run: run} }

func (t *SubAgentTool) Name() string { return "spawn_subagent" }
func (t *SubAgentTool) Description() string {
	return "Spawn a nested agent to complete a scoped sub-task and return its result."
}
func (t *SubAgentTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"task":{"type":"string","description":"The sub-task to delegate."}},"required":["task"]}`)
}

func (t *SubAgentTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "task")
}

func (t *SubAgentTool) Execute(ctx context.Context, _ Context, input json.RawMessage) Result {
	task := stringField(input, "task")
	if task == "" {
		return ErrorResult("task is required")
	}
	if t.Run == nil {
		return ErrorResult("sub-agent spawning is not configured")
	}
	out, err := t.Run(ctx, task)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return OKResult(out)
}
