package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// BashTool runs a shell command via /bin/sh -c, matching
// original_source's "bash" tool (the original `finch` CLI shells out
// rather than arg-parsing a restricted command grammar). Safety is
// enforced upstream by permission.CheckConstitutional and the executor's
// serialization policy, not by this tool.
type BashTool struct {
	WorkDir        string
	DefaultTimeout time.Duration
}

// NewBashTool constructs a BashTool rooted at workDir.
func NewBashTool(workDir string) *BashTool {
	return &BashTool{WorkDir: workDir, DefaultTimeout: 2 * time.Minute}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command and return its combined stdout/stderr."
}

func (t *BashTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute."},
			"cwd": {"type": "string", "description": "Working directory, relative to the workspace root."},
			"timeout_seconds": {"type": "integer", "minimum": 0}
		},
		"required": ["command"]
	}`)
}

type bashInput struct {
	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (t *BashTool) Signature(input json.RawMessage, ctx Context) string {
	var in bashInput
	_ = json.Unmarshal(input, &in)
	dir := in.Cwd
	if dir == "" {
		dir = ctx.WorkDir
	}
	return fmt.Sprintf("%s in %s", in.Command, dir)
}

func (t *BashTool) Execute(ctx context.Context, toolCtx Context, input json.RawMessage) Result {
	var in bashInput
	if err := json.Unmarshal(input, &in); err != nil {
		return ErrorResult("invalid input: " + err.Error())
	}

	timeout := t.DefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dir := in.Cwd
	if dir == "" {
		dir = toolCtx.WorkDir
	}
	if dir == "" {
		dir = t.WorkDir
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", in.Command)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if toolCtx.Output != nil {
		cmd.Stdout = io.MultiWriter(&out, toolCtx.Output)
		cmd.Stderr = cmd.Stdout
	}

	err := cmd.Run()
	if err != nil {
		return Result{Content: out.String() + "\n" + err.Error(), IsError: true}
	}
	return OKResult(out.String())
}
