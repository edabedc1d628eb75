package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadTool reads a file's contents. Grounded on the read/glob/grep
// tool-signature rule in spec §4.6 step 1: "read/glob/grep → target
// path".
type ReadTool struct{ WorkDir string }

func NewReadTool(workDir string) *ReadTool { return &ReadTool{WorkDir: workDir} }

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read a file's contents." }
func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"file_path":{"type":"string"}},"required":["file_path"]}`)
}

func (t *ReadTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "file_path")
}

func (t *ReadTool) Execute(_ context.Context, toolCtx Context, input json.RawMessage) Result {
	path := resolvePath(toolCtx, t.WorkDir, stringField(input, "file_path"))
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return OKResult(string(data))
}

// WriteTool writes (overwrites) a whole file.
type WriteTool struct{ WorkDir string }

func NewWriteTool(workDir string) *WriteTool { return &WriteTool{WorkDir: workDir} }

func (t *WriteTool) Name() string        { return "write" }
func (t *WriteTool) Description() string { return "Write (overwrite) a file's full contents." }
func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"file_path":{"type":"string"},"content":{"type":"string"}},"required":["file_path","content"]}`)
}

func (t *WriteTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "file_path")
}

func (t *WriteTool) Execute(_ context.Context, toolCtx Context, input json.RawMessage) Result {
	path := resolvePath(toolCtx, t.WorkDir, stringField(input, "file_path"))
	content := stringField(input, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(err.Error())
	}
	return OKResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// EditTool replaces an exact substring within a file, matching the
// spec's "range edit" tool distinct from whole-file write and
// unified-diff patch.
type EditTool struct{ WorkDir string }

func NewEditTool(workDir string) *EditTool { return &EditTool{WorkDir: workDir} }

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return "Replace an exact substring within a file." }
func (t *EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"file_path":{"type":"string"},"old_text":{"type":"string"},"new_text":{"type":"string"}},"required":["file_path","old_text","new_text"]}`)
}

func (t *EditTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "file_path")
}

func (t *EditTool) Execute(_ context.Context, toolCtx Context, input json.RawMessage) Result {
	path := resolvePath(toolCtx, t.WorkDir, stringField(input, "file_path"))
	oldText := stringField(input, "old_text")
	newText := stringField(input, "new_text")

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return ErrorResult("old_text not found in file")
	}
	if count > 1 {
		return ErrorResult(fmt.Sprintf("old_text is ambiguous: %d occurrences", count))
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return ErrorResult(err.Error())
	}
	return OKResult(fmt.Sprintf("edited %s", path))
}

func resolvePath(toolCtx Context, fallback, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	base := toolCtx.WorkDir
	if base == "" {
		base = fallback
	}
	return filepath.Join(base, path)
}

func stringField(input json.RawMessage, key string) string {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
