package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"finch/internal/permission"
	"finch/pkg/models"
)

func TestRegistryListAndValidate(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	r.Register(NewReadTool(dir))
	r.Register(NewWriteTool(dir))

	defs := r.ListAllTools()
	if len(defs) != 2 {
		t.Fatalf("ListAllTools() returned %d, want 2", len(defs))
	}

	readTool, _ := r.Get("read")
	if err := r.ValidateInput(readTool, []byte(`{"file_path":"a.txt"}`)); err != nil {
		t.Fatalf("ValidateInput valid input: %v", err)
	}
	if err := r.ValidateInput(readTool, []byte(`{}`)); err == nil {
		t.Fatal("ValidateInput should reject missing required field")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteTool(dir)
	read := NewReadTool(dir)
	toolCtx := Context{WorkDir: dir}

	in, _ := json.Marshal(map[string]string{"file_path": "note.txt", "content": "hello finch"})
	res := write.Execute(context.Background(), toolCtx, in)
	if res.IsError {
		t.Fatalf("write failed: %s", res.Content)
	}

	in2, _ := json.Marshal(map[string]string{"file_path": "note.txt"})
	res2 := read.Execute(context.Background(), toolCtx, in2)
	if res2.IsError || res2.Content != "hello finch" {
		t.Fatalf("read = %+v", res2)
	}
}

func TestEditRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("foo foo"), 0o644)

	edit := NewEditTool(dir)
	in, _ := json.Marshal(map[string]string{"file_path": "f.txt", "old_text": "foo", "new_text": "bar"})
	res := edit.Execute(context.Background(), Context{WorkDir: dir}, in)
	if !res.IsError {
		t.Fatal("expected ambiguous edit to fail")
	}
}

func TestPatchAppliesUnifiedDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greet.txt")
	os.WriteFile(path, []byte("hello\nworld\n"), 0o644)

	patch := "--- a/greet.txt\n+++ b/greet.txt\n@@ -1,2 +1,2 @@\n hello\n-world\n+finch\n"
	p := NewPatchTool(dir)
	in, _ := json.Marshal(map[string]string{"patch": patch})
	res := p.Execute(context.Background(), Context{WorkDir: dir}, in)
	if res.IsError {
		t.Fatalf("patch failed: %s", res.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello\nfinch\n" {
		t.Fatalf("file content = %q", string(data))
	}
}

func TestExecutorDeniesConstitutionalViolation(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	registry.Register(NewBashTool(dir))
	perm := permission.NewManager(nil, permission.RuleAllow)
	exec := NewExecutor(registry, perm, nil, false, nil)

	input, _ := json.Marshal(map[string]string{"command": "rm -rf /"})
	results := exec.Execute(context.Background(), []models.ToolUseContent{
		{ID: "t1", Name: "bash", Input: input},
	}, Context{WorkDir: dir})

	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected rm -rf to be denied, got %+v", results)
	}
}

func TestExecutorDeniesAskWithoutInteractiveSession(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	registry.Register(NewReadTool(dir))
	perm := permission.NewManager(nil, permission.RuleAsk)
	exec := NewExecutor(registry, perm, nil, false, nil)

	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644)
	input, _ := json.Marshal(map[string]string{"file_path": "a.txt"})
	results := exec.Execute(context.Background(), []models.ToolUseContent{
		{ID: "t1", Name: "read", Input: input},
	}, Context{WorkDir: dir})

	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected non-interactive AskUser to deny, got %+v", results)
	}
}

func TestExecutorPreservesResultOrder(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("B"), 0o644)

	registry := NewRegistry()
	registry.Register(NewReadTool(dir))
	perm := permission.NewManager(nil, permission.RuleAllow)
	exec := NewExecutor(registry, perm, nil, false, nil)

	inA, _ := json.Marshal(map[string]string{"file_path": "a.txt"})
	inB, _ := json.Marshal(map[string]string{"file_path": "b.txt"})
	results := exec.Execute(context.Background(), []models.ToolUseContent{
		{ID: "t1", Name: "read", Input: inA},
		{ID: "t2", Name: "read", Input: inB},
	}, Context{WorkDir: dir})

	if len(results) != 2 || results[0].ToolUseID != "t1" || results[1].ToolUseID != "t2" {
		t.Fatalf("result order not preserved: %+v", results)
	}
	if results[0].Content != "A" || results[1].Content != "B" {
		t.Fatalf("result contents wrong: %+v", results)
	}
}
