package models

import "testing"

func TestMessageTextContent(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: []ContentBlock{
		Text("hello "),
		ToolUse("t1", "bash", nil),
		Text("world"),
	}}
	if got := m.TextContent(); got != "hello world" {
		t.Fatalf("TextContent() = %q, want %q", got, "hello world")
	}
}

func TestMessageToolUsesAndResults(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: []ContentBlock{
		ToolUse("t1", "bash", nil),
		ToolUse("t2", "read", nil),
	}}
	uses := m.ToolUses()
	if len(uses) != 2 || uses[0].ID != "t1" || uses[1].Name != "read" {
		t.Fatalf("ToolUses() = %+v", uses)
	}
	if !m.HasToolUse() {
		t.Fatal("HasToolUse() = false, want true")
	}

	r := Message{Role: RoleUser, Content: []ContentBlock{
		ToolResultBlock("t1", "ok", false),
		ToolResultBlock("t2", "boom", true),
	}}
	results := r.ToolResults()
	if len(results) != 2 || results[0].ToolUseID != "t1" || !results[1].IsError {
		t.Fatalf("ToolResults() = %+v", results)
	}
}
