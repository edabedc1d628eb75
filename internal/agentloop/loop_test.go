package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"finch/internal/permission"
	"finch/internal/provider"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/pkg/models"
)

type scriptedSender struct {
	responses []*provider.Response
	calls     int
}

func (s *scriptedSender) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	resp := s.responses[s.calls]
	if s.calls < len(s.responses)-1 {
		s.calls++
	}
	return resp, nil
}

func textResponse(text string) *provider.Response {
	return &provider.Response{
		Content:      []models.ContentBlock{models.Text(text)},
		ProviderName: "local",
	}
}

func toolUseResponse(id, name string, input json.RawMessage) *provider.Response {
	return &provider.Response{
		Content:      []models.ContentBlock{models.ToolUse(id, name, input)},
		ProviderName: "local",
	}
}

func newTestExecutor(reg *tool.Registry) *tool.Executor {
	perm := permission.NewManager(nil, permission.RuleAllow)
	return tool.NewExecutor(reg, perm, nil, false, nil)
}

func TestRunTerminatesOnToolFreeResponse(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.Response{textResponse("all done")}}
	reg := tool.NewRegistry()

	loop := New(Config{Sender: sender, Registry: reg, Executor: newTestExecutor(reg), MaxTurns: 5}, tool.Context{}, nil)
	outcome, err := loop.Run(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("hi")}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Text != "all done" {
		t.Errorf("Text = %q", outcome.Text)
	}
	if outcome.TurnsUsed != 1 {
		t.Errorf("TurnsUsed = %d, want 1", outcome.TurnsUsed)
	}
	if outcome.ProviderUsed != "local" {
		t.Errorf("ProviderUsed = %q, want local", outcome.ProviderUsed)
	}
}

func TestRunExecutesToolThenTerminates(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(tool.NewReadTool(t.TempDir()))

	sender := &scriptedSender{responses: []*provider.Response{
		toolUseResponse("t1", "read", json.RawMessage(`{"file_path":"nope.txt"}`)),
		textResponse("handled the error"),
	}}

	loop := New(Config{Sender: sender, Registry: reg, Executor: newTestExecutor(reg), MaxTurns: 5}, tool.Context{WorkDir: t.TempDir()}, nil)
	outcome, err := loop.Run(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("read nope.txt")}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.TurnsUsed != 2 {
		t.Errorf("TurnsUsed = %d, want 2", outcome.TurnsUsed)
	}
	// conversation should contain: user, assistant(tool_use), user(tool_result)
	if len(outcome.Conversation) != 3 {
		t.Fatalf("len(Conversation) = %d, want 3", len(outcome.Conversation))
	}
	if !outcome.Conversation[1].HasToolUse() {
		t.Error("expected assistant turn to carry the tool use")
	}
	if len(outcome.Conversation[2].ToolResults()) != 1 {
		t.Error("expected a tool result appended after execution")
	}
}

func TestRunStopsOnCancelBeforeFirstTurn(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.Response{textResponse("should not be reached")}}
	reg := tool.NewRegistry()
	cancel := query.NewCancelSignal()
	cancel.Fire()

	loop := New(Config{Sender: sender, Registry: reg, Executor: newTestExecutor(reg), MaxTurns: 5}, tool.Context{}, cancel)
	outcome, err := loop.Run(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("hi")}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Cancelled {
		t.Error("expected Cancelled outcome")
	}
	if sender.calls != 0 {
		t.Error("expected no provider call once already cancelled")
	}
}

func TestRunReturnsTurnLimitError(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(tool.NewReadTool(t.TempDir()))
	sender := &scriptedSender{responses: []*provider.Response{
		toolUseResponse("t1", "read", json.RawMessage(`{"file_path":"nope.txt"}`)),
	}}

	loop := New(Config{Sender: sender, Registry: reg, Executor: newTestExecutor(reg), MaxTurns: 2}, tool.Context{WorkDir: t.TempDir()}, nil)
	_, err := loop.Run(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("loop forever")}},
	})
	if err == nil {
		t.Fatal("expected ErrTurnLimit")
	}
	var limitErr *ErrTurnLimit
	if !errors.As(err, &limitErr) {
		t.Fatalf("err = %v, want *ErrTurnLimit", err)
	}
	if limitErr.MaxTurns != 2 {
		t.Errorf("MaxTurns = %d, want 2", limitErr.MaxTurns)
	}
}
