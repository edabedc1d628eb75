package brain

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"finch/internal/agentloop"
	"finch/internal/permission"
	"finch/internal/provider"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/pkg/models"
)

type planningSender struct {
	calls int32
}

func (s *planningSender) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n == 1 {
		input, _ := json.Marshal(map[string]string{"plan": "Add 3 tests and a mock"})
		return &provider.Response{
			Content: []models.ContentBlock{models.ToolUse("plan-1", "present_plan", input)},
		}, nil
	}
	return &provider.Response{Content: []models.ContentBlock{models.Text("Done.")}}, nil
}

func TestBrainLoopPlanApprovalTerminates(t *testing.T) {
	registry := NewRegistry()
	entry := registry.Insert("investigate auth tests")

	permManager := permission.NewManager(nil, permission.RuleAllow)
	baseTools := tool.NewRegistry()

	runner := &Runner{
		Registry: registry,
		Loop: agentloop.Config{
			Sender:   &planningSender{},
			Registry: baseTools,
		},
		PermManager: permManager,
	}

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(context.Background(), entry, query.NewCancelSignal())
	}()

	// Wait for the brain to reach PlanReady, then approve.
	deadline := time.After(2 * time.Second)
	for {
		d, _ := registry.ByID(entry.ID)
		if d.State == StatePlanReady {
			break
		}
		select {
		case <-deadline:
			t.Fatal("brain never reached PlanReady")
		case <-time.After(time.Millisecond):
		}
	}

	if !registry.RespondToPlan(entry.ID, PlanResponse{Kind: PlanApprove}) {
		t.Fatal("RespondToPlan failed")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("brain loop did not terminate after plan approval")
	}

	d, _ := registry.ByID(entry.ID)
	if d.State != StateDead {
		t.Errorf("final state = %v, want %v", d.State, StateDead)
	}
}
