package brain

import "testing"

func TestInsertNamesFromTaskSlug(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("investigate auth tests thoroughly please")
	if e.Name != "investigate-auth-tests" {
		t.Errorf("Name = %q, want %q", e.Name, "investigate-auth-tests")
	}
	if e.State != StateRunning {
		t.Errorf("State = %v, want %v", e.State, StateRunning)
	}
}

func TestInsertNameCollisionGetsSuffix(t *testing.T) {
	r := NewRegistry()
	first := r.Insert("investigate auth tests")
	second := r.Insert("investigate auth tests")

	if first.Name != "investigate-auth-tests" {
		t.Errorf("first.Name = %q", first.Name)
	}
	if second.Name != "investigate-auth-tests-2" {
		t.Errorf("second.Name = %q, want %q", second.Name, "investigate-auth-tests-2")
	}
}

func TestAskQuestionAndAnswerRoundTrip(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("task")

	reply, ok := r.AskQuestion(e.ID, "which approach?", []string{"a", "b"})
	if !ok {
		t.Fatal("AskQuestion returned false")
	}

	d, _ := r.ByID(e.ID)
	if d.State != StateWaitingForInput {
		t.Errorf("state = %v, want %v", d.State, StateWaitingForInput)
	}
	if d.PendingQuestion == nil || d.PendingQuestion.Question != "which approach?" {
		t.Fatal("expected pending question to be recorded")
	}

	if !r.AnswerQuestion(e.ID, "a") {
		t.Fatal("AnswerQuestion returned false")
	}
	if got := <-reply; got != "a" {
		t.Errorf("reply = %q, want %q", got, "a")
	}

	d2, _ := r.ByID(e.ID)
	if d2.State != StateRunning {
		t.Errorf("state after answer = %v, want %v", d2.State, StateRunning)
	}
}

func TestPresentPlanApproveTransitionsToDead(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("task")

	reply, ok := r.PresentPlan(e.ID, "Add 3 tests and a mock")
	if !ok {
		t.Fatal("PresentPlan returned false")
	}

	d, _ := r.ByID(e.ID)
	if d.State != StatePlanReady {
		t.Errorf("state = %v, want %v", d.State, StatePlanReady)
	}

	if !r.RespondToPlan(e.ID, PlanResponse{Kind: PlanApprove}) {
		t.Fatal("RespondToPlan returned false")
	}
	resp := <-reply
	if resp.Kind != PlanApprove {
		t.Errorf("resp.Kind = %v, want %v", resp.Kind, PlanApprove)
	}

	d2, _ := r.ByID(e.ID)
	if d2.State != StateDead {
		t.Errorf("state after approve = %v, want %v", d2.State, StateDead)
	}
}

func TestPresentPlanChangesRequestedStaysRunning(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("task")
	r.PresentPlan(e.ID, "plan")

	r.RespondToPlan(e.ID, PlanResponse{Kind: PlanChangesRequested, Feedback: "add edge cases"})

	d, _ := r.ByID(e.ID)
	if d.State != StateRunning {
		t.Errorf("state = %v, want %v", d.State, StateRunning)
	}
}

func TestCancelClosesPendingChannelsCleanly(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("task")
	reply, _ := r.AskQuestion(e.ID, "q?", nil)

	if !r.Cancel(e.ID) {
		t.Fatal("Cancel returned false")
	}

	_, open := <-reply
	if open {
		t.Error("expected pending question channel to be closed on cancel")
	}

	d, _ := r.ByID(e.ID)
	if d.State != StateDead {
		t.Errorf("state = %v, want %v", d.State, StateDead)
	}
}

func TestListActiveExcludesDead(t *testing.T) {
	r := NewRegistry()
	live := r.Insert("still going")
	dead := r.Insert("finished")
	r.Cancel(dead.ID)

	active := r.ListActive()
	if len(active) != 1 || active[0].ID != live.ID {
		t.Errorf("ListActive = %+v, want only %q", active, live.ID)
	}
	if len(r.ListAll()) != 2 {
		t.Errorf("ListAll length = %d, want 2", len(r.ListAll()))
	}
}

func TestByNameLookup(t *testing.T) {
	r := NewRegistry()
	e := r.Insert("investigate auth tests")

	d, ok := r.ByName("investigate-auth-tests")
	if !ok || d.ID != e.ID {
		t.Errorf("ByName lookup failed: %+v, %v", d, ok)
	}
}
