package query

import (
	"testing"
	"time"

	"finch/pkg/models"
)

func TestCreateStartsProcessing(t *testing.T) {
	m := NewManager()
	id := m.Create([]models.Message{{Role: models.RoleUser}})

	state, ok := m.GetState(id)
	if !ok {
		t.Fatalf("expected query to exist")
	}
	if state != StateProcessing {
		t.Errorf("state = %v, want %v", state, StateProcessing)
	}
}

func TestCancelFiresSignalEvenBeforeObserved(t *testing.T) {
	m := NewManager()
	id := m.Create(nil)

	if !m.Cancel(id) {
		t.Fatalf("cancel returned false for existing query")
	}

	meta, ok := m.GetMetadata(id)
	if !ok {
		t.Fatalf("expected metadata")
	}
	if meta.State != StateCancelled {
		t.Errorf("state = %v, want %v", meta.State, StateCancelled)
	}
	if !meta.Cancel.Cancelled() {
		t.Error("expected cancellation signal to be fired")
	}
}

func TestCancelUnknownID(t *testing.T) {
	m := NewManager()
	if m.Cancel("does-not-exist") {
		t.Error("expected cancel of unknown id to fail")
	}
}

func TestUpdateStateWithResponse(t *testing.T) {
	m := NewManager()
	id := m.Create(nil)

	m.UpdateState(id, StateCompleted, WithResponse("4"))

	meta, _ := m.GetMetadata(id)
	if meta.State != StateCompleted || meta.Response != "4" {
		t.Errorf("got state=%v response=%q", meta.State, meta.Response)
	}
}

func TestCleanupOldKeepsNonTerminal(t *testing.T) {
	m := NewManager()
	processing := m.Create(nil)
	done := m.Create(nil)
	m.UpdateState(done, StateCompleted, WithResponse("ok"))

	// Force both timestamps into the past.
	m.mu.Lock()
	m.queries[processing].UpdatedAt = time.Now().Add(-time.Hour)
	m.queries[done].UpdatedAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	removed := m.CleanupOld(time.Minute)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := m.GetState(processing); !ok {
		t.Error("non-terminal query was evicted")
	}
	if _, ok := m.GetState(done); ok {
		t.Error("terminal query survived cleanup")
	}
}

func TestCancelSignalFireIsIdempotent(t *testing.T) {
	c := NewCancelSignal()
	c.Fire()
	c.Fire() // must not panic on double-close
	if !c.Cancelled() {
		t.Error("expected signal to report cancelled")
	}
}
