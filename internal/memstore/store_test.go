package memstore

import (
	"context"
	"testing"

	"finch/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertConversationAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertConversation(ctx, models.RoleUser, "how do I configure the fallback chain for providers?", nil, nil); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	if _, err := s.InsertConversation(ctx, models.RoleAssistant, "set local_preferred to true in the provider config", nil, nil); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d rows, want 2", len(recent))
	}
	if recent[0].Role != models.RoleAssistant {
		t.Fatalf("Recent[0].Role = %v, want assistant (newest first)", recent[0].Role)
	}
}

func TestQueryReturnsIndexedContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	texts := []string{
		"deploying the payment service requires an approval from the on-call lead",
		"the weather today is sunny with a light breeze",
		"rolling back the payment service deploy after the error spike",
	}
	for _, txt := range texts {
		if _, err := s.InsertConversation(ctx, models.RoleUser, txt, nil, nil); err != nil {
			t.Fatalf("InsertConversation(%q): %v", txt, err)
		}
	}

	results, err := s.Query(ctx, "payment service deployment", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("Query returned no results")
	}
}

func TestShortContentSkipsIndexing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertConversation(ctx, models.RoleUser, "hi", nil, nil); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	if s.Tree().Size() != 0 {
		t.Fatalf("short greeting should not be indexed, tree size = %d", s.Tree().Size())
	}
}

func TestReopenRebuildsTree(t *testing.T) {
	dir := t.TempDir() + "/finch-test.db"
	s1, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if _, err := s1.InsertConversation(ctx, models.RoleUser, "explain the agentic tool loop turn limit", nil, nil); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	sizeBefore := s1.Tree().Size()
	s1.Close()

	s2, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.Tree().Size() != sizeBefore {
		t.Fatalf("reopened tree size = %d, want %d", s2.Tree().Size(), sizeBefore)
	}
}
