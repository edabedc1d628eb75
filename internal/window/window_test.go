package window

import (
	"testing"

	"finch/pkg/models"
)

func userMsg(text string) models.Message {
	return models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(text)}}
}

func TestSelectKeepsAtLeastOneMessage(t *testing.T) {
	big := make([]byte, 100000)
	for i := range big {
		big[i] = 'x'
	}
	full := []models.Message{userMsg(string(big))}

	sel := Select(full, Config{MaxMessages: 60, MaxTokens: 10})
	if len(sel.Sent) != 1 {
		t.Fatalf("len(Sent) = %d, want 1 (at least the most recent message)", len(sel.Sent))
	}
}

func TestSelectDropsOldestByMessageCap(t *testing.T) {
	var full []models.Message
	for i := 0; i < 10; i++ {
		full = append(full, userMsg("m"))
	}

	sel := Select(full, Config{MaxMessages: 3, MaxTokens: 100000})
	if len(sel.Sent) != 3 {
		t.Fatalf("len(Sent) = %d, want 3", len(sel.Sent))
	}
	if len(sel.Dropped) != 7 {
		t.Fatalf("len(Dropped) = %d, want 7", len(sel.Dropped))
	}
}

func TestSelectDropsOldestByTokenBudget(t *testing.T) {
	full := []models.Message{
		userMsg("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), // ~10 tokens
		userMsg("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		userMsg("c"), // recent, tiny
	}

	sel := Select(full, Config{MaxMessages: 60, MaxTokens: 12})
	if len(sel.Sent) == 0 {
		t.Fatal("expected at least one message retained")
	}
	if sel.Sent[len(sel.Sent)-1].TextContent() != "c" {
		t.Error("expected the most recent message to be retained")
	}
}

func TestEstimateTotalTokensMonotonic(t *testing.T) {
	short := []models.Message{userMsg("hi")}
	long := []models.Message{userMsg("hi"), userMsg("a much longer message with more words in it")}

	if EstimateTotalTokens(long) <= EstimateTotalTokens(short) {
		t.Error("expected longer conversation to estimate more tokens")
	}
}
