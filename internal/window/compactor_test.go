package window

import (
	"context"
	"errors"
	"testing"

	"finch/internal/provider"
	"finch/pkg/models"
)

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: []models.ContentBlock{models.Text(f.text)}}, nil
}

func TestCompactProducesAlternatingPair(t *testing.T) {
	c := NewCompactor(&fakeSummarizer{text: "Discussed lifetimes and fixed a borrow checker error."}, "cheap-model", 0)

	dropped := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("How do lifetimes work?")}},
		{Role: models.RoleAssistant, Content: []models.ContentBlock{models.Text("They bound reference validity.")}},
	}

	pair, err := c.Compact(context.Background(), dropped)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(pair) != 2 {
		t.Fatalf("len(pair) = %d, want 2", len(pair))
	}
	if pair[0].Role != models.RoleUser || pair[1].Role != models.RoleAssistant {
		t.Errorf("pair roles = %v, %v; want user, assistant", pair[0].Role, pair[1].Role)
	}
	if pair[1].TextContent() != "Understood." {
		t.Errorf("second message = %q, want %q", pair[1].TextContent(), "Understood.")
	}
}

func TestCompactEmptyDroppedIsNoop(t *testing.T) {
	c := NewCompactor(&fakeSummarizer{text: "x"}, "m", 0)
	pair, err := c.Compact(context.Background(), nil)
	if err != nil || pair != nil {
		t.Errorf("expected nil, nil for empty dropped set; got %v, %v", pair, err)
	}
}

func TestCompactFailurePropagatesNotPanics(t *testing.T) {
	c := NewCompactor(&fakeSummarizer{err: errors.New("upstream down")}, "m", 0)
	dropped := []models.Message{{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("hi")}}}

	_, err := c.Compact(context.Background(), dropped)
	if err == nil {
		t.Fatal("expected error from failed summarizer")
	}
}

func TestAutoCompactorBelowThresholdIsNoop(t *testing.T) {
	a := NewAutoCompactor(AutoCompactConfig{Enabled: true, ContextLimit: 1000000, ThresholdFraction: 0.8, KeepRecent: 2},
		NewCompactor(&fakeSummarizer{text: "summary"}, "m", 0))

	full := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text("hi")}},
	}
	out, ran, err := a.MaybeCompact(context.Background(), full)
	if err != nil {
		t.Fatalf("MaybeCompact: %v", err)
	}
	if ran {
		t.Error("expected no compaction below threshold")
	}
	if len(out) != len(full) {
		t.Error("expected conversation unchanged")
	}
}

func TestAutoCompactorAboveThresholdReplacesHead(t *testing.T) {
	var full []models.Message
	big := make([]byte, 400)
	for i := range big {
		big[i] = 'x'
	}
	for i := 0; i < 20; i++ {
		full = append(full, models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(string(big))}})
	}

	a := NewAutoCompactor(AutoCompactConfig{Enabled: true, ContextLimit: 500, ThresholdFraction: 0.5, KeepRecent: 3},
		NewCompactor(&fakeSummarizer{text: "summary of the earlier turns"}, "m", 0))

	out, ran, err := a.MaybeCompact(context.Background(), full)
	if err != nil {
		t.Fatalf("MaybeCompact: %v", err)
	}
	if !ran {
		t.Fatal("expected compaction to run above threshold")
	}
	if len(out) != 1+3 {
		t.Fatalf("len(out) = %d, want 4 (1 summary + 3 kept)", len(out))
	}
}
