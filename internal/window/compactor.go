package window

import (
	"context"
	"fmt"

	"finch/internal/provider"
	"finch/pkg/models"
)

// summaryPrompt asks for the 2-5 sentence summary spec §4.5 describes:
// "preserves key decisions, code written, errors fixed, and any context
// needed to continue naturally."
const summaryPrompt = `Summarize the following conversation turns in 2-5 sentences. Preserve key decisions, code written, errors fixed, and any context needed to continue the conversation naturally. Reply with only the summary.

%s`

// Summarizer is the narrow contract a Compactor needs: a single-turn,
// non-streaming completion call. *provider.Chain and any
// *provider.Provider member satisfy it; spec §4.5 calls this "a
// dedicated 'summarizer' provider (which may be any configured
// provider, typically a cheap one)".
type Summarizer interface {
	Send(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Compactor turns a dropped message slice into the synthetic
// user/assistant summary pair spec §4.5 prepends to a sent window.
type Compactor struct {
	Summarizer Summarizer
	Model      string
	MaxTokens  int
}

// NewCompactor builds a Compactor. If maxTokens is 0, 256 is used: a
// summary is always short.
func NewCompactor(s Summarizer, model string, maxTokens int) *Compactor {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Compactor{Summarizer: s, Model: model, MaxTokens: maxTokens}
}

// Compact summarizes dropped and returns the synthetic two-message
// prefix spec §4.5 specifies: a user message
// "[Summary of earlier context: <summary>]" followed by an assistant
// "Understood." — this pair preserves strict user/assistant alternation.
//
// Failure policy (spec §4.5): if summarization fails, Compact returns
// (nil, err); the caller sends the window as-is and logs a warning
// rather than propagating the error to the user.
func (c *Compactor) Compact(ctx context.Context, dropped []models.Message) ([]models.Message, error) {
	if len(dropped) == 0 {
		return nil, nil
	}
	if c.Summarizer == nil {
		return nil, fmt.Errorf("window: no summarizer configured")
	}

	req := &provider.Request{
		Messages:  []models.Message{{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(fmt.Sprintf(summaryPrompt, renderTranscript(dropped)))}}},
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
	resp, err := c.Summarizer.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("window: compaction summary failed: %w", err)
	}

	summary := resp.TextContent()
	if summary == "" {
		return nil, fmt.Errorf("window: compaction summary empty")
	}

	return []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(fmt.Sprintf("[Summary of earlier context: %s]", summary))}},
		{Role: models.RoleAssistant, Content: []models.ContentBlock{models.Text("Understood.")}},
	}, nil
}

func renderTranscript(messages []models.Message) string {
	out := ""
	for _, m := range messages {
		text := m.TextContent()
		if text == "" {
			continue
		}
		out += string(m.Role) + ": " + text + "\n"
	}
	return out
}
