// Package agentloop implements the agentic loop of spec §4.8: a
// turn-bounded state machine that assembles a ProviderRequest from the
// current conversation, dispatches it through a provider (or fallback
// chain), executes any resulting tool-use blocks, and iterates until the
// provider returns a turn with no tool invocations or the turn limit is
// reached.
//
// Grounded on the teacher's internal/agent.AgenticLoop (loop.go): the
// phase-state-machine shape (Init -> Stream -> Execute Tools -> Continue
// or Complete) and the iteration/wall-time/tool-call bounds in
// LoopConfig are adapted here to spec §4.8's uniform provider.Request
// contract and internal/tool's executor instead of the teacher's
// native-Anthropic-only tool_exec.go.
package agentloop

import (
	"context"
	"fmt"
	"io"

	"finch/internal/observability"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/internal/window"
	"finch/pkg/models"

	"finch/internal/provider"
)

// DefaultMaxTurns is spec §4.8's default turn-limit ("default 25").
const DefaultMaxTurns = 25

// Sender is the minimal contract the loop needs from a provider or
// fallback chain: *provider.Chain and every *provider.Provider member
// satisfy it.
type Sender interface {
	Send(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Config configures one Loop.
type Config struct {
	Sender       Sender
	Registry     *tool.Registry
	Executor     *tool.Executor
	SystemPrompt string
	Model        string
	MaxTokens    int
	MaxTurns     int
	Window       window.Config
	Logger       *observability.Logger
}

func (c Config) sanitized() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Logger == nil {
		c.Logger = observability.NewLogger(observability.LogConfig{Output: io.Discard})
	}
	return c
}

// Loop drives one bounded multi-turn conversation against a Sender,
// dispatching any model-requested tools through an Executor (spec
// §4.8).
type Loop struct {
	cfg      Config
	toolCtx  tool.Context
	cancel   *query.CancelSignal
	turnHook func(turn int, conv []models.Message)
}

// New builds a Loop. cancel may be nil, in which case the loop is never
// cooperatively cancellable (used by brain's bounded sub-loops that
// manage their own cancellation via the registry).
func New(cfg Config, toolCtx tool.Context, cancel *query.CancelSignal) *Loop {
	return &Loop{cfg: cfg.sanitized(), toolCtx: toolCtx, cancel: cancel}
}

// SetTurnHook installs a callback invoked at the start of each iteration
// with the conversation accumulated so far, used by the daemon HTTP
// surface to stream intermediate state and by the brain loop to append
// to its event log.
func (l *Loop) SetTurnHook(fn func(turn int, conv []models.Message)) { l.turnHook = fn }

// Outcome is returned by Run: the final text (if the loop terminated
// cleanly), the full conversation including every tool round-trip, and
// an error classifying how the loop ended (nil on clean termination).
type Outcome struct {
	Text         string
	Conversation []models.Message
	TurnsUsed    int
	Cancelled    bool
	// ProviderUsed is the Name() of whichever provider answered the
	// final turn, surfaced so callers (the daemon HTTP surface's
	// node-stats local_pct) can attribute the query.
	ProviderUsed string
}

// ErrTurnLimit is returned when the loop exhausts its turn budget
// without the provider returning a tool-free response (spec §4.8: "the
// loop returns an error indicating the limit was hit; the conversation
// up to that point is preserved for the caller").
type ErrTurnLimit struct{ MaxTurns int }

func (e *ErrTurnLimit) Error() string {
	return fmt.Sprintf("agentloop: turn limit (%d) reached without a tool-free response", e.MaxTurns)
}

// Run executes the loop starting from conv (conv[0] is typically the
// user's opening message) and returns once the provider emits a
// tool-free turn, the turn limit is hit, or cancel fires.
func (l *Loop) Run(ctx context.Context, conv []models.Message) (*Outcome, error) {
	conversation := append([]models.Message(nil), conv...)

	for turn := 1; turn <= l.cfg.MaxTurns; turn++ {
		if l.cancelled() {
			return &Outcome{Conversation: conversation, TurnsUsed: turn - 1, Cancelled: true}, nil
		}
		if l.turnHook != nil {
			l.turnHook(turn, conversation)
		}

		sel := window.Select(conversation, l.cfg.Window)
		sent := provider.Sanitize(sel.Sent)

		req := &provider.Request{
			Messages:  sent,
			Model:     l.cfg.Model,
			MaxTokens: l.cfg.MaxTokens,
			System:    l.cfg.SystemPrompt,
			Tools:     toolDefinitions(l.cfg.Registry),
		}

		resp, err := l.cfg.Sender.Send(ctx, req)
		if err != nil {
			l.cfg.Logger.Warn(ctx, "agentloop: provider send failed", "turn", turn, "error", err)
			return &Outcome{Conversation: conversation, TurnsUsed: turn}, err
		}

		if !hasToolUse(resp.Content) {
			return &Outcome{Text: resp.TextContent(), Conversation: conversation, TurnsUsed: turn, ProviderUsed: resp.ProviderName}, nil
		}

		assistantMsg := models.Message{Role: models.RoleAssistant, Content: resp.Content}
		conversation = append(conversation, assistantMsg)

		if l.cancelled() {
			return &Outcome{Conversation: conversation, TurnsUsed: turn, Cancelled: true}, nil
		}

		uses := resp.ToolUses()
		results := l.cfg.Executor.Execute(ctx, uses, l.toolCtx)

		resultBlocks := make([]models.ContentBlock, len(results))
		for i, r := range results {
			resultBlocks[i] = models.ContentBlock{Type: models.BlockToolResult, ToolResult: &r}
		}
		conversation = append(conversation, models.Message{Role: models.RoleUser, Content: resultBlocks})
	}

	l.cfg.Logger.Warn(ctx, "agentloop: turn limit reached", "max_turns", l.cfg.MaxTurns)
	return &Outcome{Conversation: conversation, TurnsUsed: l.cfg.MaxTurns}, &ErrTurnLimit{MaxTurns: l.cfg.MaxTurns}
}

func (l *Loop) cancelled() bool {
	return l.cancel != nil && l.cancel.Cancelled()
}

func hasToolUse(blocks []models.ContentBlock) bool {
	for _, b := range blocks {
		if b.Type == models.BlockToolUse {
			return true
		}
	}
	return false
}

func toolDefinitions(r *tool.Registry) []provider.ToolDefinition {
	if r == nil {
		return nil
	}
	defs := r.ListAllTools()
	out := make([]provider.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = provider.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}
