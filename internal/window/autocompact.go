package window

import (
	"context"
	"fmt"
	"sync"

	"finch/pkg/models"
)

// AutoCompactConfig configures the soft auto-compaction threshold of
// spec §4.5: "the full conversation tracks its own estimated-tokens-used
// ratio against a configured compaction threshold... When the ratio
// crosses the threshold and auto-compact is enabled, a larger
// summarization pass may be performed inline." Grounded on the
// teacher's agent.CompactionConfig (internal/agent/compaction.go),
// adapted from its flush-confirmation handshake (which assumes an
// interactive agent that can be asked to self-flush memory) to a direct
// inline replacement, since spec §4.5 describes no confirmation step.
type AutoCompactConfig struct {
	Enabled bool

	// ContextLimit is the target provider's full context window in
	// tokens; ThresholdFraction is evaluated against it.
	ContextLimit int

	// ThresholdFraction is the usage ratio (0-1) that triggers
	// compaction. Default 0.8.
	ThresholdFraction float64

	// KeepRecent is how many of the most recent messages stay unchanged
	// after compaction. Default 10.
	KeepRecent int
}

// DefaultAutoCompactConfig returns spec-reasonable defaults.
func DefaultAutoCompactConfig(contextLimit int) AutoCompactConfig {
	return AutoCompactConfig{
		Enabled:           true,
		ContextLimit:      contextLimit,
		ThresholdFraction: 0.8,
		KeepRecent:        10,
	}
}

func (c AutoCompactConfig) sanitized() AutoCompactConfig {
	if c.ThresholdFraction <= 0 {
		c.ThresholdFraction = 0.8
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 10
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = DefaultMaxTokens
	}
	return c
}

// AutoCompactor monitors a conversation's estimated token usage and
// performs an inline compaction pass when it crosses the configured
// threshold.
type AutoCompactor struct {
	mu  sync.Mutex
	cfg AutoCompactConfig
	c   *Compactor
}

// NewAutoCompactor builds an AutoCompactor over compactor c.
func NewAutoCompactor(cfg AutoCompactConfig, c *Compactor) *AutoCompactor {
	return &AutoCompactor{cfg: cfg.sanitized(), c: c}
}

// Usage reports the current usage ratio of full against the configured
// context limit, for callers that want to surface it without triggering
// a pass.
func (a *AutoCompactor) Usage(full []models.Message) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.ContextLimit <= 0 {
		return 0
	}
	return float64(EstimateTotalTokens(full)) / float64(a.cfg.ContextLimit)
}

// MaybeCompact checks full's usage ratio and, if it crosses the
// threshold and auto-compact is enabled, replaces the oldest portion
// with a single synthetic "summary of previous conversation" user turn
// followed by the most recent KeepRecent messages unchanged (spec
// §4.5). Returns the replacement conversation and whether compaction
// ran. On summarization failure, returns (full, false, nil): spec
// §4.5's failure policy is "the window is sent as-is and a warning is
// logged", never a hard error.
func (a *AutoCompactor) MaybeCompact(ctx context.Context, full []models.Message) ([]models.Message, bool, error) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	if !cfg.Enabled || a.c == nil {
		return full, false, nil
	}
	if len(full) <= cfg.KeepRecent {
		return full, false, nil
	}
	if cfg.ContextLimit <= 0 || float64(EstimateTotalTokens(full))/float64(cfg.ContextLimit) < cfg.ThresholdFraction {
		return full, false, nil
	}

	cut := len(full) - cfg.KeepRecent
	dropped := full[:cut]
	recent := full[cut:]

	pair, err := a.c.Compact(ctx, dropped)
	if err != nil {
		return full, false, fmt.Errorf("window: auto-compaction skipped: %w", err)
	}

	summaryTurn := models.Message{
		Role:    models.RoleUser,
		Content: []models.ContentBlock{models.Text(pair[0].TextContent())},
	}

	out := make([]models.Message, 0, 1+len(recent))
	out = append(out, summaryTurn)
	out = append(out, recent...)
	return out, true, nil
}
