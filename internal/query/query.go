// Package query implements the concurrent query state manager of spec
// §4.9: a map from query id to QueryMetadata governing in-flight request
// lifecycle and cooperative cancellation. Grounded on the teacher's
// internal/agent.LoopState phase tracking (internal/agent/loop.go) for
// the state-variant shape, generalized from a single in-process loop's
// state into a registry addressable by UUID the way
// internal/sessions.Store addresses conversations by id
// (internal/sessions/store.go's RWMutex-guarded map idiom).
package query

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"finch/pkg/models"
)

// State tags a Metadata's lifecycle phase (spec §3 QueryMetadata state
// variants).
type State string

const (
	StateProcessing     State = "processing"
	StateExecutingTools State = "executing_tools"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether s is a terminal state eligible for CleanupOld
// eviction.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ToolProgress tracks in-flight vs. completed tool-use ids for the
// ExecutingTools state.
type ToolProgress struct {
	Pending   []string
	Completed []string
}

// CancelSignal is a one-shot, safe-for-concurrent-use cancellation
// flag. Checked at every agentic-loop iteration boundary and stream
// chunk boundary (spec §5 "Cancellation").
type CancelSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancelSignal returns an unfired signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{ch: make(chan struct{})}
}

// Fire cancels the signal. Safe to call more than once or concurrently.
func (c *CancelSignal) Fire() { c.once.Do(func() { close(c.ch) }) }

// Cancelled reports whether Fire has been called.
func (c *CancelSignal) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when Fire is called, for select-based
// cancellation checks (e.g. at a stream chunk boundary).
func (c *CancelSignal) Done() <-chan struct{} { return c.ch }

// Metadata is the handle for one in-flight user query (spec §3
// QueryMetadata).
type Metadata struct {
	ID           string
	State        State
	ToolProgress ToolProgress
	Response     string
	Err          error
	Snapshot     []models.Message
	Cancel       *CancelSignal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Manager is a concurrent map from query id to Metadata (spec §4.9).
// Readers never block writers for more than a single map operation: all
// methods take the lock only for the duration of the map access itself.
type Manager struct {
	mu      sync.RWMutex
	queries map[string]*Metadata
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{queries: make(map[string]*Metadata)}
}

// Create registers a new query starting in StateProcessing and returns
// its id.
func (m *Manager) Create(snapshot []models.Message) string {
	id := uuid.NewString()
	now := time.Now()
	meta := &Metadata{
		ID:        id,
		State:     StateProcessing,
		Snapshot:  append([]models.Message(nil), snapshot...),
		Cancel:    NewCancelSignal(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.queries[id] = meta
	m.mu.Unlock()
	return id
}

// UpdateState transitions id to state, optionally attaching tool
// progress, a response, or an error depending on the target state.
func (m *Manager) UpdateState(id string, state State, opts ...func(*Metadata)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.queries[id]
	if !ok {
		return false
	}
	meta.State = state
	meta.UpdatedAt = time.Now()
	for _, opt := range opts {
		opt(meta)
	}
	return true
}

// WithResponse attaches a completed response; use with
// UpdateState(id, StateCompleted, WithResponse(text)).
func WithResponse(text string) func(*Metadata) {
	return func(m *Metadata) { m.Response = text }
}

// WithError attaches a failure; use with
// UpdateState(id, StateFailed, WithError(err)).
func WithError(err error) func(*Metadata) {
	return func(m *Metadata) { m.Err = err }
}

// WithToolProgress attaches in-flight tool tracking; use with
// UpdateState(id, StateExecutingTools, WithToolProgress(p)).
func WithToolProgress(p ToolProgress) func(*Metadata) {
	return func(m *Metadata) { m.ToolProgress = p }
}

// GetState returns id's current state.
func (m *Manager) GetState(id string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.queries[id]
	if !ok {
		return "", false
	}
	return meta.State, true
}

// GetMetadata returns a copy of id's full metadata.
func (m *Manager) GetMetadata(id string) (Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.queries[id]
	if !ok {
		return Metadata{}, false
	}
	return *meta, true
}

// Cancel atomically fires id's cancellation signal and sets its state to
// StateCancelled, even if the loop has not yet observed the signal
// (spec §8 boundary behavior).
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	meta, ok := m.queries[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	meta.State = StateCancelled
	meta.UpdatedAt = time.Now()
	cancel := meta.Cancel
	m.mu.Unlock()

	cancel.Fire()
	return true
}

// Remove deletes id from the manager unconditionally.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.queries, id)
	m.mu.Unlock()
}

// CleanupOld evicts terminal-state queries whose last update is older
// than maxAge; non-terminal states are kept regardless of age (spec
// §4.9).
func (m *Manager) CleanupOld(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, meta := range m.queries {
		if meta.State.Terminal() && meta.UpdatedAt.Before(cutoff) {
			delete(m.queries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked queries, for /health and
// /v1/node/stats active_sessions reporting.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queries)
}
