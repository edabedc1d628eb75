// Package brain implements the daemon brain registry of spec §4.10:
// long-running background research sessions that may pause indefinitely
// awaiting a user answer or plan review, surviving disconnects of the
// interactive client.
//
// Grounded on the teacher's internal/agent.AgenticLoop phase/state shape
// (internal/agent/loop.go) for the bounded-loop contract a brain wraps,
// and cmd/nexus/handlers_agents.go's slugifyAgentID for the
// human-readable-name derivation (adapted here into a 4-word slug with
// a numeric collision suffix, per SPEC_FULL.md §12). No teacher package
// implements pause-for-input background sessions; the WaitingForInput /
// PlanReady state machine and one-shot reply-channel design are built
// directly from spec §3 (BrainEntry) and §4.10.
package brain

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State tags a BrainEntry's lifecycle phase (spec §3).
type State string

const (
	StateRunning         State = "running"
	StateWaitingForInput State = "waiting_for_input"
	StatePlanReady       State = "plan_ready"
	StateDead            State = "dead"
)

// Event is one append-only log entry recorded by a brain's loop.
type Event struct {
	Timestamp time.Time
	Kind      string // "turn", "tool_use", "tool_result", "question", "plan", "answer", "error"
	Text      string
}

// PendingQuestion is a brain's outstanding ask_user_question call: the
// question text, optional multiple-choice options, and the one-shot
// channel that unblocks the brain loop once the user answers.
type PendingQuestion struct {
	Question string
	Options  []string
	reply    chan string
}

// PendingPlan is a brain's outstanding present_plan call awaiting
// approval, rejection, or revision feedback.
type PendingPlan struct {
	Plan  string
	reply chan PlanResponse
}

// PlanResponseKind tags a user's response to a PendingPlan.
type PlanResponseKind string

const (
	PlanApprove          PlanResponseKind = "approve"
	PlanReject           PlanResponseKind = "reject"
	PlanChangesRequested PlanResponseKind = "changes_requested"
)

// PlanResponse is the user's decision on a PendingPlan.
type PlanResponse struct {
	Kind     PlanResponseKind
	Feedback string
}

// Entry is a daemon-side background research session (spec §3
// BrainEntry).
type Entry struct {
	mu sync.Mutex

	ID          string
	Name        string
	Task        string
	State       State
	Events      []Event
	Pending     *PendingQuestion
	PendingPlan *PendingPlan
	CreatedAt   time.Time

	cancelled bool
}

// Summary is the listing view of an Entry (spec §4.10 "list active/all
// brains (as summaries)").
type Summary struct {
	ID        string
	Name      string
	Task      string
	State     State
	CreatedAt time.Time
}

// Detail is the full view of an Entry including its event log (spec
// §4.10 "fetch a full detail view including the event log").
type Detail struct {
	Summary
	Events          []Event
	PendingQuestion *PendingQuestion
	PendingPlan     string
}

func (e *Entry) summary() Summary {
	return Summary{ID: e.ID, Name: e.Name, Task: e.Task, State: e.State, CreatedAt: e.CreatedAt}
}

func (e *Entry) detail() Detail {
	d := Detail{Summary: e.summary(), Events: append([]Event(nil), e.Events...)}
	if e.Pending != nil {
		d.PendingQuestion = &PendingQuestion{Question: e.Pending.Question, Options: e.Pending.Options}
	}
	if e.PendingPlan != nil {
		d.PendingPlan = e.PendingPlan.Plan
	}
	return d
}

// Registry tracks every Entry by id and by name (spec §4.10 Registry
// contract).
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Entry
	byName map[string]*Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Entry), byName: make(map[string]*Entry)}
}

// Insert registers a new brain for task, producing a collision-free
// human-readable name from a 4-word slug of task (spec §4.10:
// "investigate-auth-tests, investigate-auth-tests-2, ...").
func (r *Registry) Insert(task string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := slugWords(task, 4)
	name := base
	for n := 2; ; n++ {
		if _, taken := r.byName[name]; !taken {
			break
		}
		name = base + "-" + strconv.Itoa(n)
	}

	e := &Entry{
		ID:        uuid.NewString(),
		Name:      name,
		Task:      task,
		State:     StateRunning,
		CreatedAt: time.Now(),
	}
	r.byID[e.ID] = e
	r.byName[e.Name] = e
	return e
}

// AppendEvent appends an event to a brain's log.
func (r *Registry) AppendEvent(id string, ev Event) bool {
	e := r.lookupByID(id)
	if e == nil {
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.mu.Lock()
	e.Events = append(e.Events, ev)
	e.mu.Unlock()
	return true
}

// AskQuestion transitions id to WaitingForInput with a pending question
// and returns the reply channel the caller (the brain loop's synthetic
// ask_user_question tool) should block on.
func (r *Registry) AskQuestion(id, question string, options []string) (<-chan string, bool) {
	e := r.lookupByID(id)
	if e == nil {
		return nil, false
	}
	reply := make(chan string, 1)
	e.mu.Lock()
	e.State = StateWaitingForInput
	e.Pending = &PendingQuestion{Question: question, Options: options, reply: reply}
	e.mu.Unlock()
	return reply, true
}

// AnswerQuestion delivers a user's answer to id's pending question,
// waking the brain and clearing the pending state.
func (r *Registry) AnswerQuestion(id, answer string) bool {
	e := r.lookupByID(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	pending := e.Pending
	if pending == nil {
		e.mu.Unlock()
		return false
	}
	e.Pending = nil
	e.State = StateRunning
	e.mu.Unlock()

	pending.reply <- answer
	close(pending.reply)
	return true
}

// PresentPlan transitions id to PlanReady with a pending plan and
// returns the reply channel the synthetic present_plan tool blocks on.
func (r *Registry) PresentPlan(id, plan string) (<-chan PlanResponse, bool) {
	e := r.lookupByID(id)
	if e == nil {
		return nil, false
	}
	reply := make(chan PlanResponse, 1)
	e.mu.Lock()
	e.State = StatePlanReady
	e.PendingPlan = &PendingPlan{Plan: plan, reply: reply}
	e.mu.Unlock()
	return reply, true
}

// RespondToPlan delivers the user's plan decision. Approve and Reject
// transition the brain to Dead; ChangesRequested transitions it back to
// Running so the feedback can be fed into the conversation (spec
// §4.10).
func (r *Registry) RespondToPlan(id string, resp PlanResponse) bool {
	e := r.lookupByID(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	pending := e.PendingPlan
	if pending == nil {
		e.mu.Unlock()
		return false
	}
	e.PendingPlan = nil
	switch resp.Kind {
	case PlanApprove, PlanReject:
		e.State = StateDead
	case PlanChangesRequested:
		e.State = StateRunning
	}
	e.mu.Unlock()

	pending.reply <- resp
	close(pending.reply)
	return true
}

// Cancel terminates a brain: marks it Dead and, if it has a pending
// question or plan, closes that channel so the blocked synthetic tool
// fails cleanly rather than hanging forever (spec §5 "Cancellation of a
// brain... closes any pending-answer channels").
func (r *Registry) Cancel(id string) bool {
	e := r.lookupByID(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		return true
	}
	e.cancelled = true
	e.State = StateDead
	if e.Pending != nil {
		close(e.Pending.reply)
		e.Pending = nil
	}
	if e.PendingPlan != nil {
		close(e.PendingPlan.reply)
		e.PendingPlan = nil
	}
	return true
}

// ListActive returns summaries for every non-Dead brain.
func (r *Registry) ListActive() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Summary
	for _, e := range r.byID {
		e.mu.Lock()
		state := e.State
		s := e.summary()
		e.mu.Unlock()
		if state != StateDead {
			out = append(out, s)
		}
	}
	return out
}

// ListAll returns summaries for every brain regardless of state.
func (r *Registry) ListAll() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.byID))
	for _, e := range r.byID {
		e.mu.Lock()
		s := e.summary()
		e.mu.Unlock()
		out = append(out, s)
	}
	return out
}

// ByID looks up a brain's full detail view by id.
func (r *Registry) ByID(id string) (Detail, bool) {
	e := r.lookupByID(id)
	if e == nil {
		return Detail{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detail(), true
}

// ByName looks up a brain's full detail view by its human-readable name.
func (r *Registry) ByName(name string) (Detail, bool) {
	r.mu.RLock()
	e := r.byName[name]
	r.mu.RUnlock()
	if e == nil {
		return Detail{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detail(), true
}

// Remove deletes a Dead brain from the registry entirely, used by the
// backlog scheduler's stale-brain reaper. Removing a non-Dead brain is
// refused: only terminal sessions are eligible for eviction.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	dead := e.State == StateDead
	e.mu.Unlock()
	if !dead {
		return false
	}
	delete(r.byID, id)
	delete(r.byName, e.Name)
	return true
}

func (r *Registry) lookupByID(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// slugWords lowercases value, strips non-alphanumeric runs to single
// dashes, and keeps at most maxWords dash-separated segments. Grounded
// on the teacher's slugifyAgentID (cmd/nexus/handlers_agents.go),
// adapted to cap the word count instead of keeping the whole string.
func slugWords(value string, maxWords int) string {
	s := strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	words := strings.Split(slug, "-")
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	if len(words) == 0 || words[0] == "" {
		return "brain"
	}
	return strings.Join(words, "-")
}
