package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"finch/internal/agentloop"
	"finch/internal/permission"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/pkg/models"
)

// MaxTurns is the bounded turn limit for a brain's agentic loop (spec
// §4.10: "a bounded (<=12 turns) variant of the agentic loop").
const MaxTurns = 12

// askUserQuestionSchema and presentPlanSchema are the two synthetic
// tools spec §4.10 adds to a brain's loop beyond the normal tool
// registry.
var askUserQuestionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "question": {"type": "string"},
    "options": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["question"]
}`)

var presentPlanSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"plan": {"type": "string"}},
  "required": ["plan"]
}`)

type askUserQuestionTool struct {
	registry *Registry
	brainID  string
}

func (t *askUserQuestionTool) Name() string        { return "ask_user_question" }
func (t *askUserQuestionTool) Description() string { return "Pause and ask the user a question." }
func (t *askUserQuestionTool) Schema() json.RawMessage { return askUserQuestionSchema }
func (t *askUserQuestionTool) Signature(input json.RawMessage, ctx tool.Context) string {
	return "ask_user_question in " + t.brainID
}

func (t *askUserQuestionTool) Execute(ctx context.Context, toolCtx tool.Context, input json.RawMessage) tool.Result {
	var args struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return tool.ErrorResult("invalid ask_user_question input: " + err.Error())
	}

	reply, ok := t.registry.AskQuestion(t.brainID, args.Question, args.Options)
	if !ok {
		return tool.ErrorResult("brain not found")
	}

	select {
	case answer, open := <-reply:
		if !open {
			return tool.ErrorResult("cancelled while awaiting user answer")
		}
		return tool.OKResult(answer)
	case <-ctx.Done():
		return tool.ErrorResult("cancelled while awaiting user answer")
	}
}

type presentPlanTool struct {
	registry *Registry
	brainID  string
}

func (t *presentPlanTool) Name() string            { return "present_plan" }
func (t *presentPlanTool) Description() string     { return "Present a plan to the user for approval." }
func (t *presentPlanTool) Schema() json.RawMessage { return presentPlanSchema }
func (t *presentPlanTool) Signature(input json.RawMessage, ctx tool.Context) string {
	return "present_plan in " + t.brainID
}

func (t *presentPlanTool) Execute(ctx context.Context, toolCtx tool.Context, input json.RawMessage) tool.Result {
	var args struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return tool.ErrorResult("invalid present_plan input: " + err.Error())
	}

	reply, ok := t.registry.PresentPlan(t.brainID, args.Plan)
	if !ok {
		return tool.ErrorResult("brain not found")
	}

	select {
	case resp, open := <-reply:
		if !open {
			return tool.ErrorResult("cancelled while awaiting plan review")
		}
		switch resp.Kind {
		case PlanApprove:
			return tool.OKResult("PLAN_APPROVED")
		case PlanReject:
			return tool.OKResult("PLAN_REJECTED")
		default:
			return tool.OKResult("CHANGES_REQUESTED: " + resp.Feedback)
		}
	case <-ctx.Done():
		return tool.ErrorResult("cancelled while awaiting plan review")
	}
}

// Runner drives a single brain's bounded agentic loop, using the
// registry's AskQuestion/PresentPlan machinery for the two synthetic
// tools.
type Runner struct {
	Registry    *Registry
	Loop        agentloop.Config
	ToolCtx     tool.Context
	PermManager *permission.Manager
}

// Run starts entry's loop against task as the opening user message. It
// blocks until the loop terminates (tool-free response, turn limit,
// plan approval/rejection, or cancellation) and appends every
// significant step to entry's event log.
func (r *Runner) Run(ctx context.Context, entry *Entry, cancel *query.CancelSignal) error {
	loopRegistry := tool.NewRegistry()
	if r.Loop.Registry != nil {
		for _, t := range r.Loop.Registry.Snapshot() {
			loopRegistry.Register(t)
		}
	}
	loopRegistry.Register(&askUserQuestionTool{registry: r.Registry, brainID: entry.ID})
	loopRegistry.Register(&presentPlanTool{registry: r.Registry, brainID: entry.ID})

	loopCfg := r.Loop
	loopCfg.MaxTurns = MaxTurns
	loopCfg.Registry = loopRegistry
	loopCfg.Executor = tool.NewExecutor(loopRegistry, r.PermManager, nil, false, nil)

	l := agentloop.New(loopCfg, r.ToolCtx, cancel)
	l.SetTurnHook(func(turn int, conv []models.Message) {
		r.Registry.AppendEvent(entry.ID, Event{Kind: "turn", Text: fmt.Sprintf("turn %d", turn)})
	})

	conv := []models.Message{{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(entry.Task)}}}
	outcome, err := l.Run(ctx, conv)

	switch {
	case outcome != nil && outcome.Cancelled:
		r.Registry.Cancel(entry.ID)
		r.Registry.AppendEvent(entry.ID, Event{Kind: "error", Text: "cancelled"})
		return nil
	case err != nil:
		r.Registry.AppendEvent(entry.ID, Event{Kind: "error", Text: err.Error()})
		r.Registry.Cancel(entry.ID)
		return err
	}

	if outcome.Text != "" {
		r.Registry.AppendEvent(entry.ID, Event{Kind: "turn", Text: outcome.Text})
	}

	entry.mu.Lock()
	stillLive := entry.State != StateDead
	entry.mu.Unlock()
	if stillLive {
		r.Registry.Cancel(entry.ID)
	}
	return nil
}
