package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finch/internal/observability"
	"finch/internal/permission"
	"finch/pkg/models"
)

// serializedTools are always run one-at-a-time regardless of executor
// concurrency settings, because they mutate shared state the executor
// cannot prove is independent (spec §4.6 "Parallel execution": "safest
// default is serial execution").
var serializedTools = map[string]bool{
	"bash": true, "exec": true, "write": true, "edit": true, "patch": true,
}

// readOnlyTools may run concurrently with each other (§13 Open Question
// decision).
var readOnlyTools = map[string]bool{
	"read": true, "glob": true, "grep": true, "web_fetch": true,
}

// AskFunc surfaces an AskUser decision to the interactive user and
// returns their choice. allowExact/allowPattern let the caller persist a
// standing approval; a plain "allow" is a one-shot, non-persisted choice
// (spec §4.6 step 3).
type AskFunc func(ctx context.Context, toolName, reason string, sig permission.Signature) (approved bool, remember RememberChoice)

// RememberChoice tags how an interactive approval should be persisted.
type RememberChoice int

const (
	RememberNone RememberChoice = iota
	RememberExact
	RememberPattern
)

// Executor dispatches tool-use blocks against a Registry, gated by a
// permission.Manager (spec §4.6).
type Executor struct {
	registry    *Registry
	perm        *permission.Manager
	store       *permission.Store
	ask         AskFunc
	interactive bool
	metrics     *observability.Metrics
}

// NewExecutor constructs an Executor. ask may be nil for non-interactive
// (daemon/API) sessions, in which case AskUser decisions are treated as
// denials.
func NewExecutor(registry *Registry, perm *permission.Manager, store *permission.Store, interactive bool, ask AskFunc) *Executor {
	return &Executor{registry: registry, perm: perm, store: store, ask: ask, interactive: interactive}
}

// SetMetrics attaches a Metrics sink the executor records tool execution
// counts and durations to. Nil (the default) disables recording.
func (e *Executor) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Execute runs every tool-use block in uses against toolCtx, preserving
// input order in the returned results even when execution is
// parallelized (spec §4.6 "Parallel execution").
func (e *Executor) Execute(ctx context.Context, uses []models.ToolUseContent, toolCtx Context) []models.ToolResultContent {
	results := make([]models.ToolResultContent, len(uses))

	var serial []int
	var parallel []int
	for i, u := range uses {
		if serializedTools[u.Name] || !readOnlyTools[u.Name] {
			serial = append(serial, i)
		} else {
			parallel = append(parallel, i)
		}
	}

	if len(parallel) > 0 {
		var wg sync.WaitGroup
		for _, i := range parallel {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.executeOne(ctx, uses[i], toolCtx)
			}(i)
		}
		wg.Wait()
	}

	for _, i := range serial {
		results[i] = e.executeOne(ctx, uses[i], toolCtx)
	}

	return results
}

func (e *Executor) executeOne(ctx context.Context, use models.ToolUseContent, toolCtx Context) models.ToolResultContent {
	start := time.Now()
	res := e.dispatch(ctx, use, toolCtx)
	if e.metrics != nil {
		status := "success"
		if res.IsError {
			status = "error"
		}
		e.metrics.RecordToolExecution(use.Name, status, time.Since(start).Seconds())
	}
	return models.ToolResultContent{ToolUseID: use.ID, Content: res.Content, IsError: res.IsError}
}

func (e *Executor) dispatch(ctx context.Context, use models.ToolUseContent, toolCtx Context) (result Result) {
	defer func() {
		// spec §4.6 step 5: catastrophic execute errors must not
		// propagate out of the executor.
		if r := recover(); r != nil {
			result = ErrorResult(fmt.Sprintf("tool %s panicked: %v", use.Name, r))
		}
	}()

	t, ok := e.registry.Get(use.Name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q", use.Name))
	}

	if err := e.registry.ValidateInput(t, use.Input); err != nil {
		return ErrorResult(err.Error())
	}

	sigKey := t.Signature(use.Input, toolCtx)
	decision := e.perm.CheckToolUse(use.Name, sigKey, use.Input)

	switch decision.Kind {
	case permission.DecisionDeny:
		return ErrorResult(decision.Reason)
	case permission.DecisionAskUser:
		approved, remember := e.resolveAsk(ctx, use.Name, decision.Reason, sigKey)
		if !approved {
			return ErrorResult("denied by user: " + decision.Reason)
		}
		e.persistRemember(use.Name, sigKey, remember)
	case permission.DecisionAllow:
		// fall through to execution
	}

	return t.Execute(ctx, toolCtx, use.Input)
}

func (e *Executor) resolveAsk(ctx context.Context, toolName, reason, sigKey string) (bool, RememberChoice) {
	if !e.interactive || e.ask == nil {
		return false, RememberNone
	}
	sig := permission.Signature{ToolName: toolName, ContextKey: sigKey}
	return e.ask(ctx, toolName, reason, sig)
}

func (e *Executor) persistRemember(toolName, sigKey string, remember RememberChoice) {
	if e.store == nil {
		return
	}
	switch remember {
	case RememberExact:
		_ = e.store.AllowExact(permission.Signature{ToolName: toolName, ContextKey: sigKey})
	case RememberPattern:
		_ = e.store.AllowPattern(toolName, sigKey)
	}
}
