// Package permission implements the permission store and constitutional
// safety filter from spec §4.4/§4.7: ToolSignature matching, exact and
// wildcard-pattern approvals with precedence rules, atomic JSON
// persistence, and an unconditional safety denylist for dangerous shell
// commands, file reads, and URLs. Grounded on
// _examples/original_source/src/tools/permissions.rs for the
// Allow/Ask/Deny decision shape and the constitutional constraint list,
// and on the teacher's internal/tools/policy/approval.go for the Go
// idiom of a mutex-guarded manager over a decision enum.
package permission

import "time"

// Rule is a tagged Allow/Ask/Deny decision, matching spec §3's
// "PermissionRule is one of {Allow, Ask, Deny}".
type Rule string

const (
	RuleAllow Rule = "allow"
	RuleAsk   Rule = "ask"
	RuleDeny  Rule = "deny"
)

// DecisionKind tags which variant of Decision is populated.
type DecisionKind string

const (
	DecisionAllow   DecisionKind = "allow"
	DecisionAskUser DecisionKind = "ask_user"
	DecisionDeny    DecisionKind = "deny"
)

// Decision is the outcome of a permission check: {Allow | AskUser(reason)
// | Deny(reason)} per spec §3.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// Allow is the permissive decision.
func Allow() Decision { return Decision{Kind: DecisionAllow} }

// AskUser prompts the interactive user with reason before executing.
func AskUser(reason string) Decision { return Decision{Kind: DecisionAskUser, Reason: reason} }

// Deny blocks execution with a user-visible reason.
func Deny(reason string) Decision { return Decision{Kind: DecisionDeny, Reason: reason} }

// Signature is the (tool-name, context-key) pairing used as the matching
// key for permission rules (spec §3 ToolSignature). context-key is a
// canonical human-readable rendering of the invocation's salient inputs,
// e.g. "cargo test in /path".
type Signature struct {
	ToolName   string `json:"tool_name"`
	ContextKey string `json:"context_key"`
}

// ExactApproval is a standing approval for one exact Signature.
type ExactApproval struct {
	Signature Signature `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}

// Pattern is a wildcard approval: ContextPattern may contain `*`
// (single-segment) and `**` (recursive) wildcards matched against a
// Signature's ContextKey, scoped to ToolName.
type Pattern struct {
	ToolName       string    `json:"tool_name"`
	ContextPattern string    `json:"context_pattern"`
	CreatedAt      time.Time `json:"created_at"`
	MatchCount     uint64    `json:"match_count"`
}
