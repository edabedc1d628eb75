package permission

import "encoding/json"

// ToolConfig is the tool-level configuration consulted when no standing
// exact/pattern approval matches (spec §4.4 step 2: "apply the
// tool-level configuration (Allow/Ask/Deny)").
type ToolConfig struct {
	Enabled bool
	Rule    Rule
}

// Manager ties together the permission Store, per-tool configuration,
// and the constitutional safety filter into the single decision point
// the agentic loop's tool dispatch consults (spec §4.4).
type Manager struct {
	store       *Store
	defaultRule Rule
	configs     map[string]ToolConfig
}

// NewManager constructs a Manager backed by store. Tools without an
// explicit ToolConfig fall back to defaultRule.
func NewManager(store *Store, defaultRule Rule) *Manager {
	if defaultRule == "" {
		defaultRule = RuleAsk
	}
	return &Manager{store: store, defaultRule: defaultRule, configs: make(map[string]ToolConfig)}
}

// Configure registers tool-specific configuration, overriding the
// default rule for that tool.
func (m *Manager) Configure(toolName string, cfg ToolConfig) {
	m.configs[toolName] = cfg
}

// CheckToolUse resolves the full decision for one tool invocation,
// following spec §4.4's ordering: tool enabled check, constitutional
// filter, standing approvals, then tool-level configuration.
func (m *Manager) CheckToolUse(toolName, contextKey string, input json.RawMessage) Decision {
	if cfg, ok := m.configs[toolName]; ok && !cfg.Enabled {
		return Deny("tool is disabled")
	}

	if reason := CheckConstitutional(toolName, input); reason != "" {
		return Deny(reason)
	}

	sig := Signature{ToolName: toolName, ContextKey: contextKey}
	if m.store != nil {
		if decision, matched := m.store.Check(sig); matched {
			return decision
		}
	}

	rule := m.defaultRule
	if cfg, ok := m.configs[toolName]; ok {
		rule = cfg.Rule
	}
	switch rule {
	case RuleAllow:
		return Allow()
	case RuleDeny:
		return Deny("tool is not allowed by configuration")
	default:
		return AskUser("execute " + toolName + "?")
	}
}
