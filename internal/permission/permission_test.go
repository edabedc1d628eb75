package permission

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestMatchPatternWildcards(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"bash/cargo test in /path", "bash/cargo test in /path", true},
		{"bash/cargo test in *", "bash/cargo test in /path", true},
		{"bash/cargo test in *", "bash/cargo test in /a/b", false},
		{"bash/**", "bash/cargo test in /a/b", true},
		{"bash/cargo **", "bash/cargo test in /a/b", true},
	}
	for _, c := range cases {
		if got := matchPattern(c.pattern, c.key); got != c.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

func TestExactApprovalBeatsPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perms.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.AllowPattern("bash", "**"); err != nil {
		t.Fatalf("AllowPattern: %v", err)
	}
	sig := Signature{ToolName: "bash", ContextKey: "cargo test in /path"}
	if err := s.AllowExact(sig); err != nil {
		t.Fatalf("AllowExact: %v", err)
	}

	decision, matched := s.Check(sig)
	if !matched || decision.Kind != DecisionAllow {
		t.Fatalf("Check() = %+v, %v; want Allow, true", decision, matched)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reloaded.Exact()) != 1 || len(reloaded.Patterns()) != 1 {
		t.Fatalf("reloaded store = %d exact, %d patterns; want 1, 1", len(reloaded.Exact()), len(reloaded.Patterns()))
	}
}

func TestFewestWildcardsWins(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "perms.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.AllowPattern("bash", "**"); err != nil {
		t.Fatal(err)
	}
	if err := s.AllowPattern("bash", "cargo test in *"); err != nil {
		t.Fatal(err)
	}

	sig := Signature{ToolName: "bash", ContextKey: "cargo test in /path"}
	decision, matched := s.Check(sig)
	if !matched || decision.Kind != DecisionAllow {
		t.Fatalf("Check() = %+v, %v", decision, matched)
	}
	patterns := s.Patterns()
	// The one-wildcard pattern ("cargo test in *") should have its
	// match count incremented, not the "**" pattern.
	for _, p := range patterns {
		if p.ContextPattern == "cargo test in *" && p.MatchCount != 1 {
			t.Fatalf("expected the fewer-wildcard pattern to match, got counts %+v", patterns)
		}
		if p.ContextPattern == "**" && p.MatchCount != 0 {
			t.Fatalf("expected the ** pattern NOT to be selected, got counts %+v", patterns)
		}
	}
}

func TestConstitutionalDeniesDangerousBash(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"command": "rm -rf /"})
	if reason := CheckConstitutional("bash", input); reason == "" {
		t.Fatal("expected rm -rf to be denied")
	}
}

func TestConstitutionalDeniesSystemFileRead(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"file_path": "/etc/passwd"})
	if reason := CheckConstitutional("read", input); reason == "" {
		t.Fatal("expected /etc/passwd read to be denied")
	}
}

func TestConstitutionalDeniesDangerousURLScheme(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"url": "file:///etc/passwd"})
	if reason := CheckConstitutional("web_fetch", input); reason == "" {
		t.Fatal("expected file:// scheme to be denied")
	}
}

func TestConstitutionalDeniesPrivateIP(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"url": "http://127.0.0.1:8080/admin"})
	if reason := CheckConstitutional("web_fetch", input); reason == "" {
		t.Fatal("expected loopback fetch to be denied")
	}
}

func TestManagerDefaultRuleAsksWhenUnconfigured(t *testing.T) {
	m := NewManager(nil, RuleAsk)
	input, _ := json.Marshal(map[string]string{"command": "ls -la"})
	decision := m.CheckToolUse("bash", "ls -la in /tmp", input)
	if decision.Kind != DecisionAskUser {
		t.Fatalf("CheckToolUse() = %+v, want AskUser", decision)
	}
}

func TestManagerAllowRuleBypassesPrompt(t *testing.T) {
	m := NewManager(nil, RuleAsk)
	m.Configure("read", ToolConfig{Enabled: true, Rule: RuleAllow})
	input, _ := json.Marshal(map[string]string{"file_path": "/tmp/notes.txt"})
	decision := m.CheckToolUse("read", "/tmp/notes.txt", input)
	if decision.Kind != DecisionAllow {
		t.Fatalf("CheckToolUse() = %+v, want Allow", decision)
	}
}
