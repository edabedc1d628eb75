package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  host: 0.0.0.0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8742 {
		t.Errorf("Server.Port = %d, want default 8742", cfg.Server.Port)
	}
	if cfg.Memory.Dimension != 384 {
		t.Errorf("Memory.Dimension = %d, want default 384", cfg.Memory.Dimension)
	}
	if cfg.Permission.DefaultRule != "ask" {
		t.Errorf("Permission.DefaultRule = %q, want \"ask\"", cfg.Permission.DefaultRule)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, "not_a_real_field: true\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown top-level field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 1\n---\nserver:\n  port: 2\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for multi-document YAML file")
	}
}

func TestEnvOverrideSetsProviderAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	path := writeTempConfig(t, "server:\n  port: 9000\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, ok := cfg.Providers.Entries["anthropic"]
	if !ok || entry.APIKey != "sk-test-key" {
		t.Errorf("Providers.Entries[anthropic] = %+v, ok=%v", entry, ok)
	}
}

func TestEnvOverridePort(t *testing.T) {
	t.Setenv("FINCH_HTTP_PORT", "9999")
	path := writeTempConfig(t, "server:\n  port: 1234\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 from FINCH_HTTP_PORT", cfg.Server.Port)
	}
}

func TestValidateRejectsBadDefaultRule(t *testing.T) {
	path := writeTempConfig(t, "permission:\n  default_rule: maybe\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for bad permission.default_rule")
	}
}

func TestValidateRejectsBadThresholdFraction(t *testing.T) {
	path := writeTempConfig(t, "window:\n  threshold_fraction: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for threshold_fraction > 1")
	}
}
