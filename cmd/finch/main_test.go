package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"daemon", "daemon-start", "daemon-stop", "daemon-status", "query", "worker", "node-info", "agent", "memory", "setup", "train", "network", "license"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestMemoryCmdHasStatsAndQuery(t *testing.T) {
	cmd := buildMemoryCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["stats"] || !names["query"] {
		t.Fatalf("expected memory stats and query subcommands, got %v", names)
	}
}

func TestPidFilePathIsStable(t *testing.T) {
	a := pidFilePath("finch.yaml")
	b := pidFilePath("finch.yaml")
	if a != b {
		t.Errorf("pidFilePath not stable: %q vs %q", a, b)
	}
}
