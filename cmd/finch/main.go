// Package main provides the CLI entry point for the finch agent daemon.
//
// finch wires a hierarchical semantic memory store, a fallback chain of
// LLM providers, a tool-executing agentic loop, and a small HTTP surface
// into one daemon process, plus a handful of client subcommands for
// talking to a running daemon and inspecting its memory.
//
// Grounded on the teacher's cmd/nexus/main.go: a cobra root command built
// by buildRootCmd(), one buildXxxCmd() function per command group, and
// flags resolved against a YAML config file loaded lazily inside RunE.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "finch",
		Short:   "finch - a local-first agentic assistant daemon",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// No Args/RunE here: the bare invocation (REPL or piped-stdin
		// query) is handled by buildRootRunE, attached below so that
		// `finch` with no subcommand still does something useful.
		RunE:         rootRunE,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", "finch.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildDaemonCmd(),
		buildDaemonStartCmd(),
		buildDaemonStopCmd(),
		buildDaemonStatusCmd(),
		buildQueryCmd(),
		buildWorkerCmd(),
		buildNodeInfoCmd(),
		buildAgentCmd(),
		buildMemoryCmd(),
		buildSetupCmd(),
		buildTrainCmd(),
		buildNetworkCmd(),
		buildLicenseCmd(),
	)

	return rootCmd
}

// configPathFlag is shared across every subcommand's RunE via the
// persistent --config flag, mirroring the teacher's configPath pattern.
var configPathFlag string
