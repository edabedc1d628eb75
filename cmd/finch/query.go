package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finch/internal/agentloop"
	"finch/internal/node"
	"finch/internal/tool"
	"finch/pkg/models"
)

func buildQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Send a single query through the agent loop and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return runOneShotQuery(cmd.Context(), cmd.OutOrStdout(), text)
		},
	}
	return cmd
}

func runOneShotQuery(ctx context.Context, out io.Writer, text string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	comps, err := buildComponents(ctx, configPathFlag, workDir)
	if err != nil {
		return err
	}
	defer comps.Close()

	loop := agentloop.New(comps.loopConfig(), tool.Context{WorkDir: workDir, Output: out}, nil)
	start := time.Now()
	outcome, err := loop.Run(ctx, []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(text)}},
	})
	if err != nil {
		comps.metrics.RecordQuery("error", time.Since(start).Seconds())
		return err
	}
	comps.metrics.RecordQuery("success", time.Since(start).Seconds())
	fmt.Fprintln(out, outcome.Text)
	return nil
}

func buildWorkerCmd() *cobra.Command {
	var info bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one backlog task to completion, or report worker capability with --info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if info {
				return printWorkerInfo(cmd.Context(), cmd.OutOrStdout())
			}
			return runOneBacklogTask(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&info, "info", false, "Report this worker's capabilities and exit")
	return cmd
}

func printWorkerInfo(ctx context.Context, out io.Writer) error {
	comps, err := buildComponents(ctx, configPathFlag, ".")
	if err != nil {
		return err
	}
	defer comps.Close()
	info := node.CurrentInfo(comps.identity, comps.cfg.Providers.Local != nil && comps.cfg.Providers.Local.Enabled, len(comps.cfg.Providers.Entries) > 0)
	fmt.Fprintf(out, "node:     %s (%s)\n", info.Name, info.ID)
	fmt.Fprintf(out, "platform: %s/%s, %d cpus\n", info.OS, info.Arch, info.NumCPU)
	fmt.Fprintf(out, "local model present:  %v\n", info.LocalModel)
	fmt.Fprintf(out, "teacher api present:  %v\n", info.TeacherAPI)
	return nil
}

// runOneBacklogTask pops the highest-priority pending backlog task (spec
// SPEC_FULL.md §12's worker-pulls-from-backlog model) and runs it through
// the agent loop once, recording the outcome back onto the task.
func runOneBacklogTask(ctx context.Context, out io.Writer) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	comps, err := buildComponents(ctx, configPathFlag, workDir)
	if err != nil {
		return err
	}
	defer comps.Close()

	task, ok := comps.backlog.Next()
	if !ok {
		fmt.Fprintln(out, "no pending backlog tasks")
		return nil
	}
	if err := comps.backlog.MarkRunning(task.ID); err != nil {
		return err
	}

	loop := agentloop.New(comps.loopConfig(), tool.Context{WorkDir: workDir, Output: out}, nil)
	start := time.Now()
	outcome, err := loop.Run(ctx, []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(task.Description)}},
	})
	if err != nil {
		comps.metrics.RecordQuery("error", time.Since(start).Seconds())
		_ = comps.backlog.MarkFailed(task.ID, err.Error())
		return err
	}
	comps.metrics.RecordQuery("success", time.Since(start).Seconds())
	if err := comps.backlog.MarkDone(task.ID, outcome.Text); err != nil {
		return err
	}
	fmt.Fprintf(out, "task %s done:\n%s\n", task.ID, outcome.Text)
	return nil
}

func buildNodeInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node-info",
		Short: "Print this node's identity and capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printWorkerInfo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func buildAgentCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Drain the backlog, running tasks through the agent loop until empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentDrain(cmd.Context(), cmd.OutOrStdout(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process a single backlog task and exit")
	return cmd
}

func runAgentDrain(ctx context.Context, out io.Writer, once bool) error {
	if once {
		return runOneBacklogTask(ctx, out)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}
		comps, err := buildComponents(ctx, configPathFlag, workDir)
		if err != nil {
			return err
		}
		_, hasNext := comps.backlog.Next()
		comps.Close()
		if !hasNext {
			fmt.Fprintln(out, "backlog drained")
			return nil
		}
		if err := runOneBacklogTask(ctx, out); err != nil {
			return err
		}
	}
}

// rootRunE implements spec §6's bare-invocation behavior: an interactive
// REPL when stdin is a TTY, or treat the entire piped stdin as a single
// query otherwise.
func rootRunE(cmd *cobra.Command, args []string) error {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return err
	}
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}
		return runOneShotQuery(cmd.Context(), cmd.OutOrStdout(), text)
	}
	return runREPL(cmd.Context(), cmd.OutOrStdout())
}

func runREPL(ctx context.Context, out io.Writer) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	comps, err := buildComponents(ctx, configPathFlag, workDir)
	if err != nil {
		return err
	}
	defer comps.Close()

	fmt.Fprintf(out, "finch %s (%s/%s) — type a message, or Ctrl-D to exit\n", comps.identity.Name, runtime.GOOS, runtime.GOARCH)
	scanner := bufio.NewScanner(os.Stdin)
	var conversation []models.Message
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		conversation = append(conversation, models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(line)}})

		loop := agentloop.New(comps.loopConfig(), tool.Context{WorkDir: workDir, Output: out}, nil)
		outcome, err := loop.Run(ctx, conversation)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		conversation = outcome.Conversation
		fmt.Fprintln(out, outcome.Text)
	}
}
