package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finch/internal/config"
	"finch/internal/embedding"
	"finch/internal/memstore"
)

// buildMemoryCmd creates the "memory" command group exposing read-only
// MemTree inspection (SPEC_FULL.md §12: "a `finch memory stats` /
// `finch memory query <text>` pair of cobra subcommands exposing MemTree
// size, depth, and ad hoc retrieval"). The interactive TUI rendering
// itself stays out of scope per spec §1.
func buildMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the hierarchical memory store",
	}
	cmd.AddCommand(buildMemoryStatsCmd(), buildMemoryQueryCmd())
	return cmd
}

func openMemoryStore(configPath string) (*memstore.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	eng := embedding.Select(cfg.Memory.UseNeural)
	store, err := memstore.Open(memstore.Config{
		Path:      cfg.Memory.Path,
		Dimension: cfg.Memory.Dimension,
		Branching: cfg.Memory.Branching,
		MaxDepth:  cfg.Memory.MaxDepth,
		Engine:    eng,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func buildMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print MemTree size and depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openMemoryStore(configPathFlag)
			if err != nil {
				return err
			}
			defer closeFn()

			tree := store.Tree()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nodes: %d\n", tree.Size())
			fmt.Fprintf(out, "depth: %d\n", tree.Depth())
			return nil
		},
	}
}

func buildMemoryQueryCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the k nearest memory leaves for a text query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openMemoryStore(configPathFlag)
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := store.Query(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for i, line := range results {
				fmt.Fprintf(out, "%d. %s\n", i+1, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 5, "Number of results to return")
	return cmd
}
