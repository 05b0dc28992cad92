package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bivex/cgprof/internal/callgraph"
	"github.com/bivex/cgprof/internal/config"
	"github.com/bivex/cgprof/internal/engine"
	"github.com/bivex/cgprof/internal/source"
)

var (
	sourceDir    string
	sourceSubdir string
	disasmTool   string
)

func main() {
	root := &cobra.Command{
		Use:   "cgprof",
		Short: "Inspect Cachegrind/Callgrind profiles from the command line",
	}
	root.PersistentFlags().StringVar(&sourceDir, "source-dir", "", "directory of source files to resolve profile paths against")
	root.PersistentFlags().StringVar(&sourceSubdir, "source-subdir", "", "subdirectory prefix for source resolution")
	root.PersistentFlags().StringVar(&disasmTool, "disasm-tool", "objdump", "disassembler executable name")

	root.AddCommand(newLoadCmd())
	root.AddCommand(newHotspotsCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newCoverageCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEngine(profilePath string) (*engine.Engine, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var srcFiles source.Files
	if sourceDir != "" {
		srcFiles, err = source.LoadDir(sourceDir)
		if err != nil {
			return nil, fmt.Errorf("load source dir: %w", err)
		}
	}

	cfg := config.New(
		config.WithSourceSubdir(sourceSubdir),
		config.WithDisasmTool(disasmTool),
	)

	e := engine.New(cfg, logger, nil)
	if err := e.Load(data, srcFiles); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return e, nil
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <profile>",
		Short: "Load a profile and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(args[0])
			if err != nil {
				return err
			}
			totals := e.ProjectTotals()
			fmt.Printf("kind: %s\ncommand: %s\nfiles: %d\ncompiled lines: %d\ncovered lines: %d\ncoverage: %.2f%%\n",
				e.Profile().Kind, e.Profile().Command, totals.FilesAnalyzed,
				totals.TotalCompiledLines, totals.TotalCoveredLines, totals.Coverage)

			if mismatches := e.CheckSummary(); len(mismatches) > 0 {
				fmt.Println("\nsummary mismatches:")
				for _, m := range mismatches {
					fmt.Printf("  %s: declared=%d computed=%d\n", m.Event, m.Declared, m.Computed)
				}
			}
			return nil
		},
	}
}

func newHotspotsCmd() *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "hotspots <profile>",
		Short: "List the top functions by inclusive cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(args[0])
			if err != nil {
				return err
			}
			fmt.Print(e.FormatHotspots(topN))
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", 10, "number of hotspots to show")
	return cmd
}

func newGraphCmd() *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "graph <profile>",
		Short: "Print the call subtree rooted at an entry point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if entry == "" {
				return fmt.Errorf("--entry is required")
			}
			e, err := buildEngine(args[0])
			if err != nil {
				return err
			}
			node, rerr := e.ResolveEntry(entry)
			if rerr != nil {
				var sb strings.Builder
				sb.WriteString(fmt.Sprintf("no match for %q\n", entry))
				for _, sugg := range e.SuggestEntry(entry, 10) {
					sb.WriteString(fmt.Sprintf("  suggestion: %s\n", sugg.Name))
				}
				return errors.New(sb.String())
			}
			tree := e.SubtreeFrom(node.ID)
			printTree(tree, 0)
			return nil
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "", "function name or 0x-prefixed PC address")
	return cmd
}

func printTree(t *callgraph.Tree, depth int) {
	if t == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if t.Repeat {
		fmt.Printf("%s%s (recursion)\n", indent, t.Node.ID.String())
		return
	}
	fmt.Printf("%s%s\n", indent, t.Node.ID.String())
	for _, child := range t.Children {
		printTree(child, depth+1)
	}
}

func newCoverageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage <profile>",
		Short: "Print per-file line coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(args[0])
			if err != nil {
				return err
			}
			for _, fc := range e.FileCoverage() {
				fmt.Printf("%s: %d/%d (%.2f%%)\n", fc.Path, fc.Covered, fc.CompiledLines, fc.Percent)
			}
			return nil
		},
	}
}
