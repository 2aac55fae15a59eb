package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/loadmap/internal/traverse"
)

var cyclesFlag bool

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [entries...]",
	Short: "Print the module graph in DOT format",
	Long: `Graph walks the module graph from the entry files and prints it in
Graphviz DOT format. No manifest is written.

Examples:
  loadmap graph src/index.js | dot -Tsvg > graph.svg
  loadmap graph --cycles
`,
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().BoolVar(&cyclesFlag, "cycles", false, "List import cycles instead of printing the graph")
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	root, err := projectRoot()
	if err != nil {
		return err
	}
	logger := newLogger(verbose, false)

	p, err := openProject(root, logger, false)
	if err != nil {
		return err
	}
	defer p.Close()

	entries, err := p.entries(args)
	if err != nil {
		return err
	}

	result, err := traverse.Walk(ctx, entries, p.graph,
		traverse.WithConcurrency(p.cfg.Build.Concurrency),
		traverse.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !cyclesFlag {
		return result.WriteDOT(out)
	}

	cycles, err := result.Cycles()
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Fprintln(out, "No cycles found")
		return nil
	}
	for _, cycle := range cycles {
		fmt.Fprintln(out, strings.Join(cycle, " <-> "))
	}
	return nil
}
