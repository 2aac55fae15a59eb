package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/loadmap/internal/watcher"
)

var (
	quietFlag   bool
	watchFlag   bool
	dotFlag     string
	noCacheFlag bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [entries...]",
	Short: "Build the loadable manifest",
	Long: `Build walks the module graph from the entry files, extracts the
loadableGenerated metadata of every reachable module and writes the manifest.

Entries are paths relative to the project root or glob patterns. Without
arguments the entries from .loadmap/config.yml are used.

Examples:
  # Build from the configured entries
  loadmap build

  # Build from explicit entries and write a Graphviz dump of the graph
  loadmap build src/index.js "pages/**/*.tsx" --dot graph.dot

  # Rebuild whenever a source file changes
  loadmap build --watch
`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
	buildCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch for file changes and rebuild")
	buildCmd.Flags().StringVar(&dotFlag, "dot", "", "Also write the module graph in DOT format to this path")
	buildCmd.Flags().BoolVar(&noCacheFlag, "no-cache", false, "Do not read or write the result cache")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	root, err := projectRoot()
	if err != nil {
		return err
	}
	logger := newLogger(verbose, quietFlag)

	p, err := openProject(root, logger, !noCacheFlag)
	if err != nil {
		return err
	}
	defer p.Close()

	dotPath := dotFlag
	if dotPath == "" {
		dotPath = p.cfg.DOTPath(root)
	}

	out := cmd.OutOrStdout()
	if err := buildOnce(ctx, p, args, out, dotPath); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("build cancelled")
		}
		if !watchFlag {
			return err
		}
		// Watch mode keeps running so the next edit can fix the error.
		logger.Error("build failed", "err", err)
	}

	if !watchFlag {
		return nil
	}
	return watchAndRebuild(ctx, p, args, out, dotPath, logger)
}

func buildOnce(ctx context.Context, p *project, args []string, out io.Writer, dotPath string) error {
	result, err := p.build(ctx, args, NewCLIProgressReporter(out, quietFlag), dotPath)
	if err != nil {
		return err
	}

	if cycles, err := result.Traversal.Cycles(); err == nil && len(cycles) > 0 {
		p.logger.Debug("module graph has cycles", "count", len(cycles))
	}
	if !quietFlag {
		fmt.Fprintf(out, "✓ Wrote %s\n", p.cfg.OutputPath(p.root))
	}
	return nil
}

// watchAndRebuild rebuilds after every debounced batch of changes until ctx
// is cancelled.
func watchAndRebuild(ctx context.Context, p *project, args []string, out io.Writer, dotPath string, logger *log.Logger) error {
	w, err := watcher.New([]string{p.root}, p.cfg.Resolve.Extensions,
		watcher.WithLogger(logger),
		watcher.WithSkipDir(func(dir string) bool {
			id, err := p.graph.ModuleID(dir)
			return err != nil || p.graph.IgnoredDir(id)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	if !quietFlag {
		fmt.Fprintln(out, "Watching for changes (Ctrl+C to stop)...")
	}
	return w.Run(ctx, func(ctx context.Context, files []string) {
		p.invalidate(files)
		logger.Info("rebuilding", "changed", len(files))
		if err := buildOnce(ctx, p, args, out, dotPath); err != nil && ctx.Err() == nil {
			logger.Error("build failed", "err", err)
		}
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
