package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
)

// CLIProgressReporter reports manifest builds with a progress bar.
type CLIProgressReporter struct {
	out        io.Writer
	quiet      bool
	extractBar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a new CLI progress reporter.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{out: out, quiet: quiet}
}

func (c *CLIProgressReporter) OnTraversalComplete(modules, edges int) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Traversed %s modules, %s edges\n", formatNumber(modules), formatNumber(edges))
}

func (c *CLIProgressReporter) OnExtractionStart(total int) {
	if c.quiet {
		return
	}
	c.extractBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("modules/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

// OnModuleExtracted is called from concurrent workers; the progress bar
// serializes updates.
func (c *CLIProgressReporter) OnModuleExtracted(moduleID string) {
	if c.quiet || c.extractBar == nil {
		return
	}
	c.extractBar.Add(1)
}

func (c *CLIProgressReporter) OnAggregationComplete(entries int, duration time.Duration) {
	if c.quiet {
		return
	}
	if c.extractBar != nil {
		c.extractBar.Finish()
		c.extractBar = nil
	}
	fmt.Fprintf(c.out, "✓ Manifest built: %s loadable modules (took %.1fs)\n", formatNumber(entries), duration.Seconds())
}

// OnAggregationFailed closes the progress bar so the error prints on its own
// line.
func (c *CLIProgressReporter) OnAggregationFailed(err error) {
	if c.quiet || c.extractBar == nil {
		return
	}
	c.extractBar.Exit()
	fmt.Fprintln(c.out)
	c.extractBar = nil
}

// formatNumber adds thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, r := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, r)
	}
	return string(out)
}
