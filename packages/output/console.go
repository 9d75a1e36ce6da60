package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/decoder"
	"github.com/abdul-hamid-achik/riskproxy/packages/history"
	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"github.com/abdul-hamid-achik/riskproxy/packages/poller"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/fatih/color"
)

// maskValue hides all but the edges of a credential
func maskValue(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	label   string
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
		label:  "Margin Utilization",
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose prints token values unmasked and extra detail
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithLabel sets the name printed in front of a reading
func WithLabel(label string) ConsoleOption {
	return func(f *ConsoleFormatter) {
		if label != "" {
			f.label = label
		}
	}
}

func (f *ConsoleFormatter) FormatReading(r history.Reading) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	value := color.New(color.FgGreen, color.Bold).SprintFunc()
	if r.Value < 0 {
		value = color.New(color.FgRed, color.Bold).SprintFunc()
	}

	fmt.Fprintf(f.writer, "%s %s %s %s\n",
		bold(f.label+":"),
		value(r.Formatted),
		faint(fmt.Sprintf("(raw: %s)", r.Raw)),
		cyan(fmt.Sprintf("[source: %s]", r.Source)))

	if f.verbose {
		if r.Snapshot != "" {
			fmt.Fprintf(f.writer, "  File:     %s\n", r.Snapshot)
		}
		if !r.ObservedAt.IsZero() {
			fmt.Fprintf(f.writer, "  Observed: %s\n", r.ObservedAt.Format(time.RFC3339))
		}
	}
}

func (f *ConsoleFormatter) FormatNotFound(path string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(f.writer, "%s\n", yellow(fmt.Sprintf("%s not found in %s", f.label, path)))
}

func (f *ConsoleFormatter) FormatRow(cells []decoder.Cell) {
	bold := color.New(color.Bold).SprintFunc()

	width := 0
	for _, c := range cells {
		if n := len(columnName(c)); n > width {
			width = n
		}
	}
	for _, c := range cells {
		fmt.Fprintf(f.writer, "  %s  %s\n", bold(fmt.Sprintf("%-*s", width, columnName(c))), c.Raw)
	}
}

func columnName(c decoder.Cell) string {
	if c.Header != "" {
		return c.Header
	}
	return c.Key
}

func (f *ConsoleFormatter) FormatReadings(readings []history.Reading) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if len(readings) == 0 {
		fmt.Fprintf(f.writer, "No readings recorded yet.\n")
		return
	}

	fmt.Fprintf(f.writer, "%s\n", bold(fmt.Sprintf("%-20s  %16s  %s", "Observed", f.label, "Source")))
	for _, r := range readings {
		v := green(fmt.Sprintf("%16s", r.Formatted))
		if r.Value < 0 {
			v = red(fmt.Sprintf("%16s", r.Formatted))
		}
		fmt.Fprintf(f.writer, "%-20s  %s  %s\n", r.ObservedAt.Local().Format("2006-01-02 15:04:05"), v, r.Source)
	}
}

// FormatTokens prints the tracked tokens in set order. Values are masked
// unless verbose.
func (f *ConsoleFormatter) FormatTokens(set tokens.Set, values map[tokens.Name]string, lastUpdated time.Time) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, name := range set.Names() {
		v, ok := values[name]
		if !ok {
			fmt.Fprintf(f.writer, "  %s %-15s %s\n", yellow("-"), name, yellow("(missing)"))
			continue
		}
		if !f.verbose {
			v = maskValue(v)
		}
		fmt.Fprintf(f.writer, "  %s %-15s %s\n", green("✓"), name, v)
	}
	if !lastUpdated.IsZero() {
		fmt.Fprintf(f.writer, "%s %s\n", bold("Last updated:"), lastUpdated.Format(time.RFC3339))
	}
}

func (f *ConsoleFormatter) FormatPoll(r poller.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	switch {
	case r.Err != nil:
		fmt.Fprintf(f.writer, "  %s #%d %s\n", red("x"), r.Seq, red(r.Err.Error()))
	case r.Failed:
		fmt.Fprintf(f.writer, "  %s #%d %d %s\n", red("✗"), r.Seq, r.StatusCode, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
	default:
		fmt.Fprintf(f.writer, "  %s #%d %d %s\n", green("✓"), r.Seq, r.StatusCode, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
	}
}

// FormatLatency prints the latency summary, one line per label.
func (f *ConsoleFormatter) FormatLatency(s metrics.Summary) {
	bold := color.New(color.Bold).SprintFunc()

	if s.Count == 0 {
		return
	}
	fmt.Fprintf(f.writer, "\n%s\n", bold("Latency"))
	for _, st := range append([]metrics.Stats{s.Stats}, s.Labels...) {
		fmt.Fprintf(f.writer, "  %-10s n=%-6d err=%-4d p50=%-8s p95=%-8s p99=%-8s max=%s\n",
			st.Label, st.Count, st.Errors, round(st.P50), round(st.P95), round(st.P99), round(st.Max))
	}
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("riskproxy"), version)
}
