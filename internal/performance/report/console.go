package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/inferload/inferload/internal/output"
	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/request"
)

// Summary prints the end-of-run summary: overall figures, one row per
// concurrency tag, failures by reason and thresholds.
type Summary struct {
	w      io.Writer
	colors *output.ColorScheme
}

// NewSummary builds a summary printer. A nil scheme disables colour.
func NewSummary(w io.Writer, colors *output.ColorScheme) *Summary {
	if w == nil {
		w = os.Stdout
	}
	if colors == nil {
		colors = output.NoColorScheme()
	}
	return &Summary{w: w, colors: colors}
}

// Name implements Sink.
func (s *Summary) Name() string { return string(FormatConsole) }

// Write implements Sink.
func (s *Summary) Write(ctx context.Context, result *engine.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Print(result)
}

// Print writes the summary.
func (s *Summary) Print(result *engine.Result) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	c := s.colors
	overall := result.Overall()

	line := strings.Repeat("━", 56)
	status := c.Success.Sprint("Completed ✓")
	if !result.Passed {
		status = c.Error.Sprint("Failed ✗")
	}

	s.println("")
	s.println(c.Rule.Sprint(line))
	s.printf("%s - %s\n", c.Title.Sprint(result.Name), status)
	s.println(c.Rule.Sprint(line))
	s.println("")

	s.printf("Target:        %s (%s)\n", c.Value.Sprint(result.Target), result.Protocol)
	if result.Model != "" {
		s.printf("Model:         %s\n", c.Value.Sprint(result.Model))
	}
	s.printf("Stages:        %s\n", c.Value.Sprint(result.Timeline))
	s.printf("Duration:      %s\n", c.Value.Sprint(output.FormatDuration(result.Duration)))
	s.printf("Total Reqs:    %s\n", c.Value.Sprint(output.FormatNumber(overall.Count)))
	s.printf("Success Rate:  %s\n", c.ErrorRate(overall.ErrorRate).Sprint(output.FormatPercent(1-overall.ErrorRate)))
	s.printf("Throughput:    %s\n", c.Value.Sprintf("%.2f req/s", overall.RPS))
	if overall.Usage.TotalTokens > 0 {
		s.printf("Tokens:        %s prompt, %s completion\n",
			c.Value.Sprint(output.FormatNumber(int64(overall.Usage.PromptTokens))),
			c.Value.Sprint(output.FormatNumber(int64(overall.Usage.CompletionTokens))))
	}
	s.printf("VUs Spawned:   %s\n", c.Value.Sprint(result.Spawned))
	s.println("")

	if tags := result.Tags(); len(tags) > 0 {
		s.println(c.Title.Sprint("Latency by Concurrency:"))
		if err := s.printTagTable(result); err != nil {
			return err
		}
		s.println("")
	}

	if overall.Failures > 0 {
		s.println(c.Title.Sprint("Failures:"))
		for _, reason := range []request.FailureReason{request.ReasonTransport, request.ReasonValidation, request.ReasonSchemaParse} {
			if n := overall.FailureCount(reason); n > 0 {
				s.printf("  %-20s %s\n", reason, c.Error.Sprint(output.FormatNumber(n)))
			}
		}
		for check, n := range overall.FailuresByCheck {
			s.printf("  %s %s\n", c.Dim.Sprintf("check %q:", check), output.FormatNumber(n))
		}
		s.println("")
	}

	if len(result.Thresholds) > 0 {
		s.println(c.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.Success.Sprint("✓")
			if !t.Passed {
				icon = c.Error.Sprint("✗")
			}
			s.printf("  %s %s %s (actual: %s)\n", icon, t.Metric, t.Expression, t.Value)
		}
		s.println("")
	}

	for _, w := range result.Warnings {
		s.printf("%s %s\n", c.Warn.Sprint("⚠"), w)
	}
	return nil
}

// printTagTable writes one row per tag plus an overall row. Cells are left
// uncoloured so tabwriter can measure them.
func (s *Summary) printTagTable(result *engine.Result) error {
	percentiles := metrics.DefaultPercentiles
	if result.Aggregate != nil && len(result.Aggregate.Percentiles) > 0 {
		percentiles = result.Aggregate.Percentiles
	}

	tw := tabwriter.NewWriter(s.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"tag", "reqs", "fail", "err%", "rps", "min", "avg"}
	for _, p := range percentiles {
		header = append(header, metrics.PercentileKey(p))
	}
	header = append(header, "max")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	row := func(tag string, st *metrics.AggregateStats) {
		cells := []string{
			tag,
			output.FormatNumber(st.Count),
			output.FormatNumber(st.Failures),
			fmt.Sprintf("%.2f", st.ErrorRate*100),
			fmt.Sprintf("%.2f", st.RPS),
			output.FormatLatency(st.Min),
			output.FormatLatency(st.Mean),
		}
		for _, p := range percentiles {
			v, _ := st.Percentile(p)
			cells = append(cells, output.FormatLatency(v))
		}
		cells = append(cells, output.FormatLatency(st.Max))
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}

	for _, ts := range result.Tags() {
		row(ts.Tag, &ts.AggregateStats)
	}
	if len(result.Tags()) > 1 {
		row("overall", result.Overall())
	}
	return tw.Flush()
}

func (s *Summary) println(a string) {
	fmt.Fprintln(s.w, a)
}

func (s *Summary) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.w, format, args...)
}
