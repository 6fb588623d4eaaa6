// Package output renders live progress while a load test runs.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/inferload/inferload/internal/output"
	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line

	// Box drawing characters
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	// Progress bar characters
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress  float64       // 0.0 to 1.0
	Elapsed   time.Duration // Time elapsed since test start
	Remaining time.Duration // Estimated time remaining

	// VU stats
	ActiveVUs int // Live virtual users, including draining ones
	TargetVUs int // Target virtual users

	// Request stats
	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64 // 0.0 to 1.0
	TotalTokens   int64

	// Latency stats
	LatencyP95 time.Duration
	LatencyAvg time.Duration

	// Phase info
	CurrentPhase string
	CurrentTag   string
	CurrentStage int // 1-indexed, 0 before the first stage
	TotalStages  int
}

// ConsoleOutput manages live console output during test execution.
type ConsoleOutput struct {
	testName      string
	executorType  string
	timeline      string
	totalDuration time.Duration
	writer        io.Writer
	isTTY         bool
	quiet         bool
	colors        *output.ColorScheme

	// State
	mu          sync.Mutex
	lastStats   *LiveStats
	linesOutput int // Number of lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName      string
	ExecutorType  string
	Timeline      string
	TotalDuration time.Duration
	Writer        io.Writer
	Quiet         bool
	NoColor       bool
	ForceColors   bool
	ForceTTY      bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)

	var colors *output.ColorScheme
	switch {
	case config.NoColor:
		colors = output.NoColorScheme()
	case config.ForceColors:
		colors = output.ForceColorScheme()
	case isTTY:
		colors = output.DefaultColorScheme()
	default:
		colors = output.NoColorScheme()
	}

	return &ConsoleOutput{
		testName:      config.TestName,
		executorType:  config.ExecutorType,
		timeline:      config.Timeline,
		totalDuration: config.TotalDuration,
		writer:        config.Writer,
		isTTY:         isTTY,
		quiet:         config.Quiet,
		colors:        colors,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintHeader prints the test header.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	executorInfo := ""
	if c.executorType != "" {
		executorInfo = fmt.Sprintf(" [%s]", c.executorType)
	}

	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running%s", c.testName, executorInfo))
	if c.timeline != "" {
		c.writeln(c.colors.Dim.Sprintf("stages: %s", c.timeline))
	}
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln("")
}

// Update redraws the live display in place. It does nothing unless the
// writer is a terminal; use PrintNonInteractiveUpdate otherwise.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastStats = stats
	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Finish clears the live display so a summary can follow.
func (c *ConsoleOutput) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTTY {
		c.clearLive()
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := c.renderProgressBar(stats.Progress, 40)
	progressPercent := fmt.Sprintf("%.0f%%", stats.Progress*100)
	timeInfo := fmt.Sprintf("%s / %s", output.FormatDuration(stats.Elapsed), output.FormatDuration(stats.Elapsed+stats.Remaining))

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Success.Sprint(progressBar),
		c.colors.Title.Sprint(progressPercent),
		c.colors.Dim.Sprint(timeInfo)))

	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Phase.Sprint(stageInfo(stats))))
	if stats.CurrentTag != "" {
		lines = append(lines, fmt.Sprintf("Tag:      %s", c.colors.Tag.Sprint(stats.CurrentTag)))
	}
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprintf("%d", stats.ActiveVUs), stats.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", c.colors.Value.Sprint(output.FormatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr, boxWidth))

	errColor := c.colors.ErrorRate(stats.ErrorRate)
	rpsStr := fmt.Sprintf("RPS:     %s", c.colors.Success.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprintf("%d", stats.Errors),
		errColor.Sprint(output.FormatPercent(stats.ErrorRate)))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr, boxWidth))

	p95Str := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(output.FormatLatency(stats.LatencyP95)))
	avgStr := fmt.Sprintf("Avg:         %s", c.colors.Latency.Sprint(output.FormatLatency(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr, boxWidth))

	if stats.TotalTokens > 0 {
		tokStr := fmt.Sprintf("Tokens:  %s", c.colors.Value.Sprint(output.FormatNumber(stats.TotalTokens)))
		lines = append(lines, c.formatBoxRow(tokStr, "", boxWidth))
	}

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

func stageInfo(stats *LiveStats) string {
	if stats.TotalStages > 0 && stats.CurrentStage > 0 {
		return fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	return stats.CurrentPhase
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	// Account for ANSI codes when calculating padding
	leftVisible := []rune(stripANSI(left))
	rightVisible := []rune(stripANSI(right))

	colWidth := (boxWidth - 4) / 2 // 4 = 2 borders + 2 padding

	leftPadding := max(colWidth-len(leftVisible), 0)
	rightPadding := max(colWidth-len(rightVisible), 0)

	bar := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		bar,
		left, strings.Repeat(" ", leftPadding),
		bar,
		right, strings.Repeat(" ", rightPadding),
		bar)
}

// renderProgressBar renders a progress bar.
func (c *ConsoleOutput) renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)

	filled := int(progress * float64(width))
	empty := width - filled

	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, empty) + "]"
}

// PrintNonInteractiveUpdate prints a non-interactive status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Stage: %s | Tag: %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		output.FormatDuration(stats.Elapsed),
		stats.Progress*100,
		stageInfo(stats),
		stats.CurrentTag,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		output.FormatLatency(stats.LatencyP95)))
}

// Render prints stats the way the writer supports: redraw on a terminal, one
// line otherwise.
func (c *ConsoleOutput) Render(stats *LiveStats) {
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// Colors returns the scheme in use.
func (c *ConsoleOutput) Colors() *output.ColorScheme {
	return c.colors
}

// Writer returns the underlying writer.
func (c *ConsoleOutput) Writer() io.Writer {
	return c.writer
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}

// StatsFromMetrics creates LiveStats from a live snapshot and executor stats.
// Either may be nil.
func StatsFromMetrics(snapshot *metrics.Snapshot, exec *executor.Stats, progress float64) *LiveStats {
	stats := &LiveStats{Progress: progress, CurrentPhase: "initializing"}

	var totalDuration time.Duration
	if exec != nil {
		stats.TargetVUs = exec.TargetVUs
		stats.ActiveVUs = exec.ActiveVUs
		stats.CurrentTag = exec.CurrentTag
		stats.TotalStages = exec.TotalStages
		stats.CurrentStage = exec.CurrentStage + 1
		totalDuration = exec.TotalDuration
	}
	if snapshot == nil {
		return stats
	}

	elapsed := snapshot.Elapsed
	remaining := time.Duration(0)
	if totalDuration > 0 {
		remaining = max(totalDuration-elapsed, 0)
	} else if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	}

	stats.Elapsed = elapsed
	stats.Remaining = remaining
	stats.CurrentRPS = snapshot.RPS
	stats.TotalRequests = snapshot.TotalRequests
	stats.Errors = snapshot.FailedRequests
	stats.ErrorRate = snapshot.ErrorRate
	stats.TotalTokens = snapshot.TotalTokens
	stats.LatencyP95 = snapshot.Latency.P95
	stats.LatencyAvg = snapshot.Latency.Mean
	if snapshot.CurrentPhase != "" {
		stats.CurrentPhase = string(snapshot.CurrentPhase)
	}
	if stats.CurrentTag == "" {
		stats.CurrentTag = snapshot.CurrentTag
	}
	if exec == nil {
		stats.ActiveVUs = snapshot.ActiveVUs
	}
	return stats
}
