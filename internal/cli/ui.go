package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/chartcn/pkg/pipeline"
)

// =============================================================================
// Styles
// =============================================================================

var (
	colorAccent = lipgloss.Color("36")  // teal
	colorOK     = lipgloss.Color("35")  // green
	colorWarn   = lipgloss.Color("220") // amber
	colorFail   = lipgloss.Color("167") // soft red
	colorLabel  = lipgloss.Color("245") // gray
	colorMuted  = lipgloss.Color("240") // dim gray
)

var (
	styleAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	styleCommand = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(colorOK)
	styleWarn    = lipgloss.NewStyle().Foreground(colorWarn)
	styleFail    = lipgloss.NewStyle().Foreground(colorFail)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleInfo    = lipgloss.NewStyle().Foreground(colorLabel)
	styleLabel   = lipgloss.NewStyle().Foreground(colorLabel).Width(10)
)

const (
	markOK     = "✓"
	markFail   = "✗"
	markWarn   = "!"
	markInfo   = "›"
	markOutput = "→"
)

// =============================================================================
// Report - Human-Readable Command Results
// =============================================================================

// report writes the result lines of a command. Logs go through the logger;
// a report is what the user asked for.
type report struct {
	w io.Writer
}

func newReport(w io.Writer) report {
	return report{w: w}
}

func (r report) line(mark string, style lipgloss.Style, msg string) {
	fmt.Fprintln(r.w, style.Render(mark)+" "+msg)
}

func (r report) ok(format string, args ...any) {
	r.line(markOK, styleOK, fmt.Sprintf(format, args...))
}

func (r report) fail(format string, args ...any) {
	r.line(markFail, styleFail, fmt.Sprintf(format, args...))
}

func (r report) warn(format string, args ...any) {
	r.line(markWarn, styleWarn, styleWarn.Render(fmt.Sprintf(format, args...)))
}

func (r report) info(format string, args ...any) {
	r.line(markInfo, styleInfo, fmt.Sprintf(format, args...))
}

// detail prints an indented secondary line.
func (r report) detail(format string, args ...any) {
	fmt.Fprintln(r.w, "  "+styleMuted.Render(fmt.Sprintf(format, args...)))
}

// field prints a labeled value, e.g. a saved id.
func (r report) field(key, value string) {
	fmt.Fprintln(r.w, styleLabel.Render(key)+" "+value)
}

// artifact prints where a rendered chart went and how it was produced.
func (r report) artifact(path string, res *pipeline.Result) {
	fmt.Fprintln(r.w, "  "+styleMuted.Render(markOutput)+" "+path)
	fmt.Fprintln(r.w, "  "+renderSummary(res))
}

// nextStep suggests the command to run after this one.
func (r report) nextStep(description, command string) {
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, styleMuted.Render(description+":")+" "+styleCommand.Render(command))
}

// renderSummary describes a render result on one line: content type,
// size, timings for fresh renders and the cache status.
func renderSummary(res *pipeline.Result) string {
	parts := []string{
		res.Artifact.ContentType,
		formatBytes(res.Artifact.Size()),
	}
	status := styleMuted.Render("fresh")
	if res.CacheHit {
		status = styleOK.Render("cached")
	} else {
		parts = append(parts, "render "+res.Stats.Render.Round(time.Millisecond).String())
		if res.Stats.Acquire >= time.Millisecond {
			parts = append(parts, "wait "+res.Stats.Acquire.Round(time.Millisecond).String())
		}
	}
	sep := styleMuted.Render(" · ")
	return styleMuted.Render(strings.Join(parts, " · ")) + sep + status
}

// formatBytes renders n as B, KB or MB.
func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
