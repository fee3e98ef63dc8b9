package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/keiko-bench/keiko/internal/runner"
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

// progressReporter renders runner progress events as per-task lines.
type progressReporter struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	verbose bool
}

func newProgressReporter(out io.Writer, verbose bool) *progressReporter {
	width := defaultWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return &progressReporter{out: out, width: width, verbose: verbose}
}

// Listen is a runner.ProgressListener.
func (p *progressReporter) Listen(event runner.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.EventType {
	case runner.EventRunStart:
		label := "tasks"
		if event.TaskID != "" {
			label = fmt.Sprintf("trials of %s", event.TaskID)
		}
		fmt.Fprintf(p.out, "Running %d %s...\n", event.Total, label)

	case runner.EventTaskStart:
		if p.verbose {
			fmt.Fprintln(p.out, p.fit(fmt.Sprintf("→ %s", p.slotName(event))))
		}

	case runner.EventTaskComplete:
		icon := "✓"
		if !event.Passed {
			icon = "✗"
		}
		line := fmt.Sprintf("%s %s score=%.2f (%s)",
			icon, padRight(p.slotName(event), 28), event.Score,
			formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
		fmt.Fprintln(p.out, p.fit(line))

	case runner.EventAgentUpdate:
		if p.verbose {
			kind, _ := event.Details["kind"].(string)
			content, _ := event.Details["content"].(string)
			if content != "" {
				content = strings.ReplaceAll(content, "\n", " ")
				fmt.Fprintln(p.out, p.fit(fmt.Sprintf("  [%s] %s", kind, content)))
			}
		}

	case runner.EventRunComplete:
		fmt.Fprintf(p.out, "Completed in %s\n", formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
	}
}

func (p *progressReporter) slotName(event runner.ProgressEvent) string {
	if event.Trial > 0 {
		return fmt.Sprintf("%s [trial %d]", event.TaskID, event.Trial)
	}
	return event.TaskID
}

// fit truncates a line to the terminal's display width.
func (p *progressReporter) fit(s string) string {
	return truncate(s, p.width)
}

// truncate shortens s so its terminal display width fits maxWidth, marking
// the cut with an ellipsis.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 1 || runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth-1, "") + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// formatDuration formats a duration in a consistent, human-readable way.
// This ensures stable output regardless of Go version changes.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	// Use the built-in formatting but ensure we control it
	return d.String()
}
