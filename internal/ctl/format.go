// Package ctl implements the client-side commands for neuroctl.
// It talks to a running neurotapd over HTTP and WebSocket and renders the results to the terminal.
package ctl

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Terminal styles. lipgloss drops the escape sequences on its own when
// stdout is not a terminal.
var (
	bold   = lipgloss.NewStyle().Bold(true)
	dim    = lipgloss.NewStyle().Faint(true)
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	blue   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// stateColor returns the style for a connector connection state.
func stateColor(state string) lipgloss.Style {
	switch state {
	case "connected", "RUNNING":
		return green
	case "connecting", "BOOTING":
		return yellow
	case "failed":
		return red
	case "disconnected", "STOPPING":
		return dim
	default:
		return white
	}
}

// signalColor grades poorSignalLevel: 0 is perfect contact, 200 none.
func signalColor(level int) lipgloss.Style {
	switch {
	case level == 0:
		return green
	case level < 50:
		return yellow
	default:
		return red
	}
}

// colorize renders text with the given style.
func colorize(style lipgloss.Style, text string) string {
	return style.Render(text)
}

// header returns a bold section header.
func header(title string) string {
	return bold.Render(title)
}

// rule is the dim divider printed under headers.
func rule(width int) string {
	return dim.Render("  " + strings.Repeat("─", width))
}

// padRight pads s with spaces to reach the given display width.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// meter builds a bar of the given width for a 0-100 eSense value. The
// filled part is highlighted when the value meets the threshold.
func meter(value, threshold, width int) string {
	value = max(0, min(100, value))
	filled := (value * width) / 100
	empty := width - filled
	style := cyan
	if value >= threshold {
		style = green
	}
	return style.Render(strings.Repeat("█", filled)) + dim.Render(strings.Repeat("·", empty))
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline downsamples values (0-100 plot coordinates) to width columns
// and draws each column as a block glyph. Higher plot values are drawn
// lower, matching the inverted y axis of the live plot.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if width > len(values) {
		width = len(values)
	}

	var b strings.Builder
	step := float64(len(values)) / float64(width)
	for col := 0; col < width; col++ {
		lo := int(float64(col) * step)
		hi := int(float64(col+1) * step)
		if hi <= lo {
			hi = lo + 1
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		mean := sum / float64(hi-lo)
		level := (100 - math.Max(0, math.Min(100, mean))) / 100
		idx := int(math.Round(level * float64(len(sparkRunes)-1)))
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// onOff renders a feature toggle.
func onOff(v bool) string {
	if v {
		return green.Render("on")
	}
	return dim.Render("off")
}
