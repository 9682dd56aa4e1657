package ctl

import (
	"fmt"
	"strings"
)

// WindowOptions configures the window command.
type WindowOptions struct {
	Width int
	JSON  bool
}

type windowResponse struct {
	Size    int    `json:"size"`
	Version uint64 `json:"version"`
	Points  []struct {
		X int     `json:"x"`
		Y float64 `json:"y"`
	} `json:"points"`
}

// Window prints the current live plot as a sparkline.
func Window(baseURL string, opts WindowOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var w windowResponse
	if err := getJSON(baseURL, "/api/window", &w); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(w)
	}

	width := opts.Width
	if width <= 0 {
		width = 75
	}

	values := make([]float64, len(w.Points))
	lo, hi := 100.0, 0.0
	for i, p := range w.Points {
		values[i] = p.Y
		lo = min(lo, p.Y)
		hi = max(hi, p.Y)
	}

	fmt.Println()
	fmt.Println(header("  LIVE WINDOW"))
	fmt.Println(rule(width))
	if w.Version == 0 {
		fmt.Println("  No samples received yet.")
		fmt.Println()
		return nil
	}
	fmt.Printf("  %s\n", cyan.Render(sparkline(values, width)))
	fmt.Println(rule(width))
	fmt.Printf("  %s %d samples  %s %.1f..%.1f  %s %d\n",
		dim.Render("window:"), w.Size,
		dim.Render("range:"), lo, hi,
		dim.Render("received:"), w.Version)
	fmt.Println()
	return nil
}
