package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all but window)
	JSON   bool     // output raw JSON per event
}

// wsURL turns the daemon base URL into its WebSocket endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := wsURL(baseURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), dim.Render(target))
		if len(opts.Filter) > 0 {
			fmt.Printf("  %s %s\n", dim.Render("filter:"), dim.Render(strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(rule(50))
		fmt.Println()
	}

	show := eventFilter(opts.Filter, opts.JSON)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var ev struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &ev); err == nil && !show(ev.Type) {
				continue
			}

			if opts.JSON {
				fmt.Println(string(msg))
			} else {
				renderEvent(os.Stdout, msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(dim.Render("  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

// eventFilter returns the predicate for which event types to print. Window
// snapshots arrive many times a second, so the human view only shows them
// when asked for explicitly.
func eventFilter(filter []string, jsonOutput bool) func(string) bool {
	if len(filter) == 0 {
		return func(t string) bool { return jsonOutput || t != "window" }
	}
	set := make(map[string]bool, len(filter))
	for _, f := range filter {
		set[strings.TrimSpace(f)] = true
	}
	return func(t string) bool { return set[t] }
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(w io.Writer, raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(w, "  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := dim.Render(formatEventTime(ev))
	label := func(s string) string { return padRight(s, 9) }

	switch evType {
	case "heartbeat":
		// Heartbeats are noisy, so they get a single dim line.
		state, _ := ev["state"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		fmt.Fprintf(w, "  %s %s  %s  up %s\n",
			ts,
			dim.Render(label("heartbeat")),
			colorize(stateColor(state), state),
			dim.Render(formatDuration(time.Duration(uptime)*time.Second)),
		)

	case "status":
		state, _ := ev["state"].(string)
		text, _ := ev["text"].(string)
		fmt.Fprintf(w, "  %s %s  %s\n", ts, bold.Render(label("STATUS")), colorize(stateColor(state), text))

	case "signal":
		lvl, _ := ev["poor_signal_level"].(float64)
		quality := "good contact"
		switch {
		case lvl >= 200:
			quality = "no contact"
		case lvl > 0:
			quality = "noisy"
		}
		fmt.Fprintf(w, "  %s %s  %s  %s\n", ts, label("signal"),
			colorize(signalColor(int(lvl)), fmt.Sprintf("%3.0f", lvl)), dim.Render(quality))

	case "blink":
		strength, _ := ev["strength"].(float64)
		fmt.Fprintf(w, "  %s %s  strength %.0f\n", ts, colorize(blue, label("blink")), strength)

	case "esense":
		att, _ := ev["attention"].(float64)
		med, _ := ev["meditation"].(float64)
		attT, _ := ev["attention_threshold"].(float64)
		medT, _ := ev["meditation_threshold"].(float64)
		fmt.Fprintf(w, "  %s %s  att %s %3.0f  med %s %3.0f\n", ts, label("esense"),
			meter(int(att), int(attT), 10), att,
			meter(int(med), int(medT), 10), med)

	case "headset":
		status, _ := ev["status"].(string)
		fmt.Fprintf(w, "  %s %s  %s\n", ts, label("headset"), status)

	case "logging":
		active, _ := ev["active"].(bool)
		text, _ := ev["text"].(string)
		tag := colorize(green, label("LOGGING"))
		if active {
			tag = colorize(red, label("REC"))
		}
		fmt.Fprintf(w, "  %s %s  %s\n", ts, tag, text)

	case "settings":
		rawOn, _ := ev["raw_enabled"].(bool)
		blinkOn, _ := ev["blink_enabled"].(bool)
		attT, _ := ev["attention_threshold"].(float64)
		medT, _ := ev["meditation_threshold"].(float64)
		fmt.Fprintf(w, "  %s %s  raw %s  blink %s  thresholds %.0f/%.0f\n", ts, label("settings"),
			onOff(rawOn), onOff(blinkOn), attT, medT)

	case "window":
		pts, _ := ev["points"].([]any)
		values := make([]float64, 0, len(pts))
		for _, p := range pts {
			if m, ok := p.(map[string]any); ok {
				y, _ := m["y"].(float64)
				values = append(values, y)
			}
		}
		fmt.Fprintf(w, "  %s %s  %s\n", ts, label("window"), cyan.Render(sparkline(values, 60)))

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		component, _ := ev["component"].(string)
		src := ""
		if component != "" {
			src = dim.Render("["+component+"] ")
		}
		fmt.Fprintf(w, "  %s %s  %s%s\n", ts, padRight(formatLogLevel(level), 9), src, message)

	default:
		// Unknown event type: dump as indented JSON so nothing is lost.
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(w, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(w, "  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		if len(tsRaw) > 8 {
			return tsRaw[:8]
		}
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
