package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// CapturesOptions configures the captures command.
type CapturesOptions struct {
	Delete string
	Export string // session to download as plain CSV
	Output string // export destination; empty writes to stdout
	JSON   bool
}

// Captures lists or deletes recorded session files on the daemon.
func Captures(baseURL string, opts CapturesOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Export != "" {
		return exportCapture(baseURL, opts.Export, opts.Output)
	}

	// Handle deletion.
	if opts.Delete != "" {
		var result commandResult
		if err := deleteJSON(baseURL, "/api/captures?name="+url.QueryEscape(opts.Delete), &result); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(result)
		}
		if result.OK {
			fmt.Printf("\n  %s  %s\n\n", colorize(green, "DELETED"), result.Message)
		} else {
			fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
		}
		return nil
	}

	// List captures.
	var resp struct {
		Captures []struct {
			Filename   string `json:"filename"`
			Dir        string `json:"dir"`
			Started    string `json:"started"`
			Size       int64  `json:"size"`
			Compressed bool   `json:"compressed"`
		} `json:"captures"`
	}
	if err := getJSON(baseURL, "/api/captures", &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  CAPTURES"))

	if len(resp.Captures) == 0 {
		fmt.Println(rule(24))
		fmt.Println("  No session files found.")
	} else {
		t := newTable("  ", "Started", "Size", "Format", "Filename")
		t.alignRight(1)
		for _, c := range resp.Captures {
			started := c.Started
			if ts, err := time.Parse(time.RFC3339, c.Started); err == nil {
				started = ts.Format("2006-01-02 15:04:05")
			}
			format := "csv"
			if c.Compressed {
				format = "csv.zst"
			}
			t.row(started, formatBytes(c.Size), format, c.Filename)
		}
		t.flush()
	}
	fmt.Println()
	return nil
}

// exportCapture downloads a session, decompressed, to path or stdout.
func exportCapture(baseURL, name, path string) error {
	code, body, err := getRaw(baseURL, "/api/captures/export?name="+url.QueryEscape(name))
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("HTTP %d: %s", code, e.Error)
		}
		return fmt.Errorf("HTTP %d: %s", code, strings.TrimSpace(string(body)))
	}

	if path == "" {
		_, err = os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "  %s  %s -> %s\n", colorize(green, "EXPORTED"), name, path)
	return nil
}
