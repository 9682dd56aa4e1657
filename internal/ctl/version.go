package ctl

import (
	"fmt"
	"strings"
)

// Build-time variables set via -ldflags.
var (
	Version   = "dev"
	GoVersion = "unknown"
)

// VersionInfo fetches daemon version via GET /api/version and displays both
// the CLI and daemon version information.
func VersionInfo(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var daemon struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
		Protocol  string `json:"protocol"`
	}
	daemonErr := getJSON(baseURL, "/api/version", &daemon)

	if jsonOutput {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    Version,
				"go_version": GoVersion,
			},
		}
		if daemonErr == nil {
			resp["daemon"] = daemon
		} else {
			resp["daemon_error"] = daemonErr.Error()
		}
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  NEUROTAP VERSION"))
	fmt.Println(rule(38))
	fmt.Printf("  %s %s\n", padRight(dim.Render("CLI:"), 12), Version+" ("+GoVersion+")")
	if daemonErr != nil {
		fmt.Printf("  %s %s\n", padRight(dim.Render("Daemon:"), 12), colorize(red, "unreachable: "+daemonErr.Error()))
	} else {
		fmt.Printf("  %s %s\n", padRight(dim.Render("Daemon:"), 12), daemon.Version+" ("+daemon.GoVersion+")")
		fmt.Printf("  %s %s\n", padRight(dim.Render("Built:"), 12), daemon.BuiltAt)
		if daemon.Protocol != "" {
			fmt.Printf("  %s %s\n", padRight(dim.Render("Protocol:"), 12), daemon.Protocol)
		}
	}
	fmt.Println()

	return nil
}
