package ctl

import (
	"fmt"
	"strings"
)

// Connect asks the daemon to connect to the connector service. The
// connection completes in the background; use status or watch to follow it.
func Connect(baseURL string, jsonOutput bool) error {
	return control(baseURL, "/api/connect", "CONNECTING", jsonOutput)
}

// Disconnect drops the connector connection.
func Disconnect(baseURL string, jsonOutput bool) error {
	return control(baseURL, "/api/disconnect", "DISCONNECTED", jsonOutput)
}

// ToggleLog starts a raw-sample recording session, or stops the active one.
func ToggleLog(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result commandResult
	if err := postJSON(baseURL, "/api/logging/toggle", nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	label := colorize(green, "SAVED")
	if result.Logging != nil && result.Logging.Active {
		label = colorize(red, "REC")
	}
	fmt.Printf("\n  %s  %s\n", label, result.Message)
	if l := result.Logging; l != nil && !l.Active && l.Path != "" {
		fmt.Printf("  %s  %d rows, %s\n", strings.Repeat(" ", len("SAVED")), l.Rows, dim.Render(l.Path))
	}
	fmt.Println()
	return nil
}

func control(baseURL, path, label string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result commandResult
	if err := postJSON(baseURL, path, nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Printf("\n  %s  %s\n\n", colorize(green, label), result.Message)
	} else {
		fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}
