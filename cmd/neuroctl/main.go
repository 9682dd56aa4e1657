// Neuroctl is the command-line client for monitoring and controlling a
// running neurotapd instance. It connects over HTTP and WebSocket to query
// status, drive the connection and recorder, and stream live events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/large-farva/neurotap/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "neurotapd URL (e.g. http://192.168.1.20:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --raw are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "window":
		opts := ctl.WindowOptions{JSON: *jsonOut}
		winFlags := pflag.NewFlagSet("window", pflag.ContinueOnError)
		winFlags.IntVar(&opts.Width, "width", 75, "Sparkline width in columns")
		err = winFlags.Parse(subArgs)
		if err == nil {
			err = ctl.Window(*host, opts)
		}

	case "captures":
		opts := ctl.CapturesOptions{JSON: *jsonOut}
		capFlags := pflag.NewFlagSet("captures", pflag.ContinueOnError)
		capFlags.StringVar(&opts.Delete, "delete", "", "Delete a session file by name")
		capFlags.StringVar(&opts.Export, "export", "", "Download a session file as plain CSV")
		capFlags.StringVarP(&opts.Output, "output", "o", "", "Write the export to a file instead of stdout")
		err = capFlags.Parse(subArgs)
		if err == nil {
			err = ctl.Captures(*host, opts)
		}

	// ── Control commands ──────────────────────────────────────────
	case "connect":
		err = ctl.Connect(*host, *jsonOut)

	case "disconnect":
		err = ctl.Disconnect(*host, *jsonOut)

	case "log":
		err = ctl.ToggleLog(*host, *jsonOut)

	case "settings":
		opts := ctl.SettingsOptions{JSON: *jsonOut}
		setFlags := pflag.NewFlagSet("settings", pflag.ContinueOnError)
		setFlags.StringVar(&opts.Raw, "raw", "", "Raw plot on|off")
		setFlags.StringVar(&opts.Blink, "blink", "", "Blink detection on|off")
		setFlags.IntVar(&opts.Attention, "attention", -1, "Attention threshold (0-100)")
		setFlags.IntVar(&opts.Meditation, "meditation", -1, "Meditation threshold (0-100)")
		err = setFlags.Parse(subArgs)
		if err == nil {
			err = ctl.Settings(*host, opts)
		}

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		opts := ctl.WatchOptions{JSON: *jsonOut}
		watchFlags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		watchFlags.StringSliceVar(&opts.Filter, "filter", nil, "Event types to show (e.g. --filter status,esense)")
		err = watchFlags.Parse(subArgs)
		if err == nil {
			err = ctl.Watch(*host, opts)
		}

	case "logs":
		err = ctl.Logs(*host, ctl.LogsOptions{JSON: *jsonOut})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  neuroctl: neurotap control CLI

  USAGE
    neuroctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show connection, signal, eSense, and recording state
    health          Check daemon and component health
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    window          Draw the live raw-sample window as a sparkline
    captures        List recorded session files

  COMMANDS (control)
    connect         Connect to the ThinkGear connector
    disconnect      Drop the connector connection
    log             Start or stop recording raw samples to CSV
    settings        Show or change feature toggles and thresholds

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)
    logs            Stream daemon log lines and recording changes

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text

  COMMAND FLAGS
    window:
        --width N           Sparkline width in columns (default: 75)

    captures:
        --delete NAME       Delete a session file by name
        --export NAME       Download a session as plain CSV (archives are decompressed)
    -o, --output FILE       Write the export to FILE instead of stdout

    settings:
        --raw on|off        Plot raw samples
        --blink on|off      Report blinks
        --attention N       Attention threshold (0-100)
        --meditation N      Meditation threshold (0-100)

    watch:
        --filter TYPES      Event types to show (comma-separated)

  EXAMPLES
    neuroctl status
    neuroctl --json status
    neuroctl connect
    neuroctl log
    neuroctl settings --blink off --attention 70
    neuroctl window --width 100
    neuroctl captures --delete RawEEG_20261016_101500.csv
    neuroctl captures --export RawEEG_20261016_101500.csv.zst -o session.csv
    neuroctl --host http://192.168.1.20:8080 watch --filter status,esense,blink

`)
}
