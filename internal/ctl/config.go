package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// sectionOrder is the order config sections appear in the TOML file.
var sectionOrder = []string{"connector", "features", "window", "recording", "logging", "server", "demo"}

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var cfg map[string]map[string]any
	if err := getJSON(baseURL, "/api/config", &cfg); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cfg)
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(rule(50))

	for _, name := range orderedSections(cfg) {
		fmt.Printf("\n  %s\n", bold.Render("["+name+"]"))
		fields := cfg[name]
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s %v\n", padRight(dim.Render(k+":"), 22), formatValue(fields[k]))
		}
	}
	fmt.Println()

	return nil
}

// orderedSections lists known sections first, then anything the daemon added.
func orderedSections(cfg map[string]map[string]any) []string {
	seen := make(map[string]bool, len(cfg))
	var out []string
	for _, name := range sectionOrder {
		if _, ok := cfg[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range cfg {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return dim.Render(`""`)
		}
		return x
	case float64:
		// JSON numbers decode as float64; show integers without a decimal.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
