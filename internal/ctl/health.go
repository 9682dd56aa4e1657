package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Health checks daemon liveness and its component checks via
// GET /healthz?detailed=1.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	req, err := http.NewRequest(http.MethodGet, baseURL+"/healthz?detailed=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Healthy bool                       `json:"healthy"`
		Checks  map[string]json.RawMessage `json:"checks"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if jsonOutput {
		return printJSON(map[string]any{"healthy": body.Healthy, "url": baseURL, "checks": body.Checks})
	}

	fmt.Println()
	if body.Healthy {
		fmt.Printf("  %s  neurotapd is reachable at %s\n", colorize(green, "HEALTHY"), dim.Render(baseURL))
	} else {
		fmt.Printf("  %s  neurotapd returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), resp.StatusCode, dim.Render(baseURL))
	}

	names := make([]string, 0, len(body.Checks))
	for name := range body.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var c map[string]any
		if err := json.Unmarshal(body.Checks[name], &c); err != nil {
			continue
		}
		ok, _ := c["ok"].(bool)
		mark := colorize(green, "ok  ")
		if !ok {
			mark = colorize(red, "FAIL")
		}
		detail := ""
		for _, k := range []string{"error", "reason", "state", "path"} {
			if v, ok := c[k].(string); ok && v != "" {
				detail = v
				break
			}
		}
		fmt.Printf("    %s %s %s\n", mark, padRight(name, 12), dim.Render(detail))
	}
	fmt.Println()

	return nil
}
