package ctl

import (
	"fmt"
	"strings"
)

// SettingsOptions configures the settings command. Empty toggles and
// negative thresholds leave the current value unchanged.
type SettingsOptions struct {
	Raw        string
	Blink      string
	Attention  int
	Meditation int
	JSON       bool
}

// settingsBody is the partial update sent to POST /api/settings.
type settingsBody struct {
	Raw                 *bool `json:"raw_enabled,omitempty"`
	Blink               *bool `json:"blink_enabled,omitempty"`
	AttentionThreshold  *int  `json:"attention_threshold,omitempty"`
	MeditationThreshold *int  `json:"meditation_threshold,omitempty"`
}

type settingsResponse struct {
	RawEnabled          bool `json:"raw_enabled"`
	BlinkEnabled        bool `json:"blink_enabled"`
	AttentionThreshold  int  `json:"attention_threshold"`
	MeditationThreshold int  `json:"meditation_threshold"`
}

// Settings shows the feature toggles and thresholds, updating them first
// when any option is set.
func Settings(baseURL string, opts SettingsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	body, changed, err := opts.body()
	if err != nil {
		return err
	}

	var s settingsResponse
	if changed {
		err = postJSON(baseURL, "/api/settings", body, &s)
	} else {
		err = getJSON(baseURL, "/api/settings", &s)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(s)
	}

	fmt.Println()
	fmt.Println(header("  SETTINGS"))
	fmt.Println(rule(32))
	fmt.Printf("  %s %s\n", padRight(dim.Render("Raw plot:"), 22), onOff(s.RawEnabled))
	fmt.Printf("  %s %s\n", padRight(dim.Render("Blink detection:"), 22), onOff(s.BlinkEnabled))
	fmt.Printf("  %s %d\n", padRight(dim.Render("Attention threshold:"), 22), s.AttentionThreshold)
	fmt.Printf("  %s %d\n", padRight(dim.Render("Meditation threshold:"), 22), s.MeditationThreshold)
	fmt.Println()
	return nil
}

func (o SettingsOptions) body() (settingsBody, bool, error) {
	var b settingsBody
	changed := false

	if o.Raw != "" {
		v, err := parseOnOff(o.Raw)
		if err != nil {
			return b, false, fmt.Errorf("--raw: %w", err)
		}
		b.Raw = &v
		changed = true
	}
	if o.Blink != "" {
		v, err := parseOnOff(o.Blink)
		if err != nil {
			return b, false, fmt.Errorf("--blink: %w", err)
		}
		b.Blink = &v
		changed = true
	}
	if o.Attention >= 0 {
		v := o.Attention
		b.AttentionThreshold = &v
		changed = true
	}
	if o.Meditation >= 0 {
		v := o.Meditation
		b.MeditationThreshold = &v
		changed = true
	}
	return b, changed, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}
