// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between neurotapd and its clients. Every event embeds
// the same envelope so clients can switch on Type before decoding the rest.
package telemetry

import (
	"time"

	"github.com/large-farva/neurotap/internal/packet"
	"github.com/large-farva/neurotap/internal/window"
)

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventStatus    EventType = "status"
	EventSignal    EventType = "signal"
	EventBlink     EventType = "blink"
	EventESense    EventType = "esense"
	EventHeadset   EventType = "headset"
	EventLogging   EventType = "logging"
	EventWindow    EventType = "window"
	EventSettings  EventType = "settings"
	EventLog       EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewEvent stamps an envelope with the current time.
func NewEvent(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Status reports a connector connection transition.
type Status struct {
	Event
	State  string `json:"state"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// Signal reports a change in electrode contact quality (0 best, 200 none).
type Signal struct {
	Event
	PoorSignalLevel int `json:"poor_signal_level"`
}

// Blink carries one detected blink.
type Blink struct {
	Event
	Strength int `json:"strength"`
}

// ESense carries a summary frame and how it compares to the configured
// thresholds. Threshold handling is left to the client.
type ESense struct {
	Event
	Attention           int             `json:"attention"`
	Meditation          int             `json:"meditation"`
	AttentionThreshold  int             `json:"attention_threshold"`
	MeditationThreshold int             `json:"meditation_threshold"`
	AttentionAbove      bool            `json:"attention_above"`
	MeditationAbove     bool            `json:"meditation_above"`
	Bands               packet.EEGPower `json:"bands"`
}

// Headset reports the connector's headset search status.
type Headset struct {
	Event
	Status string `json:"status"`
}

// Logging reports a recording session change.
type Logging struct {
	Event
	Active bool   `json:"active"`
	Text   string `json:"text"`
	Path   string `json:"path,omitempty"`
	Rows   int64  `json:"rows,omitempty"`
}

// Window carries a snapshot of the live raw-sample plot.
type Window struct {
	Event
	Points []window.Point `json:"points"`
}

// Settings reports the feature toggles and thresholds after a change.
type Settings struct {
	Event
	RawEnabled          bool `json:"raw_enabled"`
	BlinkEnabled        bool `json:"blink_enabled"`
	AttentionThreshold  int  `json:"attention_threshold"`
	MeditationThreshold int  `json:"meditation_threshold"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}
