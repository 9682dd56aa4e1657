// Package monitor routes connector packets to the live plot, the raw-sample
// recorder, and the presentation layer. It owns the observable state the UI
// renders and publishes a telemetry event whenever that state changes.
package monitor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/large-farva/neurotap/internal/capture"
	"github.com/large-farva/neurotap/internal/packet"
	"github.com/large-farva/neurotap/internal/telemetry"
	"github.com/large-farva/neurotap/internal/thinkgear"
	"github.com/large-farva/neurotap/internal/window"
)

const component = "monitor"

// Publisher receives every outgoing event. *ws.Hub satisfies it.
type Publisher interface {
	BroadcastJSON(v any)
}

// Settings are the user-adjustable feature toggles and thresholds.
type Settings struct {
	RawEnabled          bool `json:"raw_enabled"`
	BlinkEnabled        bool `json:"blink_enabled"`
	AttentionThreshold  int  `json:"attention_threshold"`
	MeditationThreshold int  `json:"meditation_threshold"`
}

// DefaultSettings enables every feature with thresholds at 80.
func DefaultSettings() Settings {
	return Settings{
		RawEnabled:          true,
		BlinkEnabled:        true,
		AttentionThreshold:  80,
		MeditationThreshold: 80,
	}
}

// Validate checks that both thresholds are on the eSense scale.
func (s Settings) Validate() error {
	if s.AttentionThreshold < 0 || s.AttentionThreshold > packet.MaxESense {
		return fmt.Errorf("attention threshold %d must be between 0 and %d", s.AttentionThreshold, packet.MaxESense)
	}
	if s.MeditationThreshold < 0 || s.MeditationThreshold > packet.MaxESense {
		return fmt.Errorf("meditation threshold %d must be between 0 and %d", s.MeditationThreshold, packet.MaxESense)
	}
	return nil
}

// State is a point-in-time copy of everything the UI displays.
type State struct {
	Connection      string          `json:"connection"`
	StatusText      string          `json:"status_text"`
	SignalQuality   int             `json:"signal_quality"`
	Headset         string          `json:"headset,omitempty"`
	Attention       int             `json:"attention"`
	Meditation      int             `json:"meditation"`
	AttentionAbove  bool            `json:"attention_above"`
	MeditationAbove bool            `json:"meditation_above"`
	Blink           int             `json:"blink_strength"`
	Bands           packet.EEGPower `json:"bands"`
	Logging         bool            `json:"logging"`
	LogText         string          `json:"log_text"`
	LogPath         string          `json:"log_path,omitempty"`
	LogRows         int64           `json:"log_rows,omitempty"`
	Settings        Settings        `json:"settings"`
	Stream          thinkgear.Stats `json:"stream"`
}

// Recorder is the session sink driven by the monitor. *capture.Sink
// implements it.
type Recorder interface {
	Start(path string) error
	Write(raw int, ts time.Time) error
	Stop() (capture.Summary, error)
	Active() bool
	Current() (capture.Summary, bool)
}

// Options holds everything the Monitor needs from the caller.
type Options struct {
	Client    *thinkgear.Client
	Window    *window.Buffer
	Sink      Recorder
	Publisher Publisher
	Logger    *log.Logger

	Host string
	Port int

	Settings Settings
	// ZeroRawIsAbsent treats rawEeg == 0 as "no sample", matching
	// connectors that emit a zero placeholder on non-raw frames.
	ZeroRawIsAbsent bool

	// RecordDir receives new session files. ArchiveDir, when set with
	// Compress, receives the zstd-compressed copy of each stopped session.
	RecordDir  string
	ArchiveDir string
	Compress   bool

	// Now stamps recorded samples. Defaults to time.Now.
	Now func() time.Time
}

// Monitor is the orchestrator between the protocol client and everything
// downstream of it.
type Monitor struct {
	client *thinkgear.Client
	win    *window.Buffer
	sink   Recorder
	pub    Publisher
	log    *log.Logger
	now    func() time.Time

	host       string
	port       int
	zeroAbsent bool
	recordDir  string
	archiveDir string
	compress   bool

	unsubscribe []func()

	// logMu serializes start/stop so two toggles cannot race.
	logMu sync.Mutex

	mu    sync.Mutex
	state State
}

// New creates a Monitor and subscribes it to the client's events.
func New(opts Options) (*Monitor, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Window == nil {
		return nil, errors.New("window is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		client:     opts.Client,
		win:        opts.Window,
		sink:       opts.Sink,
		pub:        opts.Publisher,
		log:        opts.Logger,
		now:        opts.Now,
		host:       opts.Host,
		port:       opts.Port,
		zeroAbsent: opts.ZeroRawIsAbsent,
		recordDir:  opts.RecordDir,
		archiveDir: opts.ArchiveDir,
		compress:   opts.Compress,
		state: State{
			Connection:    thinkgear.Disconnected.String(),
			StatusText:    "Ready",
			SignalQuality: packet.MaxPoorSignal,
			LogText:       "Ready.",
			Settings:      opts.Settings,
		},
	}
	if m.log == nil {
		m.log = log.New(os.Stderr, "", log.LstdFlags)
	}
	if m.pub == nil {
		m.pub = nopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.host == "" {
		m.host = thinkgear.DefaultHost
	}
	if m.port == 0 {
		m.port = thinkgear.DefaultPort
	}
	if m.recordDir == "" {
		m.recordDir = DefaultRecordDir()
	}

	m.unsubscribe = append(m.unsubscribe,
		m.client.OnPacket(m.handlePacket),
		m.client.OnStatus(m.handleStatus),
	)
	return m, nil
}

// DefaultRecordDir returns ~/Documents, or the working directory when the
// home directory cannot be determined.
func DefaultRecordDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Documents")
}

// Connect starts a connection attempt to the configured connector.
func (m *Monitor) Connect() error {
	return m.client.Connect(m.host, m.port)
}

// Disconnect drops the connector connection, if any.
func (m *Monitor) Disconnect() {
	m.client.Disconnect()
}

// Close stops any recording session, disconnects, and detaches from the
// client.
func (m *Monitor) Close() {
	m.StopLogging()
	m.client.Close()
	for _, fn := range m.unsubscribe {
		fn()
	}
}

// Settings returns the current feature settings.
func (m *Monitor) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Settings
}

// UpdateSettings applies fn to a copy of the settings and stores the result
// if it validates.
func (m *Monitor) UpdateSettings(fn func(*Settings)) (Settings, error) {
	m.mu.Lock()
	prev := m.state.Settings
	s := prev
	fn(&s)
	if err := s.Validate(); err != nil {
		m.mu.Unlock()
		return prev, err
	}
	m.state.Settings = s
	m.mu.Unlock()

	m.pub.BroadcastJSON(telemetry.Settings{
		Event:               telemetry.NewEvent(telemetry.EventSettings, component),
		RawEnabled:          s.RawEnabled,
		BlinkEnabled:        s.BlinkEnabled,
		AttentionThreshold:  s.AttentionThreshold,
		MeditationThreshold: s.MeditationThreshold,
	})
	return s, nil
}

// Snapshot returns a copy of the observable state.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()

	st.Stream = m.client.Stats()
	cur, ok := m.sink.Current()
	st.Logging = ok
	if ok {
		st.LogPath = cur.Path
		st.LogRows = cur.Rows
	}
	return st
}

// Window returns an immutable snapshot of the live plot.
func (m *Monitor) Window() []window.Point {
	return m.win.Points()
}

func (m *Monitor) handleStatus(s thinkgear.Status) {
	m.mu.Lock()
	m.state.Connection = s.State.String()
	m.state.StatusText = s.Text()
	m.mu.Unlock()

	m.pub.BroadcastJSON(telemetry.Status{
		Event:  telemetry.NewEvent(telemetry.EventStatus, "thinkgear"),
		State:  s.State.String(),
		Text:   s.Text(),
		Reason: s.Reason,
	})
}

func (m *Monitor) handlePacket(p packet.Packet) {
	m.mu.Lock()
	settings := m.state.Settings
	m.mu.Unlock()

	if raw, ok := p.Raw(); ok && !(m.zeroAbsent && raw == 0) {
		if err := m.sink.Write(raw, m.now()); err != nil {
			m.recordingFailed(err)
		}
		if settings.RawEnabled {
			m.win.AppendRaw(raw)
		}
	}

	if lvl, ok := p.SignalLevel(); ok {
		m.setSignal(lvl)
	}

	if p.Status != "" {
		m.setHeadset(p.Status)
	}

	if b, ok := p.Blink(); ok && settings.BlinkEnabled {
		m.mu.Lock()
		m.state.Blink = b
		m.mu.Unlock()
		m.pub.BroadcastJSON(telemetry.Blink{
			Event:    telemetry.NewEvent(telemetry.EventBlink, component),
			Strength: b,
		})
	}

	if p.ESense != nil {
		m.setSummary(p, settings)
	}
}

func (m *Monitor) setSignal(lvl int) {
	m.mu.Lock()
	changed := m.state.SignalQuality != lvl
	m.state.SignalQuality = lvl
	m.mu.Unlock()

	if changed {
		m.pub.BroadcastJSON(telemetry.Signal{
			Event:           telemetry.NewEvent(telemetry.EventSignal, component),
			PoorSignalLevel: lvl,
		})
	}
}

func (m *Monitor) setHeadset(status string) {
	m.mu.Lock()
	changed := m.state.Headset != status
	m.state.Headset = status
	m.mu.Unlock()

	if changed {
		m.pub.BroadcastJSON(telemetry.Headset{
			Event:  telemetry.NewEvent(telemetry.EventHeadset, component),
			Status: status,
		})
	}
}

func (m *Monitor) setSummary(p packet.Packet, s Settings) {
	ev := telemetry.ESense{
		Event:               telemetry.NewEvent(telemetry.EventESense, component),
		Attention:           p.ESense.Attention,
		Meditation:          p.ESense.Meditation,
		AttentionThreshold:  s.AttentionThreshold,
		MeditationThreshold: s.MeditationThreshold,
		AttentionAbove:      p.ESense.Attention >= s.AttentionThreshold,
		MeditationAbove:     p.ESense.Meditation >= s.MeditationThreshold,
	}
	if p.EEGPower != nil {
		ev.Bands = *p.EEGPower
	}

	m.mu.Lock()
	m.state.Attention = ev.Attention
	m.state.Meditation = ev.Meditation
	m.state.AttentionAbove = ev.AttentionAbove
	m.state.MeditationAbove = ev.MeditationAbove
	if p.EEGPower != nil {
		m.state.Bands = ev.Bands
	}
	m.mu.Unlock()

	m.pub.BroadcastJSON(ev)
}

type nopPublisher struct{}

func (nopPublisher) BroadcastJSON(any) {}
