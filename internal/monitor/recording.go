package monitor

import (
	"path/filepath"

	"github.com/large-farva/neurotap/internal/capture"
	"github.com/large-farva/neurotap/internal/telemetry"
)

// LogState is the result of a recording command.
type LogState struct {
	Active bool   `json:"active"`
	Text   string `json:"text"`
	Path   string `json:"path,omitempty"`
	Rows   int64  `json:"rows,omitempty"`
}

// ToggleLogging starts a new session when none is active and stops the
// active one otherwise. Failures are reported in the returned text, never
// as an error.
func (m *Monitor) ToggleLogging() LogState {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if m.sink.Active() {
		return m.stopLocked()
	}
	return m.startLocked()
}

// StartLogging opens a new session, stopping the current one first if
// needed.
func (m *Monitor) StartLogging() LogState {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return m.startLocked()
}

// StopLogging closes the active session. It is a no-op when idle.
func (m *Monitor) StopLogging() LogState {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if !m.sink.Active() {
		m.mu.Lock()
		text := m.state.LogText
		m.mu.Unlock()
		return LogState{Text: text}
	}
	return m.stopLocked()
}

func (m *Monitor) startLocked() LogState {
	name := capture.SessionFileName(m.now())
	path := filepath.Join(m.recordDir, name)

	if err := m.sink.Start(path); err != nil {
		m.log.Printf("capture: %v", err)
		return m.setLogState(LogState{Text: "File Error: " + err.Error()})
	}

	m.log.Printf("capture: recording to %s", path)
	return m.setLogState(LogState{Active: true, Text: "Recording: " + name, Path: path})
}

func (m *Monitor) stopLocked() LogState {
	sum, err := m.sink.Stop()
	if err != nil {
		m.log.Printf("capture: %v", err)
		return m.setLogState(LogState{Text: "Error saving: " + err.Error(), Path: sum.Path, Rows: sum.Rows})
	}

	m.log.Printf("capture: saved %d rows to %s", sum.Rows, sum.Path)
	st := LogState{
		Text: "Log Saved to " + filepath.Base(filepath.Dir(sum.Path)) + ".",
		Path: sum.Path,
		Rows: sum.Rows,
	}

	if m.compress && m.archiveDir != "" {
		dst, err := capture.Archive(sum.Path, m.archiveDir)
		if err != nil {
			m.log.Printf("capture: archive %s: %v", sum.Path, err)
			m.logLine("warn", "archive failed: "+err.Error())
		} else {
			st.Path = dst
			st.Text = "Log Saved to " + filepath.Base(m.archiveDir) + "."
		}
	}
	return m.setLogState(st)
}

// recordingFailed handles a write error raised on the packet path. The sink
// has already closed the session.
func (m *Monitor) recordingFailed(err error) {
	m.log.Printf("capture: %v", err)
	m.setLogState(LogState{Text: "File Error: " + err.Error()})
}

func (m *Monitor) setLogState(st LogState) LogState {
	m.mu.Lock()
	m.state.Logging = st.Active
	m.state.LogText = st.Text
	m.mu.Unlock()

	m.pub.BroadcastJSON(telemetry.Logging{
		Event:  telemetry.NewEvent(telemetry.EventLogging, "capture"),
		Active: st.Active,
		Text:   st.Text,
		Path:   st.Path,
		Rows:   st.Rows,
	})
	return st
}

func (m *Monitor) logLine(level, msg string) {
	m.pub.BroadcastJSON(telemetry.LogLine{
		Event:   telemetry.NewEvent(telemetry.EventLog, component),
		Level:   level,
		Message: msg,
	})
}
