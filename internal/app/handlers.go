package app

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/large-farva/neurotap/internal/capture"
	"github.com/large-farva/neurotap/internal/monitor"
	"github.com/large-farva/neurotap/internal/thinkgear"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// ?detailed=1 or a JSON Accept header returns component-level checks.
	if r.URL.Query().Get("detailed") == "1" || r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	mode := "live"
	if a.cfg.Demo.Enabled {
		mode = "demo"
	}

	resp := map[string]any{
		"name":           "neurotap",
		"state":          a.state.Load().(string),
		"mode":           mode,
		"uptime_seconds": a.uptime(),
		"connector":      net.JoinHostPort(a.cfg.Connector.Host, strconv.Itoa(a.cfg.Connector.Port)),
		"record_dir":     a.recordDir,
		"ws_clients":     a.wsHub.Clients(),
		"ws_dropped":     a.wsHub.Dropped(),
		"monitor":        a.monitor.Snapshot(),
	}

	if du := diskUsage(a.recordDir); du != nil {
		resp["disk"] = du
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
		"runtime":    runtime.Version(),
		"protocol":   Protocol,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg)
}

// ---------------------------------------------------------------------------
// Connection and recording commands
// ---------------------------------------------------------------------------

func (a *App) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.monitor.Connect(); err != nil {
		if errors.Is(err, thinkgear.ErrAlreadyActive) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	addr := net.JoinHostPort(a.cfg.Connector.Host, strconv.Itoa(a.cfg.Connector.Port))
	a.emit("info", "connecting to "+addr)
	writeCommandResult(w, commandResult{OK: true, Message: "connecting to " + addr})
}

func (a *App) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.monitor.Disconnect()
	writeCommandResult(w, commandResult{OK: true, Message: "disconnected"})
}

func (a *App) handleLoggingToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := a.monitor.ToggleLogging()
	res := commandResult{OK: true, Message: st.Text, Logging: &st}
	if strings.HasPrefix(st.Text, "File Error") || strings.HasPrefix(st.Text, "Error saving") {
		res.OK = false
		res.Error = st.Text
		res.Message = ""
	}
	writeCommandResult(w, res)
}

// settingsUpdate is a partial update; omitted fields keep their value.
type settingsUpdate struct {
	Raw                 *bool `json:"raw_enabled"`
	Blink               *bool `json:"blink_enabled"`
	AttentionThreshold  *int  `json:"attention_threshold"`
	MeditationThreshold *int  `json:"meditation_threshold"`
}

func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.monitor.Settings())

	case http.MethodPost:
		var req settingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		s, err := a.monitor.UpdateSettings(func(s *monitor.Settings) {
			if req.Raw != nil {
				s.RawEnabled = *req.Raw
			}
			if req.Blink != nil {
				s.BlinkEnabled = *req.Blink
			}
			if req.AttentionThreshold != nil {
				s.AttentionThreshold = *req.AttentionThreshold
			}
			if req.MeditationThreshold != nil {
				s.MeditationThreshold = *req.MeditationThreshold
			}
		})
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, s)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *App) handleWindow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"size":    a.win.Len(),
		"version": a.win.Version(),
		"points":  a.monitor.Window(),
	})
}

// ---------------------------------------------------------------------------
// Captures
// ---------------------------------------------------------------------------

func (a *App) handleCaptures(w http.ResponseWriter, r *http.Request) {
	dirs := []string{a.recordDir}
	if a.cfg.Recording.ArchiveDir != "" {
		dirs = append(dirs, a.cfg.Recording.ArchiveDir)
	}

	switch r.Method {
	case http.MethodGet:
		captures := capture.List(dirs...)
		if captures == nil {
			captures = []capture.Info{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"captures": captures})

	case http.MethodDelete:
		name, ok := sessionParam(w, r)
		if !ok {
			return
		}
		if cur, ok := a.sink.Current(); ok && filepath.Base(cur.Path) == name {
			jsonError(w, "session is still recording", http.StatusConflict)
			return
		}

		for _, dir := range dirs {
			path := filepath.Join(dir, name)
			err := os.Remove(path)
			if err == nil {
				a.emit("info", "deleted capture "+path)
				writeCommandResult(w, commandResult{OK: true, Message: "deleted " + name})
				return
			}
			if !os.IsNotExist(err) {
				jsonError(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		jsonError(w, "file not found", http.StatusNotFound)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCaptureExport streams a session as plain CSV, decompressing
// archived sessions on the fly.
func (a *App) handleCaptureExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, ok := sessionParam(w, r)
	if !ok {
		return
	}
	_, compressed, _ := capture.ParseSessionName(name)

	dirs := []string{a.recordDir}
	if a.cfg.Recording.ArchiveDir != "" {
		dirs = append(dirs, a.cfg.Recording.ArchiveDir)
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		var rc io.ReadCloser
		var err error
		if compressed {
			rc, err = capture.OpenArchived(path)
		} else {
			rc, err = os.Open(path)
		}
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+strings.TrimSuffix(name, ".zst")+`"`)
		if _, err := io.Copy(w, rc); err != nil {
			a.log.Printf("export %s: %v", path, err)
		}
		return
	}
	jsonError(w, "file not found", http.StatusNotFound)
}

// sessionParam returns the ?name= session file name, replying 400 when it is
// missing, escapes the capture directories, or is not a session file.
func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		jsonError(w, "name parameter required", http.StatusBadRequest)
		return "", false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		jsonError(w, "invalid filename", http.StatusBadRequest)
		return "", false
	}
	if _, _, ok := capture.ParseSessionName(name); !ok {
		jsonError(w, "not a session file", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	allOK := true

	// Recording directory writable.
	if err := os.MkdirAll(a.recordDir, 0o755); err != nil {
		checks["record_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		tmpPath := filepath.Join(a.recordDir, ".healthcheck")
		if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
			checks["record_dir"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			_ = os.Remove(tmpPath)
			checks["record_dir"] = map[string]any{"ok": true, "path": a.recordDir}
		}
	}

	// Connector link. Only a failed connection counts as unhealthy; being
	// disconnected is a normal idle state.
	st := a.client.Status()
	connector := map[string]any{"ok": st.State != thinkgear.Failed, "state": st.State.String()}
	if st.Reason != "" {
		connector["reason"] = st.Reason
	}
	if st.State == thinkgear.Failed {
		allOK = false
	}
	checks["connector"] = connector

	// Config file readable.
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// commandResult is the reply shape for every POST command.
type commandResult struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
	Logging *monitor.LogState `json:"logging,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, commandResult{OK: false, Error: msg})
}

// writeCommandResult writes a commandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result commandResult) {
	code := http.StatusOK
	if !result.OK {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, result)
}
