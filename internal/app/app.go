// Package app wires together the HTTP server, the WebSocket hub, and the
// connector pipeline (protocol client, live window, recorder, monitor). It
// owns the daemon's lifecycle and, in demo mode, the simulated connector.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/large-farva/neurotap/internal/capture"
	"github.com/large-farva/neurotap/internal/config"
	"github.com/large-farva/neurotap/internal/demo"
	"github.com/large-farva/neurotap/internal/monitor"
	"github.com/large-farva/neurotap/internal/telemetry"
	"github.com/large-farva/neurotap/internal/thinkgear"
	"github.com/large-farva/neurotap/internal/window"
	"github.com/large-farva/neurotap/internal/ws"
)

const (
	name      = "neurotapd"
	heartbeat = 10 * time.Second
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
}

// App is the top-level daemon process. It manages the HTTP server, the
// WebSocket event hub, and the connector pipeline.
type App struct {
	log        *log.Logger
	cfg        config.Config
	configPath string
	bind       string
	server     *http.Server

	startedAt time.Time
	state     atomic.Value // BOOTING, RUNNING, STOPPING

	recordDir string

	wsHub   *ws.Hub
	client  *thinkgear.Client
	win     *window.Buffer
	sink    *capture.Sink
	monitor *monitor.Monitor
}

// New builds the pipeline in the BOOTING state. Call Run to start serving.
func New(opts Options) (*App, error) {
	cfg := opts.Cfg
	a := &App{
		log:        opts.Logger,
		cfg:        cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		recordDir:  cfg.Recording.Dir,
	}
	if a.log == nil {
		a.log = log.Default()
	}
	if a.recordDir == "" {
		a.recordDir = monitor.DefaultRecordDir()
	}
	a.state.Store("BOOTING")

	a.wsHub = ws.NewHub(ws.Options{Welcome: a.welcome})

	a.client = thinkgear.New(thinkgear.Options{
		Logger: a.log,
		Handshake: thinkgear.Handshake{
			EnableRawOutput: true,
			Format:          "Json",
			AppName:         cfg.Connector.AppName,
			AppKey:          cfg.Connector.AppKey,
		},
		DialTimeout: cfg.Connector.DialTimeout(),
		ReadTimeout: cfg.Connector.ReadTimeout(),
		Debug:       cfg.Logging.Level == "debug",
	})
	a.win = window.New(cfg.Window.Size, cfg.Window.Baseline)
	a.sink = capture.NewSink(capture.Options{Logger: a.log, Fsync: cfg.Recording.Fsync})

	m, err := monitor.New(monitor.Options{
		Client:    a.client,
		Window:    a.win,
		Sink:      a.sink,
		Publisher: a.wsHub,
		Logger:    a.log,
		Host:      cfg.Connector.Host,
		Port:      cfg.Connector.Port,
		Settings: monitor.Settings{
			RawEnabled:          cfg.Features.Raw,
			BlinkEnabled:        cfg.Features.Blink,
			AttentionThreshold:  cfg.Features.AttentionThreshold,
			MeditationThreshold: cfg.Features.MeditationThreshold,
		},
		ZeroRawIsAbsent: cfg.Connector.ZeroRawIsAbsent,
		RecordDir:       a.recordDir,
		ArchiveDir:      cfg.Recording.ArchiveDir,
		Compress:        cfg.Recording.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	a.monitor = m
	return a, nil
}

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/connect", a.handleConnect)
	mux.HandleFunc("/api/disconnect", a.handleDisconnect)
	mux.HandleFunc("/api/logging/toggle", a.handleLoggingToggle)
	mux.HandleFunc("/api/settings", a.handleSettings)
	mux.HandleFunc("/api/window", a.handleWindow)
	mux.HandleFunc("/api/captures", a.handleCaptures)
	mux.HandleFunc("/api/captures/export", a.handleCaptureExport)
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// Run starts the HTTP server, WebSocket hub, heartbeat and window tickers,
// and the demo connector when enabled. It blocks until the context is
// cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "127.0.0.1:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", bind)

	go a.wsHub.Run(ctx)
	a.transition("RUNNING")
	go a.heartbeatLoop(ctx)
	go a.windowLoop(ctx)

	if a.cfg.Demo.Enabled {
		if err := a.startDemo(ctx); err != nil {
			_ = ln.Close()
			return err
		}
	}

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		a.transition("STOPPING")
		a.monitor.Close()
		_ = a.server.Shutdown(context.Background())
	}()

	if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startDemo runs the simulated connector on the configured connector address
// and connects to it.
func (a *App) startDemo(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Connector.Host, strconv.Itoa(a.cfg.Connector.Port))
	d := demo.New(demo.Options{
		Logger:      a.log,
		RateHz:      a.cfg.Demo.RateHz,
		GarbleEvery: a.cfg.Demo.GarbleEvery,
	})
	if err := d.Listen(ctx, addr); err != nil {
		return err
	}
	a.emit("info", "demo mode active, simulating a headset on "+addr)
	if err := a.monitor.Connect(); err != nil {
		a.log.Printf("demo: connect: %v", err)
	}
	return nil
}

// transition atomically updates the daemon state.
func (a *App) transition(newState string) {
	old := a.state.Swap(newState)
	if old == newState {
		return
	}
	a.log.Printf("state %v -> %s", old, newState)
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(heartbeat)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(telemetry.Heartbeat{
				Event:         telemetry.NewEvent(telemetry.EventHeartbeat, name),
				State:         a.state.Load().(string),
				UptimeSeconds: a.uptime(),
			})
		}
	}
}

// windowLoop publishes the live plot at publish_fps, skipping frames where
// no sample arrived.
func (a *App) windowLoop(ctx context.Context) {
	fps := a.cfg.Window.PublishFPS
	if fps <= 0 {
		return
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if v := a.win.Version(); v != last {
				last = v
				a.wsHub.BroadcastJSON(telemetry.Window{
					Event:  telemetry.NewEvent(telemetry.EventWindow, "window"),
					Points: a.win.Points(),
				})
			}
		}
	}
}

// welcome is what every new WebSocket client receives before the live
// stream: the connection status and the feature settings.
func (a *App) welcome() []any {
	st := a.monitor.Snapshot()
	s := st.Settings
	return []any{
		telemetry.Status{
			Event: telemetry.NewEvent(telemetry.EventStatus, "thinkgear"),
			State: st.Connection,
			Text:  st.StatusText,
		},
		telemetry.Settings{
			Event:               telemetry.NewEvent(telemetry.EventSettings, "monitor"),
			RawEnabled:          s.RawEnabled,
			BlinkEnabled:        s.BlinkEnabled,
			AttentionThreshold:  s.AttentionThreshold,
			MeditationThreshold: s.MeditationThreshold,
		},
	}
}

// emit logs msg and pushes it to every connected WebSocket client.
func (a *App) emit(level, msg string) {
	a.log.Print(msg)
	a.wsHub.BroadcastJSON(telemetry.LogLine{
		Event:   telemetry.NewEvent(telemetry.EventLog, name),
		Level:   level,
		Message: msg,
	})
}

func (a *App) uptime() int64 {
	return int64(time.Since(a.startedAt).Seconds())
}
