// Neurotapd is the daemon that connects to a ThinkGear connector service,
// keeps the live raw-sample window, records sessions to CSV, and serves the
// whole state over HTTP and WebSocket.
//
// It loads configuration, starts the HTTP/WebSocket server, and optionally a
// simulated connector for running without a headset. Shutdown is handled
// gracefully on SIGINT or SIGTERM: an active recording is flushed and closed.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/neurotap/internal/app"
	"github.com/large-farva/neurotap/internal/config"
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "neurotap.toml"
	}
	return filepath.Join(dir, "neurotap", "neurotap.toml")
}

func main() {
	var (
		configPath = pflag.StringP("config", "c", defaultConfigPath(), "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		demo       = pflag.Bool("demo", false, "Run a simulated connector on the connector address")
	)
	pflag.Parse()

	// An explicit --config must exist; the default path may be absent.
	load := config.LoadOrDefault
	if pflag.CommandLine.Changed("config") {
		load = config.Load
	}
	cfg, err := load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if pflag.CommandLine.Changed("demo") {
		cfg.Demo.Enabled = *demo
	}

	logger := log.New(os.Stdout, "neurotapd ", log.LstdFlags|log.Lmicroseconds)

	// Running on defaults; there is no file for the health check to watch.
	loadedFrom := *configPath
	if _, err := os.Stat(loadedFrom); err != nil {
		logger.Printf("no config at %s, using defaults", loadedFrom)
		loadedFrom = ""
	}

	a, err := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: loadedFrom,
		Bind:       *bind,
	})
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Fatalf("neurotapd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
