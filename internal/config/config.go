// Package config handles loading, defaulting, and validation of the neurotap
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Connector ConnectorConfig `toml:"connector" json:"connector"`
	Features  FeaturesConfig  `toml:"features"  json:"features"`
	Window    WindowConfig    `toml:"window"    json:"window"`
	Recording RecordingConfig `toml:"recording" json:"recording"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
	Server    ServerConfig    `toml:"server"    json:"server"`
	Demo      DemoConfig      `toml:"demo"      json:"demo"`
}

type ConnectorConfig struct {
	Host            string `toml:"host"               json:"host"`
	Port            int    `toml:"port"               json:"port"`
	DialTimeoutMS   int    `toml:"dial_timeout_ms"    json:"dial_timeout_ms"`
	ReadTimeoutMS   int    `toml:"read_timeout_ms"    json:"read_timeout_ms"`
	AppName         string `toml:"app_name"           json:"app_name"`
	AppKey          string `toml:"app_key"            json:"-"`
	ZeroRawIsAbsent bool   `toml:"zero_raw_is_absent" json:"zero_raw_is_absent"`
}

// DialTimeout returns the dial timeout, zero meaning none.
func (c ConnectorConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

// ReadTimeout returns the per-read timeout, zero meaning none.
func (c ConnectorConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

type FeaturesConfig struct {
	Raw                 bool `toml:"raw"                  json:"raw"`
	Blink               bool `toml:"blink"                json:"blink"`
	AttentionThreshold  int  `toml:"attention_threshold"  json:"attention_threshold"`
	MeditationThreshold int  `toml:"meditation_threshold" json:"meditation_threshold"`
}

type WindowConfig struct {
	Size       int     `toml:"size"        json:"size"`
	Baseline   float64 `toml:"baseline"    json:"baseline"`
	PublishFPS int     `toml:"publish_fps" json:"publish_fps"`
}

type RecordingConfig struct {
	Dir        string `toml:"dir"         json:"dir"`
	ArchiveDir string `toml:"archive_dir" json:"archive_dir"`
	Compress   bool   `toml:"compress"    json:"compress"`
	Fsync      bool   `toml:"fsync"       json:"fsync"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type DemoConfig struct {
	Enabled     bool `toml:"enabled"      json:"enabled"`
	RateHz      int  `toml:"rate_hz"      json:"rate_hz"`
	GarbleEvery int  `toml:"garble_every" json:"garble_every"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Connector: ConnectorConfig{
			Host: "127.0.0.1",
			Port: 13854,
		},
		Features: FeaturesConfig{
			Raw:                 true,
			Blink:               true,
			AttentionThreshold:  80,
			MeditationThreshold: 80,
		},
		Window: WindowConfig{
			Size:       300,
			Baseline:   50,
			PublishFPS: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:8080",
		},
		Demo: DemoConfig{
			RateHz: 512,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load, except that a missing file yields the
// defaults instead of an error.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks every constraint on cfg.
func Validate(cfg Config) error {
	if cfg.Connector.Host == "" {
		return errors.New("connector.host must not be empty")
	}
	if cfg.Connector.Port < 1 || cfg.Connector.Port > 65535 {
		return errors.New("connector.port must be between 1 and 65535")
	}
	if cfg.Connector.DialTimeoutMS < 0 {
		return errors.New("connector.dial_timeout_ms must be >= 0")
	}
	if cfg.Connector.ReadTimeoutMS < 0 {
		return errors.New("connector.read_timeout_ms must be >= 0")
	}
	if cfg.Features.AttentionThreshold < 0 || cfg.Features.AttentionThreshold > 100 {
		return errors.New("features.attention_threshold must be between 0 and 100")
	}
	if cfg.Features.MeditationThreshold < 0 || cfg.Features.MeditationThreshold > 100 {
		return errors.New("features.meditation_threshold must be between 0 and 100")
	}
	if cfg.Window.Size <= 0 {
		return errors.New("window.size must be > 0")
	}
	if cfg.Window.Baseline < 0 || cfg.Window.Baseline > 100 {
		return errors.New("window.baseline must be between 0 and 100")
	}
	if cfg.Window.PublishFPS < 0 || cfg.Window.PublishFPS > 120 {
		return errors.New("window.publish_fps must be between 0 and 120")
	}
	if cfg.Recording.Compress && cfg.Recording.ArchiveDir == "" {
		return errors.New("recording.archive_dir must be set when recording.compress is true")
	}
	if cfg.Logging.Level != "info" && cfg.Logging.Level != "debug" {
		return errors.New(`logging.level must be "info" or "debug"`)
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Demo.RateHz < 1 {
		return errors.New("demo.rate_hz must be >= 1")
	}
	if cfg.Demo.GarbleEvery < 0 {
		return errors.New("demo.garble_every must be >= 0")
	}
	return nil
}
