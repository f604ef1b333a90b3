// Package config holds the coop server's tunables.
//
// Values are layered: a preset, then an optional YAML file, then COOP_*
// environment variables. Command-line flags are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/tofuwabohu/server/internal/effects"
)

// Config holds the runtime settings.
type Config struct {
	// Engine
	TickInterval time.Duration `yaml:"tick_interval" env:"COOP_TICK_INTERVAL"`
	MaxTicks     uint64        `yaml:"max_ticks" env:"COOP_MAX_TICKS"`
	RateCurve    string        `yaml:"rate_curve" env:"COOP_RATE_CURVE"`
	Autopilot    bool          `yaml:"autopilot" env:"COOP_AUTOPILOT"`

	// Storage
	DBPath       string        `yaml:"db_path" env:"COOP_DB_PATH"`
	FlushTimeout time.Duration `yaml:"flush_timeout" env:"COOP_FLUSH_TIMEOUT"`

	// Network
	ListenAddr             string        `yaml:"listen_addr" env:"COOP_LISTEN_ADDR"`
	BroadcastChannelBuffer int           `yaml:"broadcast_channel_buffer" env:"COOP_BROADCAST_BUFFER"`
	ClientSendBuffer       int           `yaml:"client_send_buffer" env:"COOP_CLIENT_SEND_BUFFER"`
	PollInterval           time.Duration `yaml:"poll_interval" env:"COOP_POLL_INTERVAL"`

	LogLevel string `yaml:"log_level" env:"COOP_LOG_LEVEL"`
}

// DefaultConfig returns the settings for a long-running server.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: time.Second,
		RateCurve:    "steady",
		Autopilot:    true,

		DBPath:       "coop.db",
		FlushTimeout: 5 * time.Second,

		ListenAddr:             ":8080",
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,
		PollInterval:           200 * time.Millisecond,

		LogLevel: "info",
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 2 * time.Second
	cfg.BroadcastChannelBuffer = 16
	cfg.ClientSendBuffer = 8
	cfg.PollInterval = time.Second
	cfg.LogLevel = "debug"
	return cfg
}

// SimulationConfig returns settings for a fast, bounded offline run.
func SimulationConfig() *Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	cfg.MaxTicks = 1000
	cfg.ListenAddr = ""
	cfg.LogLevel = "warn"
	return cfg
}

// Preset returns a named preset.
func Preset(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "low":
		return LowResourceConfig(), nil
	case "simulate":
		return SimulationConfig(), nil
	default:
		return nil, fmt.Errorf("unknown config preset %q", name)
	}
}

// Load builds a Config from base, the YAML file at path (skipped when
// empty) and the environment.
func Load(base *Config, path string) (*Config, error) {
	cfg := *base
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate checks that the settings can run.
func (c *Config) Validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative, got %s", c.TickInterval)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := effects.RateByName(c.RateCurve); err != nil {
		return err
	}
	if c.BroadcastChannelBuffer <= 0 || c.ClientSendBuffer <= 0 {
		return errors.New("channel buffers must be positive")
	}
	if c.FlushTimeout <= 0 {
		return errors.New("flush_timeout must be positive")
	}
	return nil
}

// Rate resolves the configured rate curve.
func (c *Config) Rate() effects.RateFunc {
	rate, err := effects.RateByName(c.RateCurve)
	if err != nil {
		return effects.SteadyRate
	}
	return rate
}
