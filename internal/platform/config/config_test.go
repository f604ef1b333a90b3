package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(DefaultConfig(), "")
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), *cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "tick_interval: 250ms\nrate_curve: ramp\ndb_path: /tmp/x.db\n")
	t.Setenv("COOP_DB_PATH", "/var/lib/coop/coop.db")
	t.Setenv("COOP_AUTOPILOT", "false")

	cfg, err := Load(DefaultConfig(), path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "ramp", cfg.RateCurve)
	assert.Equal(t, "/var/lib/coop/coop.db", cfg.DBPath, "env beats the file")
	assert.False(t, cfg.Autopilot)
	assert.Equal(t, ":8080", cfg.ListenAddr, "untouched fields keep the preset")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(LowResourceConfig(), writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(DefaultConfig(), writeFile(t, "tick_intervall: 1s\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(DefaultConfig(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"negative tick": func(c *Config) { c.TickInterval = -time.Second },
		"no db":         func(c *Config) { c.DBPath = "" },
		"bad curve":     func(c *Config) { c.RateCurve = "cubic" },
		"zero buffer":   func(c *Config) { c.ClientSendBuffer = 0 },
		"zero timeout":  func(c *Config) { c.FlushTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, SimulationConfig().Validate())
}

func TestPreset(t *testing.T) {
	for _, name := range []string{"", "default", "low", "simulate"} {
		cfg, err := Preset(name)
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	}
	_, err := Preset("turbo")
	assert.Error(t, err)
}
