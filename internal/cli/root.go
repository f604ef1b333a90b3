// Package cli wires the coop together behind cobra commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/config"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Preset     string
	Format     string // "json" | "text"

	// Overrides; applied only when the flag was set.
	DBPath    string
	Listen    string
	Tick      time.Duration
	LogLevel  string
	Rate      string
	Autopilot bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the coop CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "coop",
		Short: "coop - a persistent chicken coop simulation",
		Long: `A tick-driven chicken coop whose counters survive restarts.

Every tick the coop advances its breeding rules, steps any hatching clutches
and flushes changed counters to SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.Preset, "preset", "", "config preset (default|low|simulate)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.DBPath, "db", "", "path to the SQLite database")
	flags.StringVar(&opts.Listen, "listen", "", "HTTP listen address, empty to disable")
	flags.DurationVar(&opts.Tick, "tick", 0, "tick interval")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.Rate, "rate", "", "hatch rate curve (steady|ramp)")
	flags.BoolVar(&opts.Autopilot, "autopilot", true, "let the coop lay eggs and build nests on its own")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewAgitateCommand(opts))

	return cmd
}

// resolveConfig layers preset, file, environment and set flags.
func resolveConfig(cmd *cobra.Command, opts *RootOptions, preset string) (*config.Config, error) {
	if opts.Preset != "" {
		preset = opts.Preset
	}
	base, err := config.Preset(preset)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(base, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = opts.DBPath
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = opts.Listen
	}
	if flags.Changed("tick") {
		cfg.TickInterval = opts.Tick
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("rate") {
		cfg.RateCurve = opts.Rate
	}
	if flags.Changed("autopilot") {
		cfg.Autopilot = opts.Autopilot
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *logger.Logger {
	if w == nil {
		w = os.Stderr
	}
	return logger.New(w, logger.ParseLevel(cfg.LogLevel))
}
