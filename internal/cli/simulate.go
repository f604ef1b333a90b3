package cli

import (
	"github.com/spf13/cobra"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Ticks uint64
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a bounded number of ticks as fast as possible",
		Long: `Run the coop headless for a fixed number of ticks, then print where it
stopped. State is read from and written to the database like a normal run,
so a simulation can continue a real coop.

Example:
  coop simulate --ticks 5000 --db /tmp/coop.db
  coop simulate --ticks 100 --autopilot=false --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts.RootOptions, "simulate")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if cmd.Flags().Changed("ticks") || cfg.MaxTicks == 0 {
				cfg.MaxTicks = opts.Ticks
			}
			if cfg.MaxTicks == 0 {
				return WrapExitError(ExitCommandError, "--ticks must be greater than zero", nil)
			}
			if !cmd.Flags().Changed("listen") {
				cfg.ListenAddr = ""
			}
			if !cmd.Flags().Changed("tick") {
				cfg.TickInterval = 0
			}

			log := newLogger(cmd.ErrOrStderr(), cfg)
			sum, err := runCoop(commandContext(cmd), cfg, log)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, sum, func() string { return formatSummary(sum) })
		},
	}

	cmd.Flags().Uint64Var(&opts.Ticks, "ticks", 1000, "number of ticks to run")
	return cmd
}
