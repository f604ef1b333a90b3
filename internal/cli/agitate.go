package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/tofuwabohu/server/internal/agitator"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// AgitateOptions holds flags for the agitate command.
type AgitateOptions struct {
	*RootOptions
	URL        string
	Spectators int
	Posters    int
	Interval   time.Duration
	Duration   time.Duration
	Actions    []string
}

// NewAgitateCommand creates the agitate command.
func NewAgitateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AgitateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "agitate",
		Short: "Load-test a running coop server",
		Long: `Attach many spectators to a running coop and post actions at a steady pace,
then report throughput, latency and errors.

Example:
  coop agitate --url http://localhost:8080 --spectators 50 --duration 1m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()

			log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel("info"))
			res, err := agitator.Run(ctx, agitator.Config{
				BaseURL:        opts.URL,
				Spectators:     opts.Spectators,
				Posters:        opts.Posters,
				ActionInterval: opts.Interval,
				Duration:       opts.Duration,
				Actions:        opts.Actions,
			}, log)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to start agitator", err)
			}
			if err := writeOutput(cmd.OutOrStdout(), opts.Format, res, func() string { return formatAgitation(res) }); err != nil {
				return err
			}
			if res.Verdict() == "FAILED" {
				return WrapExitError(ExitFailure, "load test failed", fmt.Errorf("%d errors", res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8080", "base URL of the coop server")
	cmd.Flags().IntVar(&opts.Spectators, "spectators", 50, "concurrent websocket spectators")
	cmd.Flags().IntVar(&opts.Posters, "posters", 5, "concurrent action posters")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "pause between actions per poster")
	cmd.Flags().DurationVar(&opts.Duration, "duration", time.Minute, "how long to run")
	cmd.Flags().StringSliceVar(&opts.Actions, "actions", nil, "actions to post (default lay, nest and repeats)")
	return cmd
}

func formatAgitation(r agitator.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "messages received  %d\n", r.MessagesReceived)
	fmt.Fprintf(&b, "actions sent       %d (%d refused)\n", r.ActionsSent, r.ActionsRefused)
	fmt.Fprintf(&b, "errors             %d (%.2f%%)\n", r.Errors, r.ErrorRate*100)
	fmt.Fprintf(&b, "throughput         %.2f actions/sec\n", r.Throughput)
	fmt.Fprintf(&b, "latency            min %v  p50 %v  max %v\n", r.LatencyMin, r.LatencyP50, r.LatencyMax)
	fmt.Fprintf(&b, "verdict            %s\n", r.Verdict())
	return b.String()
}
