package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Commits int
	Recap   bool
	Since   uint64
}

// ShowResult is what show prints.
type ShowResult struct {
	Values  map[string]string      `json:"values"`
	Commits []storage.CommitRecord `json:"commits"`
	Recap   *storage.Recap         `json:"recap,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored coop counters and recent flushes",
		Long: `Print what the database holds without running the coop.

Example:
  coop show --db ./coop.db
  coop show --db ./coop.db --commits 20 --format json
  coop show --db ./coop.db --recap --since 500`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts.RootOptions, "default")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			// show never creates a database
			if _, err := os.Stat(cfg.DBPath); err != nil {
				return WrapExitError(ExitCommandError, "database not found", err)
			}

			store, err := storage.OpenSQLite(cfg.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer store.Close()

			ctx := commandContext(cmd)
			values, err := store.All(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read counters", err)
			}
			res := ShowResult{Values: values}
			if opts.Commits > 0 {
				res.Commits, err = store.RecentCommits(ctx, opts.Commits)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read commits", err)
				}
			}
			if opts.Recap {
				res.Recap, err = storage.NewReconstructor(store).GenerateRecap(ctx, opts.Since)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to build recap", err)
				}
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, res, func() string { return formatShow(res) })
		},
	}

	cmd.Flags().IntVar(&opts.Commits, "commits", 5, "number of recent flush commits to list")
	cmd.Flags().BoolVar(&opts.Recap, "recap", false, "summarize the persisted journal")
	cmd.Flags().Uint64Var(&opts.Since, "since", 0, "first tick the recap covers")
	return cmd
}

func formatShow(res ShowResult) string {
	var b strings.Builder
	if len(res.Values) == 0 {
		b.WriteString("no counters stored yet\n")
	}
	for _, key := range sortedKeys(res.Values) {
		fmt.Fprintf(&b, "%-12s %s\n", key, res.Values[key])
	}
	if len(res.Commits) > 0 {
		b.WriteString("\nrecent commits:\n")
		for _, c := range res.Commits {
			fmt.Fprintf(&b, "  tick %-8d keys %-3d %s\n", c.Tick, c.Keys, c.CommittedAt.Format("2006-01-02 15:04:05"))
		}
	}
	if r := res.Recap; r != nil {
		fmt.Fprintf(&b, "\nrecap from tick %d to %d (%d ticks committed):\n", r.SinceTick, r.LastTick, r.Ticks)
		fmt.Fprintf(&b, "  clutches %d  hatched %d  settled %d\n", r.Clutches, r.ChicksHatched, r.ChicksSettled)
		fmt.Fprintf(&b, "  actions applied %d  rejected %d  flush failures %d\n", r.ActionsApplied, r.ActionsRejected, r.FlushFailures)
		for _, e := range r.Events {
			fmt.Fprintf(&b, "  [%d] %-8s %s\n", e.Tick, e.Impact, e.Summary)
		}
	}
	return b.String()
}
