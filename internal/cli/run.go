package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/engine"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/network"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/config"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

// Summary describes where a run stopped.
type Summary struct {
	Tick     uint64        `json:"tick"`
	State    coop.Snapshot `json:"state"`
	InFlight int           `json:"in_flight"`
	Events   int           `json:"events"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the coop server",
		Long: `Run the coop until interrupted.

The coop resumes from the database, settles any clutch that was still
hatching when the last run stopped, then ticks forever. Spectators can watch
over /ws; /api/journal, /api/state and /api/actions serve the journal, the
counters and player actions.

Example:
  coop run --db ./coop.db --listen :8080
  coop run --preset low --rate ramp`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, rootOpts, "default")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			log := newLogger(cmd.ErrOrStderr(), cfg)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := runCoop(ctx, cfg, log)
			if err != nil {
				return err
			}
			log.Info("coop stopped", "tick", sum.Tick, "state", sum.State)
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runCoop opens the database, serves HTTP when configured, and drives the
// engine until the clock runs out or ctx ends.
func runCoop(ctx context.Context, cfg *config.Config, log *logger.Logger) (Summary, error) {
	log.Info("opening database", "path", cfg.DBPath)
	store, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return Summary{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}()

	collector := metrics.NewCollector()
	eventLog := events.NewEventLog(&journalPersister{store: store, timeout: cfg.FlushTimeout})
	eng := engine.NewEngine(ctx, store, eventLog, collector, log, engine.Options{
		Rate:         cfg.Rate(),
		Autopilot:    cfg.Autopilot,
		FlushTimeout: cfg.FlushTimeout,
	})
	defer eng.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *http.Server
	if cfg.ListenAddr != "" {
		hub := network.NewHub(eng.View(), log, network.HubOptions{
			BroadcastBuffer:  cfg.BroadcastChannelBuffer,
			ClientSendBuffer: cfg.ClientSendBuffer,
			Metrics:          collector,
		})
		go hub.Run(runCtx)
		hub.StartEventPoller(runCtx, eventLog, cfg.PollInterval)

		srv = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           newMux(eng, hub, collector, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "error", err)
				cancel()
			}
		}()
	}

	ticker := engine.NewTickerClock(cfg.TickInterval)
	defer ticker.Stop()
	var clock engine.Clock = ticker
	if cfg.MaxTicks > 0 {
		clock = engine.NewBudgetClock(ticker, cfg.MaxTicks)
	}

	runErr := eng.Run(runCtx, clock)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.FlushTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown", "error", err)
		}
	}

	sum := Summary{
		Tick:     eng.Tick(),
		State:    eng.State().Snapshot(),
		InFlight: eng.InFlight(),
		Events:   eventLog.Len(),
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return sum, WrapExitError(ExitFailure, "engine error", runErr)
	}
	return sum, nil
}

func newMux(eng *engine.Engine, hub *network.Hub, collector *metrics.Collector, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	network.NewJournalHandler(eng.EventLog(), eng.View(), log).RegisterRoutes(mux)
	network.NewActionBridge(eng, log).RegisterRoutes(mux)
	mux.Handle("/metrics", collector.PrometheusHandler())
	mux.Handle("/metrics.json", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	return mux
}
