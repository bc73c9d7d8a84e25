package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ansel/lore/internal/observability"
	"github.com/ansel/lore/pkg/reconcile"
	"github.com/ansel/lore/pkg/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: startup sweep, live file watcher, periodic sweeps",
	Long: `Serve reconciles the whole document tree, then keeps the indexes current:
a file watcher picks up edits as they happen and a periodic sweep settles
anything the watcher missed. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	zl := a.log.GetZerolog()

	// Startup sweep before the watcher, so live events only ever apply on
	// top of a consistent baseline.
	stats, err := a.engine.Sweep(context.Background())
	if err != nil {
		return err
	}
	zl.Info().
		Int("indexed", stats.Indexed).
		Int("unchanged", stats.Unchanged).
		Int("pruned", stats.Pruned).
		Msg("Startup sweep completed")

	debounce := time.Duration(a.cfg.Watcher.DebounceMs) * time.Millisecond
	watcher := reconcile.NewWatcher(a.engine, a.store, debounce, zl)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	sched, err := scheduler.New(a.engine, a.cfg.Scheduler.SweepSchedule, zl)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	var metricsSrv *http.Server
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsSrv = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		zl.Info().Str("addr", a.cfg.MetricsAddr).Msg("Metrics server started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl.Info().Str("signal", sig.String()).Msg("Shutting down")

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(ctx)
	}
	return nil
}
