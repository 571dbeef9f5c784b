package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nathoo/condcore/engine/events"
	"github.com/nathoo/condcore/engine/metrics"
	"github.com/nathoo/condcore/loader"
	"github.com/nathoo/condcore/store"
)

var watchFlags struct {
	db          string
	schedule    string
	metricsAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Poll verdicts against a fact store and hot-reload the ruleset",
	Long: `Evaluate every composite against a SQLite fact store on a schedule and
log each verdict change. Edits to the ruleset directory are picked up
without a restart; a ruleset that fails to load leaves the previous one in
place.

When --metrics-addr is set (or metrics are enabled in the config file),
Prometheus metrics are served on /metrics.

Examples:
  condcore watch ./rules --db facts.db
  condcore watch ./rules --db facts.db --schedule "@every 5s" --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.db, "db", "", "SQLite fact store")
	watchCmd.Flags().StringVar(&watchFlags.schedule, "schedule", "", `poll schedule, e.g. "@every 1s" (default from config)`)
	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = watchCmd.MarkFlagRequired("db")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if watchFlags.metricsAddr != "" {
		a.cfg.Metrics.Enabled = true
		a.cfg.Metrics.Listen = watchFlags.metricsAddr
		if a.metrics == nil {
			a.metrics = metrics.NewCollector(a.cfg.Metrics, nil)
		}
	}
	schedule := watchFlags.schedule
	if schedule == "" {
		schedule = a.cfg.Watch.Schedule
	}

	ctx := cmd.Context()
	dir := args[0]

	st, err := store.Open(ctx, watchFlags.db)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := a.newEngine(dir)
	if err != nil {
		return err
	}

	monitor := events.NewMonitor(eng, eng.Defs().Composites.Keys()...)
	poller, err := events.NewPoller(monitor, st.Source(ctx), schedule, func(ts []events.Transition) {
		for _, t := range ts {
			a.metrics.RecordTransition(t.Key, string(t.To))
		}
	}, a.log)
	if err != nil {
		return err
	}

	watcher, err := loader.NewWatcher(dir, a.cfg.Watch.Debounce, a.log)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	reload := a.reloader(eng, dir)
	onReload := func() error {
		if err := reload(); err != nil {
			return err
		}
		monitor.SetKeys(eng.Defs().Composites.Keys()...)
		poller.Tick()
		return nil
	}

	poller.Tick()
	poller.Start()
	defer poller.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Watch(ctx, onReload)
	})
	if a.metrics != nil {
		g.Go(func() error {
			return serveMetrics(ctx, a, a.metrics)
		})
	}

	a.log.Info().
		Str("dir", dir).
		Str("db", watchFlags.db).
		Int("conditions", len(monitor.Keys())).
		Msg("watching verdicts")

	return g.Wait()
}

// serveMetrics serves /metrics until ctx is done.
func serveMetrics(ctx context.Context, a *app, c *metrics.Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
