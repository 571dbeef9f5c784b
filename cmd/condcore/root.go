package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nathoo/condcore/config"
	"github.com/nathoo/condcore/engine"
	"github.com/nathoo/condcore/engine/metrics"
	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/loader"
	"github.com/nathoo/condcore/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	strict  bool
)

var rootCmd = &cobra.Command{
	Use:   "condcore",
	Short: "Condcore - declarative condition evaluation",
	Long: `Condcore evaluates trees of named conditions against a set of facts.

Rulesets are directories of Lua and YAML files declaring atomic conditions
(a boolean or numeric check on one fact) and composite conditions that
combine them with and, or and pass-through operators.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "treat dangling references and cycles as errors")
}

// app bundles what every subcommand builds from the global flags.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Collector
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if strict {
		cfg.Loader.Strict = true
	}
	a := &app{
		cfg: cfg,
		log: logging.New(cfg.Logging, os.Stderr),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics, nil)
	}
	return a, nil
}

func (a *app) loaderOptions() loader.Options {
	return loader.Options{Strict: a.cfg.Loader.Strict, Logger: &a.log}
}

// load reads the ruleset in dir.
func (a *app) load(dir string) (*registry.Defs, error) {
	defs, err := loader.Load(dir, a.loaderOptions())
	if err != nil {
		return nil, fmt.Errorf("loading ruleset: %w", err)
	}
	return defs, nil
}

// newEngine loads dir and wraps it in an engine configured from a.
func (a *app) newEngine(dir string) (*engine.Engine, error) {
	defs, err := a.load(dir)
	if err != nil {
		return nil, err
	}
	return engine.New(defs, engine.Options{
		Eval:        a.cfg.Evaluation.Options(),
		Parallelism: a.cfg.Evaluation.Parallelism,
		Logger:      &a.log,
		Metrics:     a.metrics,
	}), nil
}

// reloader returns a callback that reloads dir into eng.
func (a *app) reloader(eng *engine.Engine, dir string) func() error {
	return func() error {
		return eng.Reload(func() (*registry.Defs, error) { return a.load(dir) })
	}
}
