package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nathoo/condcore/cli"
	"github.com/nathoo/condcore/engine"
	"github.com/nathoo/condcore/loader"
	"github.com/nathoo/condcore/tui"
)

var replFlags struct {
	plain  bool
	script string
	trace  bool
	watch  bool
}

var replCmd = &cobra.Command{
	Use:   "repl <dir>",
	Short: "Inspect a ruleset interactively",
	Long: `Start an inspector session over a ruleset. Facts start from the
ruleset's initial facts and can be changed with set, inc, unset and label;
every change reports whether the root verdict flipped.

The full-screen UI is used when stdout is a terminal. --plain forces the
line-oriented inspector, and --script replays a command file through it
with each command echoed.

Examples:
  condcore repl ./rules
  condcore repl ./rules --script checks.txt --trace
  condcore repl ./rules --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().BoolVar(&replFlags.plain, "plain", false, "use the line-oriented inspector")
	replCmd.Flags().StringVar(&replFlags.script, "script", "", "replay commands from a file")
	replCmd.Flags().BoolVar(&replFlags.trace, "trace", false, "show fact queries and effects")
	replCmd.Flags().BoolVar(&replFlags.watch, "watch", false, "reload the ruleset when its files change (full-screen UI only)")
}

func runREPL(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	fullScreen := replFlags.script == "" && !replFlags.plain && isTerminal()
	if fullScreen {
		// Log lines would corrupt the alternate screen.
		a.log = zerolog.Nop()
	}

	dir := args[0]
	eng, err := a.newEngine(dir)
	if err != nil {
		return err
	}
	session, err := engine.NewSession(eng)
	if err != nil {
		return err
	}
	reload := a.reloader(eng, dir)

	if replFlags.script != "" {
		f, err := os.Open(replFlags.script)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()

		c := cli.New(session)
		c.In = f
		c.Out = cmd.OutOrStdout()
		c.EchoInput = true
		c.Trace = replFlags.trace
		c.Reload = reload
		c.Run()
		return nil
	}

	if !fullScreen {
		c := cli.New(session)
		c.Trace = replFlags.trace
		c.Reload = reload
		c.Run()
		return nil
	}

	p := tui.NewProgram(tui.New(session, reload).WithTrace(replFlags.trace))
	if replFlags.watch {
		w, err := loader.NewWatcher(dir, a.cfg.Watch.Debounce, a.log)
		if err != nil {
			return err
		}
		defer w.Stop()
		go func() {
			err := w.Watch(cmd.Context(), func() error {
				err := reload()
				p.Send(tui.ReloadedMsg{Err: err})
				return err
			})
			if err != nil {
				a.log.Error().Err(err).Msg("watcher exited")
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("inspector: %w", err)
	}
	return nil
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
