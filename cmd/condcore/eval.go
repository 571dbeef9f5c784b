package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nathoo/condcore/engine"
	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/engine/state"
	"github.com/nathoo/condcore/store"
)

var evalFlags struct {
	facts   string
	db      string
	explain bool
	timeout time.Duration
}

var evalCmd = &cobra.Command{
	Use:   "eval <dir> [key...]",
	Short: "Evaluate conditions against a set of facts",
	Long: `Evaluate composite conditions and print one verdict per line.

With no keys the root composite is evaluated, or every composite when the
ruleset declares no root. Facts start from the ruleset's initial facts;
--facts overlays a JSON or YAML object of name/value pairs, and --db reads
facts from a SQLite fact store instead.

Examples:
  # Evaluate the root with the ruleset's own facts
  condcore eval ./rules

  # Evaluate two composites against a facts file and show why
  condcore eval ./rules WaveComplete Threat --facts facts.json --explain

  # Evaluate against a fact store
  condcore eval ./rules --db facts.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalFlags.facts, "facts", "", "JSON or YAML file of fact values")
	evalCmd.Flags().StringVar(&evalFlags.db, "db", "", "SQLite fact store")
	evalCmd.Flags().BoolVar(&evalFlags.explain, "explain", false, "print the evaluation tree")
	evalCmd.Flags().DurationVar(&evalFlags.timeout, "timeout", 10*time.Second, "overall evaluation deadline")
	evalCmd.MarkFlagsMutuallyExclusive("facts", "db")
}

func runEval(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	eng, err := a.newEngine(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), evalFlags.timeout)
	defer cancel()

	var src eval.PredicateSource
	if evalFlags.db != "" {
		st, err := store.Open(ctx, evalFlags.db)
		if err != nil {
			return err
		}
		defer st.Close()
		src = st.Source(ctx)
	} else {
		facts, err := initialFacts(eng, evalFlags.facts)
		if err != nil {
			return err
		}
		src = facts
	}

	keys := args[1:]
	if len(keys) == 0 {
		if root := eng.Defs().Composites.RootKey(); root != "" {
			keys = []string{root}
		} else {
			keys = eng.Defs().Composites.Keys()
		}
	}

	out := cmd.OutOrStdout()
	if evalFlags.explain {
		return explainKeys(out, eng, keys, src)
	}

	verdicts, err := eng.EvaluateAll(ctx, keys, src)
	if err != nil {
		return err
	}
	return printVerdicts(out, keys, verdicts)
}

// initialFacts seeds a fact sheet from the ruleset and then from path.
func initialFacts(eng *engine.Engine, path string) (*state.FactSheet, error) {
	facts := state.NewFactSheet()
	if err := facts.Seed(eng.Defs().Meta.Facts); err != nil {
		return nil, fmt.Errorf("seeding ruleset facts: %w", err)
	}
	if path == "" {
		return facts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file %q: %w", path, err)
	}
	var overlay map[string]any
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse facts file %q: %w", path, err)
	}
	if err := facts.Seed(overlay); err != nil {
		return nil, fmt.Errorf("facts file %q: %w", path, err)
	}
	return facts, nil
}

func printVerdicts(w io.Writer, keys []string, verdicts map[string]engine.Verdict) error {
	failed := 0
	for _, key := range keys {
		v := verdicts[key]
		if v.Err != nil {
			failed++
			fmt.Fprintf(w, "%s = error: %v\n", key, v.Err)
			continue
		}
		fmt.Fprintf(w, "%s = %t\n", key, v.Value)
	}
	if failed > 0 {
		return fmt.Errorf("%d condition(s) failed to evaluate", failed)
	}
	return nil
}

func explainKeys(w io.Writer, eng *engine.Engine, keys []string, src eval.PredicateSource) error {
	failed := 0
	for i, key := range keys {
		if i > 0 {
			fmt.Fprintln(w)
		}
		tr, err := eng.Explain(key, src)
		for _, line := range tr.Lines() {
			fmt.Fprintln(w, line)
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s = error: %v\n", key, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d condition(s) failed to evaluate", failed)
	}
	return nil
}
