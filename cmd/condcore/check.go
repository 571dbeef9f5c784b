package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/loader"
)

var checkCmd = &cobra.Command{
	Use:   "check <dir>",
	Short: "Load and validate a ruleset",
	Long: `Load every .lua and .yaml file in a ruleset directory, compile the
conditions and report what was found.

Unreferenced atoms, a missing root and similar findings are printed as
warnings. Dangling references and reference cycles are warnings unless
--strict is set, in which case the check fails.

Examples:
  # Validate a ruleset
  condcore check ./rules

  # Fail on dangling references and cycles
  condcore check --strict ./rules`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	defs, err := loader.Load(args[0], a.loaderOptions())
	if err != nil {
		var verr *loader.ValidationError
		if errors.As(err, &verr) {
			printFindings(out, "Errors", verr.Errors)
			printFindings(out, "Warnings", verr.Warnings)
			return fmt.Errorf("ruleset %s is invalid", args[0])
		}
		return fmt.Errorf("loading ruleset: %w", err)
	}

	printSummary(out, defs)
	if verr := loader.Validate(defs, a.cfg.Loader.Strict); verr != nil {
		printFindings(out, "Warnings", verr.Warnings)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func printSummary(w io.Writer, defs *registry.Defs) {
	meta := defs.Meta
	title := meta.Title
	if title == "" {
		title = "(untitled)"
	}
	if meta.Version != "" {
		title += " v" + meta.Version
	}
	fmt.Fprintf(w, "Ruleset:    %s\n", title)
	fmt.Fprintf(w, "Atoms:      %d\n", defs.Atoms.Len())
	fmt.Fprintf(w, "Composites: %d\n", defs.Composites.Len())
	if root := defs.Composites.RootKey(); root != "" {
		fmt.Fprintf(w, "Root:       %s\n", root)
	}
	fmt.Fprintf(w, "Facts:      %d\n", len(meta.Facts))
}

func printFindings(w io.Writer, label string, findings []string) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, f := range findings {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}
