// Condcore loads condition rulesets and evaluates them against facts.
//
// Usage:
//
//	# Validate a ruleset directory
//	condcore check ./rules
//
//	# Evaluate the root (or named composites) against a facts file
//	condcore eval ./rules --facts facts.json --explain
//
//	# Inspect a ruleset interactively
//	condcore repl ./rules
//
//	# Hot-reload the ruleset and poll verdicts against a SQLite fact store
//	condcore watch ./rules --db facts.db --metrics-addr :9090
package main

func main() {
	Execute()
}
