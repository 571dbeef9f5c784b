// Package parser converts inspector command strings into Command structs.
// Intentionally dumb: no grammar, just pattern matching.
package parser

import (
	"strings"

	"github.com/nathoo/condcore/types"
)

// Canonical verbs.
const (
	Eval       = "eval"
	Explain    = "explain"
	Set        = "set"
	Inc        = "inc"
	Unset      = "unset"
	Label      = "label"
	Facts      = "facts"
	Atoms      = "atoms"
	Composites = "composites"
	Root       = "root"
	Say        = "say"
	Help       = "help"
)

var verbAliases = map[string]string{
	// Evaluate
	"e":        "eval",
	"ev":       "eval",
	"evaluate": "eval",
	"check":    "eval",
	"test":     "eval",

	// Explain
	"x":     "explain",
	"why":   "explain",
	"trace": "explain",

	// Mutation
	"let":    "set",
	"add":    "inc",
	"incr":   "inc",
	"rm":     "unset",
	"del":    "unset",
	"delete": "unset",
	"clear":  "unset",
	"tag":    "label",

	// Listing
	"f":     "facts",
	"ls":    "facts",
	"state": "facts",
	"a":     "atoms",
	"c":     "composites",
	"comps": "composites",

	// Misc
	"echo":  "say",
	"print": "say",
	"?":     "help",
	"h":     "help",
}

// Parse converts a raw command line into a Command. Verbs are matched
// case-insensitively; fact and condition names keep their case.
func Parse(input string) types.Command {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.Command{}
	}

	if cmd, ok := parseAssignment(input); ok {
		return cmd
	}

	words := strings.Fields(input)
	words = expandMultiWordVerbs(words)

	verb := strings.ToLower(words[0])
	if alias, ok := verbAliases[verb]; ok {
		verb = alias
	}

	args := words[1:]
	if len(args) == 0 {
		args = nil
	}
	return types.Command{Verb: verb, Args: args}
}

// parseAssignment handles the "name = value" and "name += amount"
// shorthands.
func parseAssignment(input string) (types.Command, bool) {
	if i := strings.Index(input, "+="); i > 0 {
		name := strings.TrimSpace(input[:i])
		amount := strings.TrimSpace(input[i+2:])
		if isName(name) && amount != "" {
			return types.Command{Verb: Inc, Args: []string{name, amount}}, true
		}
	}
	if i := strings.Index(input, "="); i > 0 {
		name := strings.TrimSpace(input[:i])
		value := strings.TrimSpace(input[i+1:])
		if isName(name) && value != "" {
			return types.Command{Verb: Set, Args: []string{name, value}}, true
		}
	}
	return types.Command{}, false
}

// expandMultiWordVerbs handles "list atoms", "show facts" etc.
func expandMultiWordVerbs(words []string) []string {
	if len(words) < 2 {
		return words
	}

	switch strings.ToLower(words[0]) {
	case "list", "show":
		switch strings.ToLower(words[1]) {
		case "facts", "atoms", "composites", "root":
			return append([]string{strings.ToLower(words[1])}, words[2:]...)
		}
	case "why":
		if strings.ToLower(words[1]) == "is" {
			return append([]string{"explain"}, words[2:]...)
		}
	}

	return words
}

func isName(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	for _, r := range s {
		switch {
		case r == '_' || r == '.' || r == '-':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
