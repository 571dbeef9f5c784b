package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nathoo/condcore/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.Command
	}{
		// Empty / whitespace
		{
			name:  "empty string",
			input: "",
			want:  types.Command{},
		},
		{
			name:  "whitespace only",
			input: "   ",
			want:  types.Command{},
		},

		// Basic verbs
		{
			name:  "eval root",
			input: "eval",
			want:  types.Command{Verb: "eval"},
		},
		{
			name:  "eval keeps key case",
			input: "eval WaveComplete",
			want:  types.Command{Verb: "eval", Args: []string{"WaveComplete"}},
		},
		{
			name:  "verb is case-insensitive",
			input: "EXPLAIN C1",
			want:  types.Command{Verb: "explain", Args: []string{"C1"}},
		},

		// Aliases
		{
			name:  "e → eval",
			input: "e C1 C2",
			want:  types.Command{Verb: "eval", Args: []string{"C1", "C2"}},
		},
		{
			name:  "why → explain",
			input: "why C1",
			want:  types.Command{Verb: "explain", Args: []string{"C1"}},
		},
		{
			name:  "rm → unset",
			input: "rm HP",
			want:  types.Command{Verb: "unset", Args: []string{"HP"}},
		},
		{
			name:  "ls → facts",
			input: "ls",
			want:  types.Command{Verb: "facts"},
		},

		// Multi-word verbs
		{
			name:  "list atoms",
			input: "list atoms",
			want:  types.Command{Verb: "atoms"},
		},
		{
			name:  "show root",
			input: "show root",
			want:  types.Command{Verb: "root"},
		},
		{
			name:  "why is",
			input: "why is Alarm",
			want:  types.Command{Verb: "explain", Args: []string{"Alarm"}},
		},

		// Assignment shorthand
		{
			name:  "name = value",
			input: "HP = 80",
			want:  types.Command{Verb: "set", Args: []string{"HP", "80"}},
		},
		{
			name:  "no spaces",
			input: "alert=true",
			want:  types.Command{Verb: "set", Args: []string{"alert", "true"}},
		},
		{
			name:  "name += amount",
			input: "kills += 2",
			want:  types.Command{Verb: "inc", Args: []string{"kills", "2"}},
		},
		{
			name:  "say alias",
			input: "print HP is {HP}",
			want:  types.Command{Verb: "say", Args: []string{"HP", "is", "{HP}"}},
		},
		{
			name:  "value keeps spaces",
			input: "behaviour = chase player",
			want:  types.Command{Verb: "set", Args: []string{"behaviour", "chase player"}},
		},
		{
			name:  "not an assignment",
			input: "set a b = c",
			want:  types.Command{Verb: "set", Args: []string{"a", "b", "=", "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}
