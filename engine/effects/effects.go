// Package effects implements centralized fact mutation via the Apply function.
// Every effect type is one atomic operation. No logic in effects.
package effects

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nathoo/condcore/engine/state"
	"github.com/nathoo/condcore/types"
)

// Effect type names.
const (
	SetFlag  = "set_flag"
	SetValue = "set_value"
	IncValue = "inc_value"
	SetLabel = "set_label"
	Unset    = "unset"
	Say      = "say"
)

// FactChanged is emitted for every mutated fact.
const FactChanged = "fact_changed"

// Apply applies a list of effects to the fact sheet, mutating it.
// Returns events emitted and output text collected.
func Apply(facts *state.FactSheet, effects []types.Effect) ([]types.Event, []string) {
	var events []types.Event
	var output []string

	changed := func(fact, kind string, value any) {
		events = append(events, types.Event{
			Type: FactChanged,
			Data: map[string]any{"fact": fact, "kind": kind, "value": value},
		})
	}

	for _, eff := range effects {
		fact, _ := eff.Params["fact"].(string)

		switch eff.Type {
		case SetFlag:
			value, _ := eff.Params["value"].(bool)
			facts.SetFlag(fact, value)
			changed(fact, "flag", value)

		case SetValue:
			value := toFloat(eff.Params["value"])
			facts.SetValue(fact, value)
			changed(fact, "value", value)

		case IncValue:
			amount := 1.0
			if _, ok := eff.Params["amount"]; ok {
				amount = toFloat(eff.Params["amount"])
			}
			changed(fact, "value", facts.AddValue(fact, amount))

		case SetLabel:
			value := fmt.Sprint(eff.Params["value"])
			facts.SetLabel(fact, value)
			changed(fact, "label", value)

		case Unset:
			if facts.Unset(fact) {
				changed(fact, "unset", nil)
			}

		case Say:
			text, _ := eff.Params["text"].(string)
			output = append(output, interpolate(text, facts))

		default:
			// Unknown effect type: ignored.
		}
	}

	return events, output
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// interpolate replaces {fact} placeholders with the fact's current value.
// Unknown facts are left as-is.
func interpolate(text string, facts *state.FactSheet) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := facts.Flag(name); ok {
			return strconv.FormatBool(v)
		}
		if v, ok := facts.Value(name); ok {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		if v, ok := facts.Label(name); ok {
			return v
		}
		return m
	})
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
