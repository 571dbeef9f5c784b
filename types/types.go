// Package types defines the shared data structures for the condcore engine.
// This package contains only type definitions and constants; no logic.
package types

// AtomKind tags the variant of an atomic condition.
type AtomKind string

const (
	AtomBoolean AtomKind = "boolean"
	AtomValue   AtomKind = "value"
)

// BooleanOperator applies to a boolean fact.
type BooleanOperator string

const (
	Is    BooleanOperator = "is"
	IsNot BooleanOperator = "is_not"
)

// ValueOperator compares a numeric fact against a literal.
type ValueOperator string

const (
	Equal          ValueOperator = "eq"
	NotEqual       ValueOperator = "ne"
	GreaterThan    ValueOperator = "gt"
	GreaterOrEqual ValueOperator = "ge"
	LessThan       ValueOperator = "lt"
	LessOrEqual    ValueOperator = "le"
)

// LogicOperator joins the two operands of a composite condition.
type LogicOperator string

const (
	None LogicOperator = "none"
	And  LogicOperator = "and"
	Or   LogicOperator = "or"
)

// EntityKind says which registry a ConditionEntity points into.
type EntityKind string

const (
	Atomic    EntityKind = "atomic"
	Composite EntityKind = "composite"
)

// Payload is kind-specific auxiliary data (areas, layer masks, string
// matches). The engine never interprets it; it is handed to the predicate
// source as-is.
type Payload map[string]any

// Clone returns a deep copy of p. Nested maps and slices are copied;
// other values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return map[string]any(Payload(x).Clone())
	case Payload:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	}
	return v
}

// BooleanPredicate is the body of an AtomBoolean condition.
type BooleanPredicate struct {
	Fact     string
	Operator BooleanOperator
}

// ValuePredicate is the body of an AtomValue condition.
type ValuePredicate struct {
	Fact     string
	Operator ValueOperator
	Right    float64
}

// AtomCondition is a leaf predicate evaluated against a named fact.
type AtomCondition struct {
	Key     string
	Kind    AtomKind
	Boolean *BooleanPredicate // set when Kind == AtomBoolean
	Compare *ValuePredicate   // set when Kind == AtomValue
	Payload Payload
}

// ConditionEntity is a typed reference used as a composite operand.
type ConditionEntity struct {
	Kind EntityKind
	Key  string
}

// CompositeCondition combines one or two operands with a logic operator.
// Entity2 is ignored when Operator is None.
type CompositeCondition struct {
	Key      string
	Operator LogicOperator
	Entity1  ConditionEntity
	Entity2  ConditionEntity
}

// RulesetMeta holds descriptive metadata of a loaded ruleset.
type RulesetMeta struct {
	Title   string
	Author  string
	Version string
	Root    string         // root composite key
	Facts   map[string]any // initial facts for inspectors
}

// Command is a parsed inspector command line.
type Command struct {
	Verb string
	Args []string
}

// Effect is a single atomic fact mutation instruction.
type Effect struct {
	Type   string
	Params map[string]any
}

// Event is emitted after effects are applied.
type Event struct {
	Type string
	Data map[string]any
}

// Result is the output of a single inspector step.
type Result struct {
	Effects []Effect
	Events  []Event
	Output  []string
	Trace   []string
}
