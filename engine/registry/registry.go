// Package registry holds the string-keyed tables of atomic and composite
// conditions. Tables are built once at load time and sealed before use;
// after sealing they are read-only and safe for concurrent readers.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nathoo/condcore/types"
)

var (
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrUnknownKey       = errors.New("unknown key")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrSealed           = errors.New("registry is sealed")
	ErrNoRoot           = errors.New("no root condition")
)

// KeyError reports a registry failure for a specific key.
type KeyError struct {
	Registry string // "atom" or "composite"
	Key      string
	Reason   string // optional detail for ErrInvalidCondition
	Err      error
}

func (e *KeyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q: %v: %s", e.Registry, e.Key, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s %q: %v", e.Registry, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// table is the shared keyed store behind Atoms and Composites.
type table[T any] struct {
	name   string
	items  map[string]T
	sealed bool
}

func newTable[T any](name string) table[T] {
	return table[T]{name: name, items: map[string]T{}}
}

func (t *table[T]) put(key string, v T) error {
	if t.sealed {
		return &KeyError{Registry: t.name, Key: key, Err: ErrSealed}
	}
	if _, ok := t.items[key]; ok {
		return &KeyError{Registry: t.name, Key: key, Err: ErrDuplicateKey}
	}
	t.items[key] = v
	return nil
}

func (t *table[T]) get(key string) (T, error) {
	v, ok := t.items[key]
	if !ok {
		var zero T
		return zero, &KeyError{Registry: t.name, Key: key, Err: ErrUnknownKey}
	}
	return v, nil
}

func (t *table[T]) keys() []string {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *table[T]) invalid(key, reason string) error {
	return &KeyError{Registry: t.name, Key: key, Reason: reason, Err: ErrInvalidCondition}
}

// Atoms maps atom keys to atomic conditions.
type Atoms struct {
	t table[types.AtomCondition]
}

// NewAtoms creates an empty atom registry.
func NewAtoms() *Atoms {
	return &Atoms{t: newTable[types.AtomCondition]("atom")}
}

// Register adds an atom. The payload required by its kind must be present.
func (r *Atoms) Register(a types.AtomCondition) error {
	if a.Key == "" {
		return r.t.invalid(a.Key, "empty key")
	}
	switch a.Kind {
	case types.AtomBoolean:
		if a.Boolean == nil {
			return r.t.invalid(a.Key, "boolean atom has no predicate")
		}
		if a.Boolean.Fact == "" {
			return r.t.invalid(a.Key, "boolean atom has no fact")
		}
		if !ValidBooleanOperator(a.Boolean.Operator) {
			return r.t.invalid(a.Key, fmt.Sprintf("unknown boolean operator %q", a.Boolean.Operator))
		}
	case types.AtomValue:
		if a.Compare == nil {
			return r.t.invalid(a.Key, "value atom has no comparison")
		}
		if a.Compare.Fact == "" {
			return r.t.invalid(a.Key, "value atom has no fact")
		}
		if !ValidValueOperator(a.Compare.Operator) {
			return r.t.invalid(a.Key, fmt.Sprintf("unknown value operator %q", a.Compare.Operator))
		}
	default:
		return r.t.invalid(a.Key, fmt.Sprintf("unknown atom kind %q", a.Kind))
	}
	return r.t.put(a.Key, copyAtom(a))
}

// copyAtom detaches a from the caller's predicate pointers and payload so
// later mutation cannot reach a sealed table.
func copyAtom(a types.AtomCondition) types.AtomCondition {
	if a.Boolean != nil {
		b := *a.Boolean
		a.Boolean = &b
	}
	if a.Compare != nil {
		c := *a.Compare
		a.Compare = &c
	}
	a.Payload = a.Payload.Clone()
	return a
}

// Resolve returns the atom registered under key.
func (r *Atoms) Resolve(key string) (types.AtomCondition, error) {
	return r.t.get(key)
}

// Keys returns all atom keys in sorted order.
func (r *Atoms) Keys() []string { return r.t.keys() }

// Len returns the number of registered atoms.
func (r *Atoms) Len() int { return len(r.t.items) }

// Seal freezes the registry.
func (r *Atoms) Seal() { r.t.sealed = true }

// Composites maps composite keys to composite conditions and designates
// one of them as the root.
type Composites struct {
	t    table[types.CompositeCondition]
	root string
}

// NewComposites creates an empty composite registry.
func NewComposites() *Composites {
	return &Composites{t: newTable[types.CompositeCondition]("composite")}
}

// Register adds a composite. An empty operator is stored as None. Operand
// keys are not resolved here; dangling references surface at evaluation.
func (r *Composites) Register(c types.CompositeCondition) error {
	if c.Key == "" {
		return r.t.invalid(c.Key, "empty key")
	}
	if c.Operator == "" {
		c.Operator = types.None
	}
	if !ValidLogicOperator(c.Operator) {
		return r.t.invalid(c.Key, fmt.Sprintf("unknown logic operator %q", c.Operator))
	}
	if err := checkEntity(c.Entity1); err != nil {
		return r.t.invalid(c.Key, "entity1: "+err.Error())
	}
	if c.Operator != types.None {
		if err := checkEntity(c.Entity2); err != nil {
			return r.t.invalid(c.Key, "entity2: "+err.Error())
		}
	}
	return r.t.put(c.Key, c)
}

// Resolve returns the composite registered under key.
func (r *Composites) Resolve(key string) (types.CompositeCondition, error) {
	return r.t.get(key)
}

// SetRoot designates an already registered composite as the root.
func (r *Composites) SetRoot(key string) error {
	if r.t.sealed {
		return &KeyError{Registry: r.t.name, Key: key, Err: ErrSealed}
	}
	if _, err := r.t.get(key); err != nil {
		return err
	}
	r.root = key
	return nil
}

// RootKey returns the root key, or "" when none is set.
func (r *Composites) RootKey() string { return r.root }

// Root returns the root composite.
func (r *Composites) Root() (types.CompositeCondition, error) {
	if r.root == "" {
		return types.CompositeCondition{}, ErrNoRoot
	}
	return r.t.get(r.root)
}

// Keys returns all composite keys in sorted order.
func (r *Composites) Keys() []string { return r.t.keys() }

// Len returns the number of registered composites.
func (r *Composites) Len() int { return len(r.t.items) }

// Seal freezes the registry.
func (r *Composites) Seal() { r.t.sealed = true }

// Defs holds the immutable ruleset used for evaluation.
type Defs struct {
	Meta       types.RulesetMeta
	Atoms      *Atoms
	Composites *Composites
}

// NewDefs creates an empty, unsealed ruleset.
func NewDefs() *Defs {
	return &Defs{
		Atoms:      NewAtoms(),
		Composites: NewComposites(),
	}
}

// Seal freezes both registries.
func (d *Defs) Seal() {
	d.Atoms.Seal()
	d.Composites.Seal()
}

// ValidBooleanOperator reports whether op is a known boolean operator.
func ValidBooleanOperator(op types.BooleanOperator) bool {
	return op == types.Is || op == types.IsNot
}

// ValidValueOperator reports whether op is a known comparison operator.
func ValidValueOperator(op types.ValueOperator) bool {
	switch op {
	case types.Equal, types.NotEqual, types.GreaterThan,
		types.GreaterOrEqual, types.LessThan, types.LessOrEqual:
		return true
	}
	return false
}

// ValidLogicOperator reports whether op is a known logic operator.
func ValidLogicOperator(op types.LogicOperator) bool {
	return op == types.None || op == types.And || op == types.Or
}

func checkEntity(e types.ConditionEntity) error {
	if e.Kind != types.Atomic && e.Kind != types.Composite {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.Key == "" {
		return errors.New("empty key")
	}
	return nil
}
