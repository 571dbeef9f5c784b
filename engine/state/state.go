// Package state holds the mutable world facts that conditions are evaluated
// against. FactSheet is the reference PredicateSource used by the inspectors
// and tests; real hosts implement eval.PredicateSource over their own state.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/types"
)

// Payload keys understood by ResolveBoolean.
const (
	PayloadEquals = "equals"
	PayloadOneOf  = "one_of"
)

// Snapshot is a copy of every fact in a FactSheet.
type Snapshot struct {
	Flags  map[string]bool    `json:"flags"`
	Values map[string]float64 `json:"values"`
	Labels map[string]string  `json:"labels"`
}

// FactSheet stores boolean flags, numeric values and string labels.
// It is safe for concurrent use.
type FactSheet struct {
	mu     sync.RWMutex
	flags  map[string]bool
	values map[string]float64
	labels map[string]string
}

// NewFactSheet creates an empty fact sheet.
func NewFactSheet() *FactSheet {
	return &FactSheet{
		flags:  map[string]bool{},
		values: map[string]float64{},
		labels: map[string]string{},
	}
}

// SetFlag sets a boolean fact.
func (f *FactSheet) SetFlag(name string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[name] = v
}

// SetValue sets a numeric fact.
func (f *FactSheet) SetValue(name string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = v
}

// AddValue adds delta to a numeric fact, treating a missing fact as zero,
// and returns the new value.
func (f *FactSheet) AddValue(name string, delta float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] += delta
	return f.values[name]
}

// SetLabel sets a string fact.
func (f *FactSheet) SetLabel(name, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[name] = v
}

// Unset removes a fact of any type. It reports whether anything was removed.
func (f *FactSheet) Unset(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, a := f.flags[name]
	_, b := f.values[name]
	_, c := f.labels[name]
	delete(f.flags, name)
	delete(f.values, name)
	delete(f.labels, name)
	return a || b || c
}

// Flag returns a boolean fact and whether it is set.
func (f *FactSheet) Flag(name string) (bool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.flags[name]
	return v, ok
}

// Value returns a numeric fact and whether it is set.
func (f *FactSheet) Value(name string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[name]
	return v, ok
}

// Label returns a string fact and whether it is set.
func (f *FactSheet) Label(name string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.labels[name]
	return v, ok
}

// Len returns the total number of facts.
func (f *FactSheet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.flags) + len(f.values) + len(f.labels)
}

// Names returns every fact name in sorted order.
func (f *FactSheet) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	seen := map[string]bool{}
	for k := range f.flags {
		seen[k] = true
	}
	for k := range f.values {
		seen[k] = true
	}
	for k := range f.labels {
		seen[k] = true
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all facts.
func (f *FactSheet) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := Snapshot{
		Flags:  make(map[string]bool, len(f.flags)),
		Values: make(map[string]float64, len(f.values)),
		Labels: make(map[string]string, len(f.labels)),
	}
	for k, v := range f.flags {
		s.Flags[k] = v
	}
	for k, v := range f.values {
		s.Values[k] = v
	}
	for k, v := range f.labels {
		s.Labels[k] = v
	}
	return s
}

// Restore replaces all facts with the contents of s.
func (f *FactSheet) Restore(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = map[string]bool{}
	f.values = map[string]float64{}
	f.labels = map[string]string{}
	for k, v := range s.Flags {
		f.flags[k] = v
	}
	for k, v := range s.Values {
		f.values[k] = v
	}
	for k, v := range s.Labels {
		f.labels[k] = v
	}
}

// Seed sets facts from loosely typed initial values, as found in a
// ruleset's facts table. Booleans become flags, numbers become values and
// strings become labels.
func (f *FactSheet) Seed(facts map[string]any) error {
	for name, raw := range facts {
		switch v := raw.(type) {
		case bool:
			f.SetFlag(name, v)
		case string:
			f.SetLabel(name, v)
		default:
			n, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("fact %q: unsupported initial value %T", name, raw)
			}
			f.SetValue(name, n)
		}
	}
	return nil
}

// ResolveBoolean implements eval.PredicateSource. A payload carrying
// "equals" or "one_of" matches the label named by fact; otherwise the
// flag is returned.
func (f *FactSheet) ResolveBoolean(fact string, payload types.Payload) (bool, error) {
	if match, ok := LabelMatcher(payload); ok {
		label, err := f.label(fact)
		if err != nil {
			return false, err
		}
		return match(label), nil
	}

	v, ok := f.Flag(fact)
	if !ok {
		return false, fmt.Errorf("%w: %q", eval.ErrUnknownFact, fact)
	}
	return v, nil
}

// LabelMatcher returns the label test described by payload, if any. Other
// PredicateSource implementations use it to match labels the same way.
func LabelMatcher(payload types.Payload) (func(label string) bool, bool) {
	if want, ok := payload[PayloadEquals]; ok {
		s := fmt.Sprint(want)
		return func(label string) bool { return label == s }, true
	}
	if set, ok := payload[PayloadOneOf]; ok {
		return func(label string) bool { return containsString(set, label) }, true
	}
	return nil, false
}

// ResolveValue implements eval.PredicateSource.
func (f *FactSheet) ResolveValue(fact string, _ types.Payload) (float64, error) {
	v, ok := f.Value(fact)
	if !ok {
		return 0, fmt.Errorf("%w: %q", eval.ErrUnknownFact, fact)
	}
	return v, nil
}

func (f *FactSheet) label(name string) (string, error) {
	v, ok := f.Label(name)
	if !ok {
		return "", fmt.Errorf("%w: label %q", eval.ErrUnknownFact, name)
	}
	return v, nil
}

func containsString(set any, s string) bool {
	switch list := set.(type) {
	case []string:
		for _, v := range list {
			if v == s {
				return true
			}
		}
	case []any:
		for _, v := range list {
			if fmt.Sprint(v) == s {
				return true
			}
		}
	case string:
		return list == s
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
