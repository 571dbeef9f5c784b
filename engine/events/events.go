// Package events turns repeated evaluations into verdict transitions.
// A Monitor remembers the last outcome of each watched condition and
// reports only changes; a Poller drives a Monitor on a cron schedule.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/nathoo/condcore/engine/eval"
)

// State is the last known outcome of a watched condition.
type State string

const (
	Unknown State = "unknown"
	True    State = "true"
	False   State = "false"
	Failed  State = "error"
)

// Evaluator evaluates a composite key. Both *eval.Evaluator and
// *engine.Engine satisfy it.
type Evaluator interface {
	EvaluateByKey(key string, src eval.PredicateSource) (bool, error)
}

// Transition records a change of a watched condition's outcome.
type Transition struct {
	Key  string
	From State
	To   State
	Err  error // set when To is Failed
	At   time.Time
}

// Monitor tracks verdicts of a set of composite keys.
type Monitor struct {
	ev  Evaluator
	now func() time.Time

	mu   sync.Mutex
	keys []string
	last map[string]State
}

// NewMonitor creates a monitor watching keys.
func NewMonitor(ev Evaluator, keys ...string) *Monitor {
	m := &Monitor{
		ev:   ev,
		now:  time.Now,
		last: map[string]State{},
	}
	m.Watch(keys...)
	return m
}

// Watch adds keys to the watched set. Already watched keys are ignored.
func (m *Monitor) Watch(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.last[k]; ok {
			continue
		}
		m.last[k] = Unknown
		m.keys = append(m.keys, k)
	}
	sort.Strings(m.keys)
}

// SetKeys replaces the watched set with keys. Keys that stay watched keep
// their last state; dropped keys are forgotten and new keys start Unknown.
func (m *Monitor) SetKeys(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := make(map[string]State, len(keys))
	m.keys = m.keys[:0]
	for _, k := range keys {
		if _, ok := last[k]; ok {
			continue
		}
		s, ok := m.last[k]
		if !ok {
			s = Unknown
		}
		last[k] = s
		m.keys = append(m.keys, k)
	}
	m.last = last
	sort.Strings(m.keys)
}

// Keys returns the watched keys in sorted order.
func (m *Monitor) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// Last returns the last recorded state of key.
func (m *Monitor) Last(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.last[key]; ok {
		return s
	}
	return Unknown
}

// Reset forgets every recorded state, so the next Poll reports all keys.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.last {
		m.last[k] = Unknown
	}
}

// Poll evaluates every watched key once and returns the transitions since
// the previous poll, in key order. The first poll reports every key as a
// transition from Unknown.
func (m *Monitor) Poll(src eval.PredicateSource) []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transition
	at := m.now()
	for _, key := range m.keys {
		v, err := m.ev.EvaluateByKey(key, src)
		next := False
		switch {
		case err != nil:
			next = Failed
		case v:
			next = True
		}

		prev := m.last[key]
		if prev == next {
			continue
		}
		m.last[key] = next
		out = append(out, Transition{Key: key, From: prev, To: next, Err: err, At: at})
	}
	return out
}
