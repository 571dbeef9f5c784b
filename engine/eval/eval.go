// Package eval evaluates composite conditions against a predicate source.
//
// Evaluation walks the condition graph depth-first. Composite keys being
// visited are tracked per call so that reference cycles fail with
// ErrCycleDetected instead of recursing forever, and a depth ceiling bounds
// long acyclic chains. The Evaluator keeps no state between calls and never
// caches predicate answers: world state may change from one call to the next.
package eval

import (
	"fmt"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

// DefaultMaxDepth is the recursion ceiling used when Options leaves it zero.
const DefaultMaxDepth = 256

// PredicateSource resolves named facts against live host state. The
// evaluator passes each atom's payload through without interpreting it.
// Implementations must be safe for concurrent use if the evaluator is.
type PredicateSource interface {
	ResolveBoolean(fact string, payload types.Payload) (bool, error)
	ResolveValue(fact string, payload types.Payload) (float64, error)
}

// Options configures an Evaluator.
type Options struct {
	// Tolerance for eq, ne, ge and le. Nil means DefaultTolerance; a
	// zero Tolerance compares exactly.
	Tolerance *Tolerance
	MaxDepth  int
}

// Evaluator evaluates conditions of one sealed ruleset.
type Evaluator struct {
	defs *registry.Defs
	opts Options
}

// New creates an evaluator over defs. A nil Tolerance and a non-positive
// MaxDepth take defaults.
func New(defs *registry.Defs, opts Options) *Evaluator {
	tol := DefaultTolerance
	if opts.Tolerance != nil {
		tol = *opts.Tolerance
	}
	opts.Tolerance = &tol
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Evaluator{defs: defs, opts: opts}
}

// Defs returns the ruleset the evaluator reads from.
func (ev *Evaluator) Defs() *registry.Defs { return ev.defs }

// Options returns the effective options.
func (ev *Evaluator) Options() Options { return ev.opts }

// Evaluate resolves root and returns its verdict.
func (ev *Evaluator) Evaluate(root types.ConditionEntity, src PredicateSource) (bool, error) {
	w := ev.newWalker(src, false)
	v, _, err := w.entity(root, 1)
	return v, err
}

// EvaluateByKey evaluates the composite registered under key. An empty key
// evaluates the root composite.
func (ev *Evaluator) EvaluateByKey(key string, src PredicateSource) (bool, error) {
	root, err := ev.rootEntity(key)
	if err != nil {
		return false, err
	}
	return ev.Evaluate(root, src)
}

// Explain evaluates root like Evaluate and also returns the visited tree.
// Operands skipped by short-circuiting appear as skipped nodes.
func (ev *Evaluator) Explain(root types.ConditionEntity, src PredicateSource) (*Trace, error) {
	w := ev.newWalker(src, true)
	v, node, err := w.entity(root, 1)
	if err != nil {
		return nil, err
	}
	return &Trace{Root: node, Verdict: v}, nil
}

// ExplainByKey is Explain for a composite key; "" means the root.
func (ev *Evaluator) ExplainByKey(key string, src PredicateSource) (*Trace, error) {
	root, err := ev.rootEntity(key)
	if err != nil {
		return nil, err
	}
	return ev.Explain(root, src)
}

func (ev *Evaluator) rootEntity(key string) (types.ConditionEntity, error) {
	if key == "" {
		key = ev.defs.Composites.RootKey()
		if key == "" {
			return types.ConditionEntity{}, &Error{Kind: KindUnknownComposite, Err: registry.ErrNoRoot}
		}
	}
	return types.ConditionEntity{Kind: types.Composite, Key: key}, nil
}

func (ev *Evaluator) newWalker(src PredicateSource, trace bool) *walker {
	return &walker{
		ev:       ev,
		src:      src,
		visiting: map[string]bool{},
		trace:    trace,
	}
}

// walker holds the bookkeeping of a single evaluation call.
type walker struct {
	ev       *Evaluator
	src      PredicateSource
	visiting map[string]bool
	chain    []string
	trace    bool
}

func (w *walker) fail(kind ErrorKind, key string, cause error) error {
	chain := make([]string, len(w.chain))
	copy(chain, w.chain)
	return &Error{Kind: kind, Key: key, Chain: chain, Err: cause}
}

func (w *walker) node(e types.ConditionEntity) *Node {
	if !w.trace {
		return nil
	}
	return &Node{Entity: e}
}

func (w *walker) entity(e types.ConditionEntity, depth int) (bool, *Node, error) {
	w.chain = append(w.chain, string(e.Kind)+":"+e.Key)
	defer func() { w.chain = w.chain[:len(w.chain)-1] }()

	if depth > w.ev.opts.MaxDepth {
		return false, nil, w.fail(KindMaxDepthExceeded, e.Key,
			fmt.Errorf("depth %d exceeds limit %d", depth, w.ev.opts.MaxDepth))
	}

	switch e.Kind {
	case types.Atomic:
		return w.atom(e)
	case types.Composite:
		return w.composite(e, depth)
	}
	return false, nil, w.fail(KindInvalidCondition, e.Key, fmt.Errorf("unknown entity kind %q", e.Kind))
}

func (w *walker) atom(e types.ConditionEntity) (bool, *Node, error) {
	a, err := w.ev.defs.Atoms.Resolve(e.Key)
	if err != nil {
		return false, nil, w.fail(KindUnknownAtom, e.Key, err)
	}

	var verdict, ok bool
	switch a.Kind {
	case types.AtomBoolean:
		if a.Boolean == nil {
			return false, nil, w.fail(KindInvalidCondition, e.Key, fmt.Errorf("boolean atom has no predicate"))
		}
		v, err := w.src.ResolveBoolean(a.Boolean.Fact, a.Payload)
		if err != nil {
			return false, nil, w.fail(KindPredicateSource, e.Key, err)
		}
		verdict, ok = CheckBoolean(v, a.Boolean.Operator)
		if !ok {
			return false, nil, w.fail(KindInvalidCondition, e.Key,
				fmt.Errorf("unknown boolean operator %q", a.Boolean.Operator))
		}

	case types.AtomValue:
		if a.Compare == nil {
			return false, nil, w.fail(KindInvalidCondition, e.Key, fmt.Errorf("value atom has no comparison"))
		}
		v, err := w.src.ResolveValue(a.Compare.Fact, a.Payload)
		if err != nil {
			return false, nil, w.fail(KindPredicateSource, e.Key, err)
		}
		verdict, ok = Compare(v, a.Compare.Operator, a.Compare.Right, *w.ev.opts.Tolerance)
		if !ok {
			return false, nil, w.fail(KindInvalidCondition, e.Key,
				fmt.Errorf("unknown value operator %q", a.Compare.Operator))
		}

	default:
		return false, nil, w.fail(KindInvalidCondition, e.Key, fmt.Errorf("unknown atom kind %q", a.Kind))
	}

	n := w.node(e)
	if n != nil {
		n.Atom = &a
		n.Verdict = verdict
	}
	return verdict, n, nil
}

func (w *walker) composite(e types.ConditionEntity, depth int) (bool, *Node, error) {
	c, err := w.ev.defs.Composites.Resolve(e.Key)
	if err != nil {
		return false, nil, w.fail(KindUnknownComposite, e.Key, err)
	}
	if w.visiting[e.Key] {
		return false, nil, w.fail(KindCycleDetected, e.Key, nil)
	}
	w.visiting[e.Key] = true
	defer delete(w.visiting, e.Key)

	n := w.node(e)
	if n != nil {
		n.Operator = c.Operator
	}

	first, n1, err := w.entity(c.Entity1, depth+1)
	if err != nil {
		return false, nil, err
	}
	n.add(n1)

	switch c.Operator {
	case types.None:
		n.setVerdict(first)
		return first, n, nil
	case types.And:
		if !first {
			n.skip(c.Entity2)
			n.setVerdict(false)
			return false, n, nil
		}
	case types.Or:
		if first {
			n.skip(c.Entity2)
			n.setVerdict(true)
			return true, n, nil
		}
	default:
		return false, nil, w.fail(KindInvalidCondition, e.Key, fmt.Errorf("unknown logic operator %q", c.Operator))
	}

	// And with a true first operand or Or with a false one: the second
	// operand decides.
	second, n2, err := w.entity(c.Entity2, depth+1)
	if err != nil {
		return false, nil, err
	}
	n.add(n2)
	n.setVerdict(second)
	return second, n, nil
}
