package eval

import (
	"fmt"
	"strings"

	"github.com/nathoo/condcore/types"
)

// Node is one visited entity in an explained evaluation.
type Node struct {
	Entity   types.ConditionEntity
	Operator types.LogicOperator // composites only
	Atom     *types.AtomCondition
	Verdict  bool
	Skipped  bool // never evaluated because of short-circuiting
	Children []*Node
}

// Trace is the result of Explain.
type Trace struct {
	Root    *Node
	Verdict bool
}

// The helpers below are no-ops on a nil node so the walker can call them
// whether or not tracing is enabled.

func (n *Node) add(child *Node) {
	if n == nil || child == nil {
		return
	}
	n.Children = append(n.Children, child)
}

func (n *Node) skip(e types.ConditionEntity) {
	if n == nil {
		return
	}
	n.Children = append(n.Children, &Node{Entity: e, Skipped: true})
}

func (n *Node) setVerdict(v bool) {
	if n != nil {
		n.Verdict = v
	}
}

// Lines renders the trace as an indented tree, one node per line.
func (t *Trace) Lines() []string {
	if t == nil || t.Root == nil {
		return nil
	}
	var lines []string
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		lines = append(lines, strings.Repeat("  ", depth)+describe(n))
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t.Root, 0)
	return lines
}

func describe(n *Node) string {
	if n.Skipped {
		return fmt.Sprintf("%s %s (skipped)", n.Entity.Kind, n.Entity.Key)
	}
	switch {
	case n.Atom != nil && n.Atom.Boolean != nil:
		return fmt.Sprintf("atom %s [%s %s] = %t",
			n.Entity.Key, n.Atom.Boolean.Fact, n.Atom.Boolean.Operator, n.Verdict)
	case n.Atom != nil && n.Atom.Compare != nil:
		return fmt.Sprintf("atom %s [%s %s %g] = %t",
			n.Entity.Key, n.Atom.Compare.Fact, n.Atom.Compare.Operator, n.Atom.Compare.Right, n.Verdict)
	}
	return fmt.Sprintf("%s %s (%s) = %t", n.Entity.Kind, n.Entity.Key, n.Operator, n.Verdict)
}
