package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nathoo/condcore/engine/effects"
	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/engine/events"
	"github.com/nathoo/condcore/engine/parser"
	"github.com/nathoo/condcore/engine/state"
	"github.com/nathoo/condcore/types"
)

// VerdictChanged is emitted when a mutation flips the root verdict.
const VerdictChanged = "verdict_changed"

// Session is an interactive inspector: it applies fact mutations to its own
// FactSheet and evaluates conditions of the engine's current ruleset.
type Session struct {
	Engine  *Engine
	Facts   *state.FactSheet
	History []string

	monitor *events.Monitor
}

// NewSession creates a session whose facts are seeded from the ruleset's
// initial facts.
func NewSession(e *Engine) (*Session, error) {
	s := &Session{
		Engine: e,
		Facts:  state.NewFactSheet(),
	}
	if err := s.Facts.Seed(e.Defs().Meta.Facts); err != nil {
		return nil, err
	}
	s.Rewatch()
	return s, nil
}

// Rewatch points the root monitor at the current ruleset's root and records
// its verdict as the baseline. Call it after a reload or after replacing facts.
func (s *Session) Rewatch() {
	s.monitor = events.NewMonitor(s.Engine)
	if root := s.Engine.Defs().Composites.RootKey(); root != "" {
		s.monitor.Watch(root)
	}
	s.monitor.Poll(s.Facts)
}

// RootState returns the root's verdict as of the last mutation.
func (s *Session) RootState() events.State {
	root := s.Engine.Defs().Composites.RootKey()
	if root == "" {
		return events.Unknown
	}
	return s.monitor.Last(root)
}

// Status reports the root condition and its verdict without recording it
// in History.
func (s *Session) Status() types.Result {
	var result types.Result
	s.root(&result)
	return result
}

// Step processes one inspector command and returns the result.
func (s *Session) Step(input string) types.Result {
	var result types.Result

	cmd := parser.Parse(input)
	if cmd.Verb == "" {
		result.Output = append(result.Output, "Type help for commands.")
		return result
	}
	s.History = append(s.History, input)

	switch cmd.Verb {
	case parser.Eval:
		s.eval(cmd.Args, &result)
	case parser.Explain:
		s.explain(cmd.Args, &result)
	case parser.Set, parser.Inc, parser.Unset, parser.Label:
		effs, err := mutation(cmd)
		if err != nil {
			result.Output = append(result.Output, err.Error())
			return result
		}
		s.apply(effs, &result)
	case parser.Facts:
		result.Output = append(result.Output, s.describeFacts()...)
	case parser.Atoms:
		result.Output = append(result.Output, s.describeAtoms()...)
	case parser.Composites:
		result.Output = append(result.Output, s.describeComposites()...)
	case parser.Root:
		s.root(&result)
	case parser.Say:
		s.apply([]types.Effect{{Type: effects.Say, Params: map[string]any{
			"text": strings.Join(cmd.Args, " "),
		}}}, &result)
	case parser.Help:
		result.Output = append(result.Output, HelpText...)
	default:
		result.Output = append(result.Output, fmt.Sprintf("Unknown command %q. Type help for commands.", cmd.Verb))
	}
	return result
}

// HelpText lists the inspector commands.
var HelpText = []string{
	"Commands:",
	"  eval [key...]        Evaluate composites (default: root)",
	"  explain [key]        Show the evaluation tree",
	"  set <fact> <value>   Set a flag (true/false), value (number) or label",
	"  <fact> = <value>     Same as set",
	"  inc <fact> [n]       Add n (default 1) to a value; also <fact> += n",
	"  label <fact> <text>  Set a label, even if it looks like a number",
	"  unset <fact>         Remove a fact",
	"  facts                List facts",
	"  atoms                List atomic conditions",
	"  composites           List composite conditions",
	"  root                 Show the root condition and its verdict",
	"  say <text>           Print text; {fact} is replaced by its value",
}

func (s *Session) eval(keys []string, result *types.Result) {
	if len(keys) == 0 {
		keys = []string{""}
	}
	for _, key := range keys {
		src := state.NewCounting(s.Facts)
		v, err := s.Engine.EvaluateByKey(key, src)
		name := key
		if name == "" {
			name = s.Engine.Defs().Composites.RootKey()
		}
		if err != nil {
			result.Output = append(result.Output, fmt.Sprintf("%s: error: %v", name, err))
		} else {
			result.Output = append(result.Output, fmt.Sprintf("%s = %t", name, v))
		}
		for _, q := range src.Queries() {
			result.Trace = append(result.Trace, fmt.Sprintf("%s: queried %s (%s)", name, q.Fact, q.Kind))
		}
	}
}

func (s *Session) explain(args []string, result *types.Result) {
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	src := state.NewCounting(s.Facts)
	tr, err := s.Engine.Explain(key, src)
	if err != nil {
		result.Output = append(result.Output, "error: "+err.Error())
		return
	}
	result.Output = append(result.Output, tr.Lines()...)
	result.Trace = append(result.Trace, fmt.Sprintf("%d predicate queries", src.Total()))
}

func (s *Session) apply(effs []types.Effect, result *types.Result) {
	evts, out := effects.Apply(s.Facts, effs)
	result.Effects = append(result.Effects, effs...)
	result.Events = append(result.Events, evts...)
	result.Output = append(result.Output, out...)

	for _, ev := range evts {
		fact, _ := ev.Data["fact"].(string)
		if ev.Data["kind"] == "unset" {
			result.Output = append(result.Output, fmt.Sprintf("%s unset", fact))
			continue
		}
		result.Output = append(result.Output, fmt.Sprintf("%s = %v", fact, ev.Data["value"]))
	}

	for _, t := range s.monitor.Poll(s.Facts) {
		result.Events = append(result.Events, types.Event{
			Type: VerdictChanged,
			Data: map[string]any{"key": t.Key, "from": string(t.From), "to": string(t.To)},
		})
		result.Output = append(result.Output, fmt.Sprintf("%s: %s -> %s", t.Key, t.From, t.To))
	}
}

func (s *Session) root(result *types.Result) {
	key := s.Engine.Defs().Composites.RootKey()
	if key == "" {
		result.Output = append(result.Output, "No root condition.")
		return
	}
	c, err := s.Engine.Defs().Composites.Resolve(key)
	if err != nil {
		result.Output = append(result.Output, "error: "+err.Error())
		return
	}
	result.Output = append(result.Output, "root "+DescribeComposite(c))
	s.eval(nil, result)
}

// mutation converts a mutating command into effects.
func mutation(cmd types.Command) ([]types.Effect, error) {
	need := func(n int, usage string) error {
		if len(cmd.Args) < n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}

	switch cmd.Verb {
	case parser.Set:
		if err := need(2, "set <fact> <value>"); err != nil {
			return nil, err
		}
		return []types.Effect{setEffect(cmd.Args[0], strings.Join(cmd.Args[1:], " "))}, nil

	case parser.Label:
		if err := need(2, "label <fact> <text>"); err != nil {
			return nil, err
		}
		return []types.Effect{{Type: effects.SetLabel, Params: map[string]any{
			"fact": cmd.Args[0], "value": strings.Join(cmd.Args[1:], " "),
		}}}, nil

	case parser.Inc:
		if err := need(1, "inc <fact> [amount]"); err != nil {
			return nil, err
		}
		amount := 1.0
		if len(cmd.Args) > 1 {
			n, err := strconv.ParseFloat(cmd.Args[1], 64)
			if err != nil {
				return nil, fmt.Errorf("inc: %q is not a number", cmd.Args[1])
			}
			amount = n
		}
		return []types.Effect{{Type: effects.IncValue, Params: map[string]any{
			"fact": cmd.Args[0], "amount": amount,
		}}}, nil

	case parser.Unset:
		if err := need(1, "unset <fact>"); err != nil {
			return nil, err
		}
		var effs []types.Effect
		for _, name := range cmd.Args {
			effs = append(effs, types.Effect{Type: effects.Unset, Params: map[string]any{"fact": name}})
		}
		return effs, nil
	}
	return nil, fmt.Errorf("%s is not a mutation", cmd.Verb)
}

// setEffect infers the fact type from the literal.
func setEffect(name, raw string) types.Effect {
	switch strings.ToLower(raw) {
	case "true", "yes", "on":
		return types.Effect{Type: effects.SetFlag, Params: map[string]any{"fact": name, "value": true}}
	case "false", "no", "off":
		return types.Effect{Type: effects.SetFlag, Params: map[string]any{"fact": name, "value": false}}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return types.Effect{Type: effects.SetValue, Params: map[string]any{"fact": name, "value": n}}
	}
	return types.Effect{Type: effects.SetLabel, Params: map[string]any{"fact": name, "value": raw}}
}

func (s *Session) describeFacts() []string {
	names := s.Facts.Names()
	if len(names) == 0 {
		return []string{"No facts."}
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := s.Facts.Flag(name); ok {
			lines = append(lines, fmt.Sprintf("  %s = %t", name, v))
		}
		if v, ok := s.Facts.Value(name); ok {
			lines = append(lines, fmt.Sprintf("  %s = %s", name, strconv.FormatFloat(v, 'g', -1, 64)))
		}
		if v, ok := s.Facts.Label(name); ok {
			lines = append(lines, fmt.Sprintf("  %s = %q", name, v))
		}
	}
	return lines
}

func (s *Session) describeAtoms() []string {
	atoms := s.Engine.Defs().Atoms
	lines := []string{fmt.Sprintf("%d atoms:", atoms.Len())}
	for _, key := range atoms.Keys() {
		a, _ := atoms.Resolve(key)
		lines = append(lines, "  "+DescribeAtom(a))
	}
	return lines
}

func (s *Session) describeComposites() []string {
	comps := s.Engine.Defs().Composites
	lines := []string{fmt.Sprintf("%d composites:", comps.Len())}
	for _, key := range comps.Keys() {
		c, _ := comps.Resolve(key)
		line := "  " + DescribeComposite(c)
		if key == comps.RootKey() {
			line += "  [root]"
		}
		lines = append(lines, line)
	}
	return lines
}

// DescribeAtom renders an atom as "key: fact op right".
func DescribeAtom(a types.AtomCondition) string {
	var body string
	switch {
	case a.Boolean != nil:
		body = fmt.Sprintf("%s %s", a.Boolean.Fact, a.Boolean.Operator)
	case a.Compare != nil:
		body = fmt.Sprintf("%s %s %s", a.Compare.Fact, a.Compare.Operator,
			strconv.FormatFloat(a.Compare.Right, 'g', -1, 64))
	default:
		body = "(invalid)"
	}
	if len(a.Payload) > 0 {
		keys := make([]string, 0, len(a.Payload))
		for k := range a.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body += " {" + strings.Join(keys, ",") + "}"
	}
	return a.Key + ": " + body
}

// DescribeComposite renders a composite as "key = op(entity1, entity2)".
func DescribeComposite(c types.CompositeCondition) string {
	ref := func(e types.ConditionEntity) string {
		return fmt.Sprintf("%s:%s", e.Kind, e.Key)
	}
	if c.Operator == types.None {
		return fmt.Sprintf("%s = %s", c.Key, ref(c.Entity1))
	}
	return fmt.Sprintf("%s = %s(%s, %s)", c.Key, c.Operator, ref(c.Entity1), ref(c.Entity2))
}

var _ events.Evaluator = (*Engine)(nil)
var _ events.Evaluator = (*eval.Evaluator)(nil)
