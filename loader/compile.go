package loader

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

// collector accumulates declarations from every source file before
// compilation. Lua and YAML fill the same declarations.
type collector struct {
	source     string // file currently being read
	metas      []metaDecl
	atoms      []atomDecl
	composites []compositeDecl
	roots      []rootDecl
}

func (c *collector) addMeta(m metaDecl) { c.metas = append(c.metas, m) }

type metaDecl struct {
	title, author, version string
	root                   string
	facts                  map[string]any
	source                 string
}

// atomDecl holds an atom before compilation. kind may be empty, in which
// case it is inferred from op.
type atomDecl struct {
	key     string
	kind    string
	fact    string
	op      string
	right   *float64
	payload map[string]any
	source  string
}

type refDecl struct {
	kind string // "atomic"/"atom" or "composite"
	key  string
}

type compositeDecl struct {
	key      string
	op       string
	operands []refDecl
	source   string
}

type rootDecl struct {
	key    string
	source string
}

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// toGoValue converts a Lua value to a Go value recursively.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(val)
	case *lua.LTable:
		// Sequential integer keys starting at 1 make an array.
		maxN := val.MaxN()
		if maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	default:
		return nil
	}
}

// tableToAnyMap converts a Lua table to a map[string]any.
func tableToAnyMap(tbl *lua.LTable) map[string]any {
	if tbl == nil {
		return nil
	}
	m := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			m[string(ks)] = toGoValue(v)
		}
	})
	return m
}

var valueOperators = map[string]types.ValueOperator{
	"==": types.Equal, "=": types.Equal, "eq": types.Equal,
	"!=": types.NotEqual, "~=": types.NotEqual, "ne": types.NotEqual,
	">": types.GreaterThan, "gt": types.GreaterThan,
	">=": types.GreaterOrEqual, "ge": types.GreaterOrEqual,
	"<": types.LessThan, "lt": types.LessThan,
	"<=": types.LessOrEqual, "le": types.LessOrEqual,
}

var booleanOperators = map[string]types.BooleanOperator{
	"is": types.Is, "": types.Is,
	"is_not": types.IsNot, "isnot": types.IsNot, "not": types.IsNot,
}

var logicOperators = map[string]types.LogicOperator{
	"": types.None, "none": types.None, "pass": types.None,
	"and": types.And, "&&": types.And, "all": types.And,
	"or": types.Or, "||": types.Or, "any": types.Or,
}

// ParseValueOperator accepts symbols (">=") and names ("ge").
func ParseValueOperator(s string) (types.ValueOperator, bool) {
	op, ok := valueOperators[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// ParseLogicOperator accepts "and"/"or"/"none" and their aliases.
func ParseLogicOperator(s string) (types.LogicOperator, bool) {
	op, ok := logicOperators[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// compile converts all collected declarations into an unsealed Defs. Every
// problem is collected; none stops compilation early.
func compile(coll *collector) (*registry.Defs, *ValidationError) {
	defs := registry.NewDefs()
	ve := &ValidationError{}

	compileMeta(coll, defs, ve)

	for _, d := range coll.atoms {
		atom, err := compileAtom(d)
		if err == nil {
			err = defs.Atoms.Register(atom)
		}
		if err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s: %v", d.source, err))
		}
	}

	for _, d := range coll.composites {
		comp, err := compileComposite(d)
		if err == nil {
			err = defs.Composites.Register(comp)
		}
		if err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s: %v", d.source, err))
		}
	}

	// A root that is not registered is left for Validate to report.
	if root := defs.Meta.Root; root != "" {
		if _, err := defs.Composites.Resolve(root); err == nil {
			if err := defs.Composites.SetRoot(root); err != nil {
				ve.Errors = append(ve.Errors, err.Error())
			}
		}
	}
	return defs, ve
}

func compileMeta(coll *collector, defs *registry.Defs, ve *ValidationError) {
	if len(coll.metas) > 1 {
		var sources []string
		for _, m := range coll.metas {
			sources = append(sources, m.source)
		}
		ve.Errors = append(ve.Errors, fmt.Sprintf("Ruleset defined more than once (%s)", strings.Join(sources, ", ")))
	}

	var rootSource string
	if len(coll.metas) > 0 {
		m := coll.metas[0]
		defs.Meta = types.RulesetMeta{
			Title:   m.title,
			Author:  m.author,
			Version: m.version,
			Root:    m.root,
			Facts:   m.facts,
		}
		rootSource = m.source
	}

	for _, r := range coll.roots {
		switch {
		case defs.Meta.Root == "":
			defs.Meta.Root = r.key
			rootSource = r.source
		case defs.Meta.Root != r.key:
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s: root %q conflicts with root %q from %s",
				r.source, r.key, defs.Meta.Root, rootSource))
		}
	}
}

func compileAtom(d atomDecl) (types.AtomCondition, error) {
	atom := types.AtomCondition{Key: d.key, Payload: types.Payload(d.payload)}

	kind := strings.ToLower(d.kind)
	if kind == "" {
		if _, ok := ParseValueOperator(d.op); ok || d.right != nil {
			kind = string(types.AtomValue)
		} else {
			kind = string(types.AtomBoolean)
		}
	}

	switch types.AtomKind(kind) {
	case types.AtomBoolean:
		op, ok := booleanOperators[strings.ToLower(d.op)]
		if !ok {
			return atom, fmt.Errorf("atom %q: unknown boolean operator %q", d.key, d.op)
		}
		atom.Kind = types.AtomBoolean
		atom.Boolean = &types.BooleanPredicate{Fact: d.fact, Operator: op}
	case types.AtomValue:
		op, ok := ParseValueOperator(d.op)
		if !ok {
			return atom, fmt.Errorf("atom %q: unknown comparison operator %q", d.key, d.op)
		}
		if d.right == nil {
			return atom, fmt.Errorf("atom %q: value atom requires a value", d.key)
		}
		atom.Kind = types.AtomValue
		atom.Compare = &types.ValuePredicate{Fact: d.fact, Operator: op, Right: *d.right}
	default:
		return atom, fmt.Errorf("atom %q: unknown kind %q", d.key, d.kind)
	}
	return atom, nil
}

func compileComposite(d compositeDecl) (types.CompositeCondition, error) {
	comp := types.CompositeCondition{Key: d.key}

	op, ok := ParseLogicOperator(d.op)
	if !ok {
		return comp, fmt.Errorf("composite %q: unknown logic operator %q", d.key, d.op)
	}
	comp.Operator = op

	want := 2
	if op == types.None {
		want = 1
	}
	if len(d.operands) != want {
		return comp, fmt.Errorf("composite %q: %s takes %d operand(s), got %d", d.key, op, want, len(d.operands))
	}

	ents := make([]types.ConditionEntity, len(d.operands))
	for i, ref := range d.operands {
		ent, err := compileRef(ref)
		if err != nil {
			return comp, fmt.Errorf("composite %q: operand %d: %w", d.key, i+1, err)
		}
		ents[i] = ent
	}
	comp.Entity1 = ents[0]
	if len(ents) > 1 {
		comp.Entity2 = ents[1]
	}
	return comp, nil
}

func compileRef(ref refDecl) (types.ConditionEntity, error) {
	if ref.key == "" {
		return types.ConditionEntity{}, fmt.Errorf("missing key")
	}
	switch strings.ToLower(ref.kind) {
	case "atom", "atomic":
		return types.ConditionEntity{Kind: types.Atomic, Key: ref.key}, nil
	case "composite":
		return types.ConditionEntity{Kind: types.Composite, Key: ref.key}, nil
	}
	return types.ConditionEntity{}, fmt.Errorf("unknown operand kind %q", ref.kind)
}
