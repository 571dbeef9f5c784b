package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerPredicateHelpers(L)
	registerLogicHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Ruleset { title = "...", root = "...", facts = { ... } }
	L.SetGlobal("Ruleset", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.addMeta(metaDecl{
			title:   getString(tbl, "title"),
			author:  getString(tbl, "author"),
			version: getString(tbl, "version"),
			root:    getString(tbl, "root"),
			facts:   tableToAnyMap(getTable(tbl, "facts")),
			source:  coll.source,
		})
		return 0
	}))

	// Atom "key" (Is("fact")) is curried and returns an operand reference.
	L.SetGlobal("Atom", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.atoms = append(coll.atoms, atomDeclFromLua(key, tbl, coll.source))
			L.Push(refTable(L, "atomic", key))
			return 1
		}))
		return 1
	}))

	// Composite "key" (And(a, b)) is curried and returns an operand reference.
	L.SetGlobal("Composite", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.composites = append(coll.composites, compositeDeclFromLua(key, tbl, coll.source))
			L.Push(refTable(L, "composite", key))
			return 1
		}))
		return 1
	}))

	// AtomRef "key" / Ref "key" name operands defined elsewhere.
	L.SetGlobal("AtomRef", L.NewFunction(func(L *lua.LState) int {
		L.Push(refTable(L, "atomic", L.CheckString(1)))
		return 1
	}))
	L.SetGlobal("Ref", L.NewFunction(func(L *lua.LState) int {
		L.Push(refTable(L, "composite", L.CheckString(1)))
		return 1
	}))

	// Root "key" designates the root composite.
	L.SetGlobal("Root", L.NewFunction(func(L *lua.LState) int {
		coll.roots = append(coll.roots, rootDecl{key: L.CheckString(1), source: coll.source})
		return 0
	}))
}

func registerPredicateHelpers(L *lua.LState) {
	boolean := func(op string) lua.LGFunction {
		return func(L *lua.LState) int {
			tbl := L.NewTable()
			tbl.RawSetString("kind", lua.LString("boolean"))
			tbl.RawSetString("fact", lua.LString(L.CheckString(1)))
			tbl.RawSetString("op", lua.LString(op))
			if p := L.OptTable(2, nil); p != nil {
				tbl.RawSetString("payload", p)
			}
			L.Push(tbl)
			return 1
		}
	}

	// Is("fact" [, payload]) / IsNot("fact" [, payload])
	L.SetGlobal("Is", L.NewFunction(boolean("is")))
	L.SetGlobal("IsNot", L.NewFunction(boolean("is_not")))

	// Value("fact", ">=", 10 [, payload])
	L.SetGlobal("Value", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("kind", lua.LString("value"))
		tbl.RawSetString("fact", lua.LString(L.CheckString(1)))
		tbl.RawSetString("op", lua.LString(L.CheckString(2)))
		tbl.RawSetString("value", L.CheckNumber(3))
		if p := L.OptTable(4, nil); p != nil {
			tbl.RawSetString("payload", p)
		}
		L.Push(tbl)
		return 1
	}))
}

func registerLogicHelpers(L *lua.LState) {
	logic := func(op string, arity int) lua.LGFunction {
		return func(L *lua.LState) int {
			operands := L.NewTable()
			for i := 1; i <= arity; i++ {
				operands.Append(L.CheckTable(i))
			}
			tbl := L.NewTable()
			tbl.RawSetString("op", lua.LString(op))
			tbl.RawSetString("operands", operands)
			L.Push(tbl)
			return 1
		}
	}

	L.SetGlobal("And", L.NewFunction(logic("and", 2)))
	L.SetGlobal("Or", L.NewFunction(logic("or", 2)))
	L.SetGlobal("Pass", L.NewFunction(logic("none", 1)))
}

func refTable(L *lua.LState, kind, key string) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("ref", lua.LString(kind))
	tbl.RawSetString("key", lua.LString(key))
	return tbl
}

func atomDeclFromLua(key string, tbl *lua.LTable, source string) atomDecl {
	d := atomDecl{
		key:     key,
		kind:    getString(tbl, "kind"),
		fact:    getString(tbl, "fact"),
		op:      getString(tbl, "op"),
		payload: tableToAnyMap(getTable(tbl, "payload")),
		source:  source,
	}
	if n, ok := tbl.RawGetString("value").(lua.LNumber); ok {
		v := float64(n)
		d.right = &v
	}
	return d
}

func compositeDeclFromLua(key string, tbl *lua.LTable, source string) compositeDecl {
	d := compositeDecl{
		key:    key,
		op:     getString(tbl, "op"),
		source: source,
	}
	if operands := getTable(tbl, "operands"); operands != nil {
		for i := 1; i <= operands.MaxN(); i++ {
			ref, ok := operands.RawGetInt(i).(*lua.LTable)
			if !ok {
				d.operands = append(d.operands, refDecl{})
				continue
			}
			d.operands = append(d.operands, refDecl{
				kind: getString(ref, "ref"),
				key:  getString(ref, "key"),
			})
		}
	}
	return d
}
