// Package loader loads condition definitions written in Lua or YAML into a
// sealed registry. The Lua VM is discarded after loading; nothing is
// interpreted at evaluation time.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/condcore/engine/registry"
)

// Options controls loading.
type Options struct {
	// Strict turns dangling references, cycles and a dangling root into
	// errors instead of warnings.
	Strict bool
	Logger *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return o.Logger.With().Str("component", "loader").Logger()
}

// rulesetNames are loaded before any other file, in this order.
var rulesetNames = []string{"ruleset.lua", "ruleset.yaml", "ruleset.yml"}

// IsRuleFile reports whether name has an extension the loader reads.
func IsRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".lua", ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads all .lua, .yaml and .yml files from dir, compiles them into
// condition registries, validates references and returns the sealed Defs.
func Load(dir string, opts Options) (*registry.Defs, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsRuleFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .lua or .yaml files found in %s", dir)
	}
	files = sortedRuleFiles(files)

	coll := &collector{}
	var L *lua.LState
	defer func() {
		if L != nil {
			L.Close()
		}
	}()

	for _, f := range files {
		path := filepath.Join(dir, f)
		coll.source = f
		if strings.HasSuffix(strings.ToLower(f), ".lua") {
			if L == nil {
				L = newSandbox(coll)
			}
			if err := L.DoFile(path); err != nil {
				return nil, fmt.Errorf("executing %s: %w", f, err)
			}
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		if err := decodeYAML(coll, data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f, err)
		}
	}

	return finish(coll, opts)
}

// LoadLua loads definitions from a single Lua chunk.
func LoadLua(source string, opts Options) (*registry.Defs, error) {
	coll := &collector{source: "<lua>"}
	L := newSandbox(coll)
	defer L.Close()
	if err := L.DoString(source); err != nil {
		return nil, fmt.Errorf("executing lua: %w", err)
	}
	return finish(coll, opts)
}

// LoadYAML loads definitions from a single YAML document.
func LoadYAML(data []byte, opts Options) (*registry.Defs, error) {
	coll := &collector{source: "<yaml>"}
	if err := decodeYAML(coll, data); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return finish(coll, opts)
}

func finish(coll *collector, opts Options) (*registry.Defs, error) {
	log := opts.logger()

	defs, ve := compile(coll)
	if len(ve.Errors) == 0 {
		checked := Validate(defs, opts.Strict)
		ve.Errors = append(ve.Errors, checked.Errors...)
		ve.Warnings = append(ve.Warnings, checked.Warnings...)
	}
	for _, w := range ve.Warnings {
		log.Warn().Str("title", defs.Meta.Title).Msg(w)
	}
	if len(ve.Errors) > 0 {
		return nil, ve
	}

	defs.Seal()
	log.Debug().
		Str("title", defs.Meta.Title).
		Int("atoms", defs.Atoms.Len()).
		Int("composites", defs.Composites.Len()).
		Str("root", defs.Composites.RootKey()).
		Msg("ruleset loaded")
	return defs, nil
}

// newSandbox creates a Lua VM with only safe libraries and the definition
// API installed.
func newSandbox(coll *collector) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	registerAPI(L, coll)
	return L
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	// Base library (print, type, tostring, tonumber, pairs, ipairs, etc.)
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the VM or break determinism.
func sandbox(L *lua.LState) {
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "require", "module",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("randomseed", lua.LNil)
		tbl.RawSetString("random", lua.LNil)
	}
}

// sortedRuleFiles puts the ruleset file first and the rest in
// alphabetical order.
func sortedRuleFiles(files []string) []string {
	var first, others []string
	for _, f := range files {
		isRuleset := false
		for _, name := range rulesetNames {
			if strings.EqualFold(f, name) {
				isRuleset = true
				break
			}
		}
		if isRuleset {
			first = append(first, f)
		} else {
			others = append(others, f)
		}
	}
	sort.Slice(first, func(i, j int) bool { return rulesetRank(first[i]) < rulesetRank(first[j]) })
	sort.Strings(others)
	return append(first, others...)
}

func rulesetRank(f string) int {
	for i, name := range rulesetNames {
		if strings.EqualFold(f, name) {
			return i
		}
	}
	return len(rulesetNames)
}
