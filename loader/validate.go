package loader

import (
	"fmt"
	"strings"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// Validate checks a compiled ruleset for dangling references, reference
// cycles and a dangling root. Those are warnings, or errors when strict.
// Unused atoms and a missing root are always warnings. Validate only reads
// defs, so it also works on sealed rulesets.
func Validate(defs *registry.Defs, strict bool) *ValidationError {
	ve := &ValidationError{}
	problem := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if strict {
			ve.Errors = append(ve.Errors, msg)
		} else {
			ve.Warnings = append(ve.Warnings, msg)
		}
	}

	if defs.Meta.Title == "" {
		ve.Warnings = append(ve.Warnings, "Ruleset title is empty")
	}

	comps := defs.Composites
	switch root := defs.Meta.Root; {
	case root == "" && comps.RootKey() == "":
		if comps.Len() > 0 {
			ve.Warnings = append(ve.Warnings, "no root composite declared")
		}
	case comps.RootKey() == "":
		problem("root %q is not a registered composite", root)
	}

	used := map[string]bool{}
	for _, key := range comps.Keys() {
		c, _ := comps.Resolve(key)
		for _, ent := range operands(c) {
			switch ent.Kind {
			case types.Atomic:
				used[ent.Key] = true
				if _, err := defs.Atoms.Resolve(ent.Key); err != nil {
					problem("composite %q references unknown atom %q", key, ent.Key)
				}
			case types.Composite:
				if _, err := comps.Resolve(ent.Key); err != nil {
					problem("composite %q references unknown composite %q", key, ent.Key)
				}
			}
		}
	}

	for _, cycle := range findCycles(comps) {
		problem("reference cycle: %s", strings.Join(cycle, " -> "))
	}

	for _, key := range defs.Atoms.Keys() {
		if !used[key] {
			ve.Warnings = append(ve.Warnings, fmt.Sprintf("atom %q is not referenced by any composite", key))
		}
	}
	return ve
}

// operands returns the entities a composite actually evaluates.
func operands(c types.CompositeCondition) []types.ConditionEntity {
	if c.Operator == types.None {
		return []types.ConditionEntity{c.Entity1}
	}
	return []types.ConditionEntity{c.Entity1, c.Entity2}
}

// findCycles walks composite-to-composite references depth first and
// returns each cycle found as a closed path of keys.
func findCycles(comps *registry.Composites) [][]string {
	visited := map[string]bool{}
	inProgress := map[string]bool{}
	var cycles [][]string

	var visit func(key string, path []string)
	visit = func(key string, path []string) {
		visited[key] = true
		inProgress[key] = true
		path = append(path, key)

		c, err := comps.Resolve(key)
		if err == nil {
			for _, ent := range operands(c) {
				if ent.Kind != types.Composite {
					continue
				}
				if inProgress[ent.Key] {
					start := 0
					for i, k := range path {
						if k == ent.Key {
							start = i
							break
						}
					}
					cycle := append(append([]string{}, path[start:]...), ent.Key)
					cycles = append(cycles, cycle)
					continue
				}
				if !visited[ent.Key] {
					visit(ent.Key, path)
				}
			}
		}

		inProgress[key] = false
	}

	for _, key := range comps.Keys() {
		if !visited[key] {
			visit(key, nil)
		}
	}
	return cycles
}
