package loader

import (
	"strings"
	"testing"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

func validDefs(t *testing.T) *registry.Defs {
	t.Helper()
	d := registry.NewDefs()
	d.Meta = types.RulesetMeta{Title: "Test", Root: "Ready"}
	mustRegisterAtom(t, d, "Alert")
	mustRegisterAtom(t, d, "Armed")
	mustRegisterComposite(t, d, "Ready", types.And,
		types.ConditionEntity{Kind: types.Atomic, Key: "Alert"},
		types.ConditionEntity{Kind: types.Composite, Key: "Loaded"})
	mustRegisterComposite(t, d, "Loaded", types.None,
		types.ConditionEntity{Kind: types.Atomic, Key: "Armed"},
		types.ConditionEntity{})
	if err := d.Composites.SetRoot("Ready"); err != nil {
		t.Fatal(err)
	}
	return d
}

func mustRegisterAtom(t *testing.T, d *registry.Defs, key string) {
	t.Helper()
	err := d.Atoms.Register(types.AtomCondition{
		Key: key, Kind: types.AtomBoolean,
		Boolean: &types.BooleanPredicate{Fact: strings.ToLower(key), Operator: types.Is},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func mustRegisterComposite(t *testing.T, d *registry.Defs, key string, op types.LogicOperator, e1, e2 types.ConditionEntity) {
	t.Helper()
	err := d.Composites.Register(types.CompositeCondition{Key: key, Operator: op, Entity1: e1, Entity2: e2})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValidate_ValidDefs(t *testing.T) {
	ve := Validate(validDefs(t), true)
	if len(ve.Errors) != 0 || len(ve.Warnings) != 0 {
		t.Errorf("expected clean result, got errors %v warnings %v", ve.Errors, ve.Warnings)
	}
}

func TestValidate_WorksOnSealedDefs(t *testing.T) {
	d := validDefs(t)
	d.Seal()
	if ve := Validate(d, true); len(ve.Errors) != 0 {
		t.Errorf("unexpected errors: %v", ve.Errors)
	}
}

func TestValidate_EmptyTitle_Warning(t *testing.T) {
	d := validDefs(t)
	d.Meta.Title = ""
	ve := Validate(d, true)
	if len(ve.Errors) != 0 {
		t.Errorf("unexpected errors: %v", ve.Errors)
	}
	assertContains(t, ve.Warnings, "title is empty")
}

func TestValidate_DanglingReferences(t *testing.T) {
	d := validDefs(t)
	mustRegisterComposite(t, d, "Broken", types.Or,
		types.ConditionEntity{Kind: types.Atomic, Key: "Ghost"},
		types.ConditionEntity{Kind: types.Composite, Key: "Phantom"})

	strict := Validate(d, true)
	assertContains(t, strict.Errors, `composite "Broken" references unknown atom "Ghost"`)
	assertContains(t, strict.Errors, `composite "Broken" references unknown composite "Phantom"`)

	lenient := Validate(d, false)
	if len(lenient.Errors) != 0 {
		t.Errorf("non-strict should not produce errors: %v", lenient.Errors)
	}
	assertContains(t, lenient.Warnings, `unknown atom "Ghost"`)
}

func TestValidate_NoneIgnoresEntity2(t *testing.T) {
	d := validDefs(t)
	mustRegisterComposite(t, d, "Solo", types.None,
		types.ConditionEntity{Kind: types.Atomic, Key: "Alert"},
		types.ConditionEntity{Kind: types.Atomic, Key: "Ghost"})
	if ve := Validate(d, true); len(ve.Errors) != 0 {
		t.Errorf("Entity2 of a none composite must not be checked: %v", ve.Errors)
	}
}

func TestValidate_Cycles(t *testing.T) {
	d := registry.NewDefs()
	d.Meta.Title = "Cycles"
	self := types.ConditionEntity{Kind: types.Composite, Key: "Self"}
	mustRegisterComposite(t, d, "Self", types.None, self, types.ConditionEntity{})
	mustRegisterComposite(t, d, "X", types.None, types.ConditionEntity{Kind: types.Composite, Key: "Y"}, types.ConditionEntity{})
	mustRegisterComposite(t, d, "Y", types.None, types.ConditionEntity{Kind: types.Composite, Key: "Z"}, types.ConditionEntity{})
	mustRegisterComposite(t, d, "Z", types.None, types.ConditionEntity{Kind: types.Composite, Key: "X"}, types.ConditionEntity{})

	ve := Validate(d, true)
	assertContains(t, ve.Errors, "reference cycle: Self -> Self")
	assertContains(t, ve.Errors, "reference cycle: X -> Y -> Z -> X")
	if len(ve.Errors) != 2 {
		t.Errorf("each cycle should be reported once, got %v", ve.Errors)
	}
}

func TestValidate_DiamondIsNotACycle(t *testing.T) {
	d := registry.NewDefs()
	d.Meta.Title = "Diamond"
	mustRegisterAtom(t, d, "Leaf")
	leaf := types.ConditionEntity{Kind: types.Atomic, Key: "Leaf"}
	mustRegisterComposite(t, d, "Shared", types.None, leaf, types.ConditionEntity{})
	shared := types.ConditionEntity{Kind: types.Composite, Key: "Shared"}
	mustRegisterComposite(t, d, "Top", types.And, shared, shared)

	ve := Validate(d, true)
	if len(ve.Errors) != 0 {
		t.Errorf("unexpected errors: %v", ve.Errors)
	}
	assertContains(t, ve.Warnings, "no root composite declared")
}

func TestValidate_DanglingRoot(t *testing.T) {
	d := validDefs(t)
	d.Meta.Root = "Elsewhere"
	d2 := registry.NewDefs()
	d2.Meta = d.Meta
	mustRegisterAtom(t, d2, "Alert")
	mustRegisterComposite(t, d2, "Ready", types.None,
		types.ConditionEntity{Kind: types.Atomic, Key: "Alert"}, types.ConditionEntity{})

	ve := Validate(d2, true)
	assertContains(t, ve.Errors, `root "Elsewhere" is not a registered composite`)
}

func TestValidate_UnusedAtom_Warning(t *testing.T) {
	d := validDefs(t)
	mustRegisterAtom(t, d, "Orphan")
	ve := Validate(d, true)
	if len(ve.Errors) != 0 {
		t.Errorf("unexpected errors: %v", ve.Errors)
	}
	assertContains(t, ve.Warnings, `atom "Orphan" is not referenced by any composite`)
}

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{Errors: []string{"one", "two"}}
	want := "validation failed with 2 error(s):\n  one\n  two"
	if ve.Error() != want {
		t.Errorf("Error() = %q, want %q", ve.Error(), want)
	}
}

// assertContains checks that at least one string in the slice contains substr.
func assertContains(t *testing.T, strs []string, substr string) {
	t.Helper()
	for _, s := range strs {
		if contains(s, substr) {
			return
		}
	}
	t.Errorf("expected one of %v to contain %q", strs, substr)
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
