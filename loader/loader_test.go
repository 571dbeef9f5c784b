package loader

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

func TestLoad_MixedLuaAndYAML(t *testing.T) {
	defs, err := Load("testdata/wave", Options{Strict: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if defs.Meta.Title != "Wave Rules" {
		t.Errorf("Title = %q, want %q", defs.Meta.Title, "Wave Rules")
	}
	if defs.Meta.Version != "0.3" {
		t.Errorf("Version = %q", defs.Meta.Version)
	}
	if got := defs.Composites.RootKey(); got != "WaveComplete" {
		t.Errorf("root = %q, want WaveComplete", got)
	}
	if defs.Meta.Facts["enemies_alive"] != 3 {
		t.Errorf("facts.enemies_alive = %v", defs.Meta.Facts["enemies_alive"])
	}
	if defs.Meta.Facts["behaviour"] != "patrol" {
		t.Errorf("facts.behaviour = %v", defs.Meta.Facts["behaviour"])
	}

	if n := defs.Atoms.Len(); n != 4 {
		t.Errorf("atoms = %d, want 4 (%v)", n, defs.Atoms.Keys())
	}
	if n := defs.Composites.Len(); n != 3 {
		t.Errorf("composites = %d, want 3 (%v)", n, defs.Composites.Keys())
	}

	noEnemies, err := defs.Atoms.Resolve("NoEnemies")
	if err != nil {
		t.Fatalf("NoEnemies: %v", err)
	}
	if noEnemies.Kind != types.AtomValue || noEnemies.Compare.Operator != types.LessOrEqual || noEnemies.Compare.Right != 0 {
		t.Errorf("NoEnemies = %+v %+v", noEnemies, noEnemies.Compare)
	}

	chasing, _ := defs.Atoms.Resolve("Chasing")
	if chasing.Boolean == nil || chasing.Boolean.Operator != types.Is {
		t.Errorf("Chasing should default to the is operator, got %+v", chasing.Boolean)
	}
	if chasing.Payload["equals"] != "chase" {
		t.Errorf("Chasing payload = %v", chasing.Payload)
	}

	// Atoms declared inline in a composite are registered too.
	hurt, err := defs.Atoms.Resolve("Hurt")
	if err != nil {
		t.Fatalf("Hurt: %v", err)
	}
	if hurt.Compare.Fact != "HP" || hurt.Compare.Operator != types.LessThan || hurt.Compare.Right != 25 {
		t.Errorf("Hurt = %+v", hurt.Compare)
	}

	wave, _ := defs.Composites.Resolve("WaveComplete")
	want := types.CompositeCondition{
		Key:      "WaveComplete",
		Operator: types.And,
		Entity1:  types.ConditionEntity{Kind: types.Composite, Key: "Cleared"},
		Entity2:  types.ConditionEntity{Kind: types.Atomic, Key: "BossDown"},
	}
	if wave != want {
		t.Errorf("WaveComplete = %+v, want %+v", wave, want)
	}

	cleared, _ := defs.Composites.Resolve("Cleared")
	if cleared.Operator != types.None || cleared.Entity1.Key != "NoEnemies" {
		t.Errorf("Cleared = %+v", cleared)
	}
}

func TestLoad_ResultIsSealed(t *testing.T) {
	defs, err := Load("testdata/wave", Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err = defs.Atoms.Register(types.AtomCondition{
		Key: "Late", Kind: types.AtomBoolean,
		Boolean: &types.BooleanPredicate{Fact: "late", Operator: types.Is},
	})
	if !errors.Is(err, registry.ErrSealed) {
		t.Errorf("Register after load = %v, want ErrSealed", err)
	}
}

func TestLoad_CycleIsWarningUnlessStrict(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	defs, err := Load("testdata/cycle", Options{Logger: &log})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if defs.Composites.RootKey() != "A" {
		t.Errorf("root = %q", defs.Composites.RootKey())
	}
	if !strings.Contains(buf.String(), "reference cycle: A -> B -> A") {
		t.Errorf("expected cycle warning in log, got %s", buf.String())
	}

	_, err = Load("testdata/cycle", Options{Strict: true})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, ve.Errors, "reference cycle: A -> B -> A")
}

func TestLoad_Dangling(t *testing.T) {
	defs, err := Load("testdata/dangling", Options{})
	if err != nil {
		t.Fatalf("non-strict Load failed: %v", err)
	}
	if defs.Composites.RootKey() != "" {
		t.Errorf("dangling root should not be set, got %q", defs.Composites.RootKey())
	}
	if defs.Meta.Root != "Missing" {
		t.Errorf("Meta.Root = %q", defs.Meta.Root)
	}

	_, err = Load("testdata/dangling", Options{Strict: true})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, ve.Errors, `root "Missing" is not a registered composite`)
	assertContains(t, ve.Errors, `composite "Ready" references unknown atom "Ghost"`)
}

func TestLoad_DuplicateKeyAcrossFiles_Fails(t *testing.T) {
	_, err := Load("testdata/duplicate", Options{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, ve.Errors, `b.yaml:2: atom "Armed": duplicate key`)
}

func TestLoad_NoRuleFiles_Fails(t *testing.T) {
	_, err := Load("testdata/empty", Options{})
	if err == nil || !strings.Contains(err.Error(), "no .lua or .yaml files") {
		t.Errorf("error = %v", err)
	}

	_, err = Load("testdata/does-not-exist", Options{})
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoad_BadLuaSyntax_Fails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte(`Atom "x" (`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir, Options{})
	if err == nil || !strings.Contains(err.Error(), "executing bad.lua") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_BadYAML_Fails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("atoms: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir, Options{})
	if err == nil || !strings.Contains(err.Error(), "parsing bad.yaml") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_SandboxEnforced(t *testing.T) {
	L, _ := newTestVM()
	defer L.Close()

	for _, chunk := range []string{
		`os.execute("echo pwned")`,
		`io.open("/etc/passwd")`,
		`dofile("x.lua")`,
		`require("os")`,
		`math.randomseed(1)`,
	} {
		if err := L.DoString(chunk); err == nil {
			t.Errorf("expected sandbox to block %s", chunk)
		}
	}
}

func TestLoadLua(t *testing.T) {
	defs, err := LoadLua(`
		Ruleset { title = "Inline" }
		Root "Alive"
		Composite "Alive" (Pass(Atom "HasHP" (Value("HP", "gt", 0))))
	`, Options{Strict: true})
	if err != nil {
		t.Fatalf("LoadLua failed: %v", err)
	}
	if defs.Composites.RootKey() != "Alive" {
		t.Errorf("root = %q", defs.Composites.RootKey())
	}
	a, _ := defs.Atoms.Resolve("HasHP")
	if a.Compare == nil || a.Compare.Operator != types.GreaterThan {
		t.Errorf("HasHP = %+v", a)
	}
}

func TestLoadYAML_MissingValue_Fails(t *testing.T) {
	_, err := LoadYAML([]byte(`
atoms:
  - key: Low
    kind: value
    fact: HP
    op: "<"
`), Options{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, ve.Errors, `<yaml>:3: atom "Low": value atom requires a value`)
}

func TestLoadYAML_ConflictingRoots_Fails(t *testing.T) {
	_, err := LoadYAML([]byte(`
ruleset:
  title: Roots
  root: A
root: B
atoms:
  - {key: X, fact: x}
composites:
  - {key: A, operands: [{atom: X}]}
  - {key: B, operands: [{atom: X}]}
`), Options{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, ve.Errors, `root "B" conflicts with root "A"`)
}

func TestLoadYAML_Empty(t *testing.T) {
	defs, err := LoadYAML(nil, Options{})
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if defs.Atoms.Len() != 0 || defs.Composites.Len() != 0 {
		t.Errorf("expected empty ruleset")
	}
}

func TestLoad_FileOrdering(t *testing.T) {
	files := sortedRuleFiles([]string{"zones.yaml", "ruleset.yml", "atoms.lua", "ruleset.lua", "boss.yaml"})
	want := []string{"ruleset.lua", "ruleset.yml", "atoms.lua", "boss.yaml", "zones.yaml"}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files = %v, want %v", files, want)
			break
		}
	}
}

func TestIsRuleFile(t *testing.T) {
	tests := map[string]bool{
		"a.lua": true, "b.YAML": true, "c.yml": true,
		"d.json": false, "README.md": false, "lua": false,
	}
	for name, want := range tests {
		if got := IsRuleFile(name); got != want {
			t.Errorf("IsRuleFile(%q) = %v, want %v", name, got, want)
		}
	}
}
