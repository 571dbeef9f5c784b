package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/condcore/config"
	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/engine/metrics"
	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/engine/state"
	"github.com/nathoo/condcore/types"
)

func atomRef(key string) types.ConditionEntity {
	return types.ConditionEntity{Kind: types.Atomic, Key: key}
}

func compRef(key string) types.ConditionEntity {
	return types.ConditionEntity{Kind: types.Composite, Key: key}
}

// testDefs builds a small ruleset:
//
//	Ready   = And(Alert: alert is, Healthy: HP > 50)   [root]
//	Loop    = Pass(Loop)
//	Broken  = Or(Ghost, Alert)
func testDefs(t *testing.T) *registry.Defs {
	t.Helper()
	d := registry.NewDefs()
	d.Meta = types.RulesetMeta{
		Title: "Test Rules",
		Facts: map[string]any{"alert": true, "HP": 80},
	}
	require.NoError(t, d.Atoms.Register(types.AtomCondition{
		Key: "Alert", Kind: types.AtomBoolean,
		Boolean: &types.BooleanPredicate{Fact: "alert", Operator: types.Is},
	}))
	require.NoError(t, d.Atoms.Register(types.AtomCondition{
		Key: "Healthy", Kind: types.AtomValue,
		Compare: &types.ValuePredicate{Fact: "HP", Operator: types.GreaterThan, Right: 50},
	}))
	require.NoError(t, d.Composites.Register(types.CompositeCondition{
		Key: "Ready", Operator: types.And, Entity1: atomRef("Alert"), Entity2: atomRef("Healthy"),
	}))
	require.NoError(t, d.Composites.Register(types.CompositeCondition{
		Key: "Loop", Operator: types.None, Entity1: compRef("Loop"),
	}))
	require.NoError(t, d.Composites.Register(types.CompositeCondition{
		Key: "Broken", Operator: types.Or, Entity1: atomRef("Ghost"), Entity2: atomRef("Alert"),
	}))
	require.NoError(t, d.Composites.SetRoot("Ready"))
	d.Seal()
	return d
}

func testFacts() *state.FactSheet {
	f := state.NewFactSheet()
	f.SetFlag("alert", true)
	f.SetValue("HP", 80)
	return f
}

func outputContains(output []string, substr string) bool {
	for _, line := range output {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestEngine_EvaluateByKey(t *testing.T) {
	e := New(testDefs(t), Options{})
	facts := testFacts()

	v, err := e.EvaluateByKey("", facts)
	require.NoError(t, err)
	assert.True(t, v)

	facts.SetValue("HP", 10)
	v, err = e.EvaluateByKey("Ready", facts)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = e.Evaluate(atomRef("Alert"), facts)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestEngine_CheckLogsAndReturnsFalse(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	e := New(testDefs(t), Options{Logger: &log})

	assert.False(t, e.Check("Loop", testFacts()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "evaluation failed", entry["message"])
	assert.Equal(t, "Loop", entry["key"])
	assert.Equal(t, string(eval.KindCycleDetected), entry["kind"])
	assert.Equal(t, "composite:Loop > composite:Loop", entry["chain"])
	assert.NotEmpty(t, entry["eval_id"])
}

func TestEngine_CheckTrue(t *testing.T) {
	e := New(testDefs(t), Options{})
	assert.True(t, e.Check("Ready", testFacts()))
}

func TestEngine_Explain(t *testing.T) {
	e := New(testDefs(t), Options{})
	tr, err := e.Explain("", testFacts())
	require.NoError(t, err)
	assert.True(t, tr.Verdict)
	assert.Len(t, tr.Root.Children, 2)

	_, err = e.Explain("Nope", testFacts())
	assert.ErrorIs(t, err, eval.ErrUnknownComposite)
}

func TestEngine_EvaluateAll(t *testing.T) {
	e := New(testDefs(t), Options{Parallelism: 2})
	out, err := e.EvaluateAll(context.Background(), nil, testFacts())
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, Verdict{Value: true}, out["Ready"])
	assert.ErrorIs(t, out["Loop"].Err, eval.ErrCycleDetected)
	// Ghost is evaluated first and does not exist.
	assert.ErrorIs(t, out["Broken"].Err, eval.ErrUnknownAtom)
}

func TestEngine_EvaluateAllCancelled(t *testing.T) {
	e := New(testDefs(t), Options{Parallelism: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := e.EvaluateAll(ctx, []string{"Ready", "Loop"}, testFacts())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out)
}

func TestEngine_Reload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(config.MetricsConfig{Namespace: "t"}, reg)
	e := New(testDefs(t), Options{Metrics: m})
	before := e.Defs()

	err := e.Reload(func() (*registry.Defs, error) { return nil, errors.New("syntax error") })
	require.Error(t, err)
	assert.Same(t, before, e.Defs(), "failed reload keeps the old ruleset")

	err = e.Reload(func() (*registry.Defs, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrNoRuleset)

	next := registry.NewDefs()
	next.Seal()
	require.NoError(t, e.Reload(func() (*registry.Defs, error) { return next, nil }))
	assert.Same(t, next, e.Defs())
	assert.Same(t, next, e.Evaluator().Defs())

	_, err = e.EvaluateByKey("Ready", testFacts())
	assert.ErrorIs(t, err, eval.ErrUnknownComposite)

	n, err := testutil.GatherAndCount(reg, "t_reloads_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one success and one failure series")
}

func TestEngine_Metrics(t *testing.T) {
	m := metrics.NewCollector(config.MetricsConfig{Namespace: "t"}, prometheus.NewRegistry())
	e := New(testDefs(t), Options{Metrics: m})

	e.Check("Ready", testFacts())
	e.Check("Loop", testFacts())

	n, err := testutil.GatherAndCount(m.Registry(), "t_evaluation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = testutil.GatherAndCount(m.Registry(), "t_evaluation_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_ConcurrentEvaluateAndReload(t *testing.T) {
	defs := testDefs(t)
	e := New(defs, Options{})
	facts := testFacts()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if !e.Check("Ready", facts) {
					t.Error("unexpected false verdict")
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			_ = e.Reload(func() (*registry.Defs, error) { return defs, nil })
		}()
	}
	wg.Wait()
}
