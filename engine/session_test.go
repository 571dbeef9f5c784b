package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/condcore/engine/events"
	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(New(testDefs(t), Options{}))
	require.NoError(t, err)
	return s
}

func TestNewSession_SeedsFacts(t *testing.T) {
	s := newTestSession(t)
	v, ok := s.Facts.Value("HP")
	assert.True(t, ok)
	assert.Equal(t, 80.0, v)
	assert.Equal(t, events.True, s.RootState())
}

func TestNewSession_BadSeed(t *testing.T) {
	defs := testDefs(t)
	defs.Meta.Facts = map[string]any{"weird": []int{1}}
	_, err := NewSession(New(defs, Options{}))
	assert.Error(t, err)
}

func TestStep_EvalRoot(t *testing.T) {
	s := newTestSession(t)
	result := s.Step("eval")

	assert.Equal(t, []string{"Ready = true"}, result.Output)
	assert.Equal(t, []string{
		"Ready: queried alert (boolean)",
		"Ready: queried HP (value)",
	}, result.Trace)
}

func TestStep_EvalMultipleKeysAndErrors(t *testing.T) {
	s := newTestSession(t)
	result := s.Step("e Ready Loop")

	require.Len(t, result.Output, 2)
	assert.Equal(t, "Ready = true", result.Output[0])
	assert.Contains(t, result.Output[1], "Loop: error: cycle detected")
}

func TestStep_SetFlipsRoot(t *testing.T) {
	s := newTestSession(t)

	result := s.Step("HP = 10")
	assert.True(t, outputContains(result.Output, "HP = 10"))
	assert.True(t, outputContains(result.Output, "Ready: true -> false"))
	require.Len(t, result.Events, 2)
	assert.Equal(t, "fact_changed", result.Events[0].Type)
	assert.Equal(t, VerdictChanged, result.Events[1].Type)
	assert.Equal(t, events.False, s.RootState())

	// No flip, no verdict event.
	result = s.Step("HP = 20")
	assert.Len(t, result.Events, 1)
}

func TestStep_SetInfersType(t *testing.T) {
	s := newTestSession(t)
	s.Step("set asleep off")
	s.Step("set speed 2.5")
	s.Step("set behaviour chase player")
	s.Step("label code 007")

	v, ok := s.Facts.Flag("asleep")
	assert.True(t, ok)
	assert.False(t, v)
	n, _ := s.Facts.Value("speed")
	assert.Equal(t, 2.5, n)
	l, _ := s.Facts.Label("behaviour")
	assert.Equal(t, "chase player", l)
	l, _ = s.Facts.Label("code")
	assert.Equal(t, "007", l)
}

func TestStep_IncAndUnset(t *testing.T) {
	s := newTestSession(t)

	s.Step("HP += 5")
	v, _ := s.Facts.Value("HP")
	assert.Equal(t, 85.0, v)

	s.Step("inc HP")
	v, _ = s.Facts.Value("HP")
	assert.Equal(t, 86.0, v)

	result := s.Step("inc HP lots")
	assert.Equal(t, []string{`inc: "lots" is not a number`}, result.Output)

	result = s.Step("unset alert")
	assert.True(t, outputContains(result.Output, "alert unset"))
	assert.True(t, outputContains(result.Output, "Ready: true -> error"))
}

func TestStep_Usage(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, []string{"usage: set <fact> <value>"}, s.Step("set HP").Output)
	assert.Equal(t, []string{"usage: unset <fact>"}, s.Step("unset").Output)
}

func TestStep_Explain(t *testing.T) {
	s := newTestSession(t)
	s.Step("alert = false")
	result := s.Step("why")

	assert.Equal(t, []string{
		"composite Ready (and) = false",
		"  atom Alert [alert is] = false",
		"  atomic Healthy (skipped)",
	}, result.Output)
	assert.Equal(t, []string{"1 predicate queries"}, result.Trace)
}

func TestStep_Listings(t *testing.T) {
	s := newTestSession(t)

	atoms := s.Step("atoms").Output
	assert.Equal(t, []string{"2 atoms:", "  Alert: alert is", "  Healthy: HP gt 50"}, atoms)

	comps := s.Step("list composites").Output
	assert.Contains(t, comps, "  Ready = and(atomic:Alert, atomic:Healthy)  [root]")
	assert.Contains(t, comps, "  Loop = composite:Loop")

	facts := s.Step("facts").Output
	assert.Equal(t, []string{"  HP = 80", "  alert = true"}, facts)

	root := s.Step("root").Output
	assert.Equal(t, []string{"root Ready = and(atomic:Alert, atomic:Healthy)", "Ready = true"}, root)
}

func TestStep_HelpUnknownAndEmpty(t *testing.T) {
	s := newTestSession(t)
	assert.True(t, outputContains(s.Step("?").Output, "Commands:"))
	assert.Equal(t, []string{`Unknown command "dance". Type help for commands.`}, s.Step("dance").Output)
	assert.Equal(t, []string{"Type help for commands."}, s.Step("  ").Output)
	assert.Equal(t, []string{"?", "dance"}, s.History)
}

func TestStep_SayInterpolates(t *testing.T) {
	s := newTestSession(t)
	s.Step("set HP 40")
	assert.Equal(t, []string{"HP is 40, mood {mood}"}, s.Step("say HP is {HP}, mood {mood}").Output)
	assert.Equal(t, []string{"plain"}, s.Step("echo plain").Output)
}

func TestRewatchAfterReload(t *testing.T) {
	s := newTestSession(t)
	next := testDefs(t)
	next.Meta.Title = "v2"
	require.NoError(t, s.Engine.Reload(func() (*registry.Defs, error) { return next, nil }))
	s.Rewatch()
	assert.Equal(t, events.True, s.RootState())
}

func TestDescribeAtom_Payload(t *testing.T) {
	a := types.AtomCondition{
		Key: "InZone", Kind: types.AtomBoolean,
		Boolean: &types.BooleanPredicate{Fact: "in_area", Operator: types.IsNot},
		Payload: types.Payload{"areas": []any{"a"}, "mask": 3},
	}
	assert.Equal(t, "InZone: in_area is_not {areas,mask}", DescribeAtom(a))
}
