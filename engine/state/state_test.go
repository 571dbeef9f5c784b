package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/types"
)

func TestFactSheet_ResolveBoolean(t *testing.T) {
	f := NewFactSheet()
	f.SetFlag("alert", true)
	f.SetLabel("behaviour", "patrol")

	tests := []struct {
		name    string
		fact    string
		payload types.Payload
		want    bool
		wantErr error
	}{
		{"flag", "alert", nil, true, nil},
		{"missing flag", "asleep", nil, false, eval.ErrUnknownFact},
		{"equals match", "behaviour", types.Payload{"equals": "patrol"}, true, nil},
		{"equals mismatch", "behaviour", types.Payload{"equals": "chase"}, false, nil},
		{"one_of any", "behaviour", types.Payload{"one_of": []any{"chase", "patrol"}}, true, nil},
		{"one_of strings", "behaviour", types.Payload{"one_of": []string{"idle"}}, false, nil},
		{"label missing", "mood", types.Payload{"equals": "calm"}, false, eval.ErrUnknownFact},
		{"unrelated payload reads flag", "alert", types.Payload{"areas": []any{"a"}}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ResolveBoolean(tt.fact, tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFactSheet_ResolveValue(t *testing.T) {
	f := NewFactSheet()
	f.SetValue("HP", 42)

	v, err := f.ResolveValue("HP", nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	_, err = f.ResolveValue("MP", nil)
	assert.ErrorIs(t, err, eval.ErrUnknownFact)
}

func TestFactSheet_AddValueAndUnset(t *testing.T) {
	f := NewFactSheet()
	assert.Equal(t, 5.0, f.AddValue("kills", 5))
	assert.Equal(t, 3.0, f.AddValue("kills", -2))

	assert.True(t, f.Unset("kills"))
	assert.False(t, f.Unset("kills"))
	_, ok := f.Value("kills")
	assert.False(t, ok)
}

func TestFactSheet_SnapshotIsACopy(t *testing.T) {
	f := NewFactSheet()
	f.SetFlag("alert", true)
	f.SetValue("HP", 10)
	f.SetLabel("behaviour", "idle")

	snap := f.Snapshot()
	f.SetValue("HP", 99)
	assert.Equal(t, 10.0, snap.Values["HP"])

	g := NewFactSheet()
	g.SetFlag("stale", true)
	g.Restore(snap)
	assert.Equal(t, []string{"HP", "alert", "behaviour"}, g.Names())
	assert.Equal(t, 3, g.Len())
}

func TestFactSheet_Seed(t *testing.T) {
	f := NewFactSheet()
	require.NoError(t, f.Seed(map[string]any{
		"alert":     false,
		"HP":        100,
		"speed":     2.5,
		"behaviour": "idle",
	}))

	v, _ := f.Value("HP")
	assert.Equal(t, 100.0, v)
	b, ok := f.Flag("alert")
	assert.True(t, ok)
	assert.False(t, b)
	l, _ := f.Label("behaviour")
	assert.Equal(t, "idle", l)

	err := f.Seed(map[string]any{"bad": []int{1}})
	assert.Error(t, err)
}

func TestFactSheet_ConcurrentAccess(t *testing.T) {
	f := NewFactSheet()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.AddValue("n", 1)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.ResolveValue("n", nil)
		}()
	}
	wg.Wait()
	v, _ := f.Value("n")
	assert.Equal(t, 16.0, v)
}

func TestCounting(t *testing.T) {
	f := NewFactSheet()
	f.SetFlag("alert", true)
	f.SetValue("HP", 1)
	c := NewCounting(f)

	_, _ = c.ResolveBoolean("alert", nil)
	_, _ = c.ResolveValue("HP", nil)
	_, _ = c.ResolveValue("HP", nil)

	assert.Equal(t, 1, c.Count("alert"))
	assert.Equal(t, 2, c.Count("HP"))
	assert.Equal(t, 3, c.Total())
	assert.Equal(t, []string{"HP", "alert"}, c.Facts())
	assert.Equal(t, Query{Fact: "alert", Kind: types.AtomBoolean}, c.Queries()[0])

	c.Reset()
	assert.Zero(t, c.Total())
}
