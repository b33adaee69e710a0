package aggregate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet("b", "a", "b")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.True(t, s.Add("c"))
	assert.False(t, s.Add("a"))
	assert.Equal(t, []any{"b", "a", "c"}, s.Values())
}

func TestSet_NotComparableValues(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Add([]int{1, 2}))
	assert.False(t, s.Add([]int{1, 2}))
	assert.True(t, s.Add(map[string]int{"a": 1}))
	assert.False(t, s.Add(map[string]int{"a": 1}))
	assert.True(t, s.Add(nil))
	assert.False(t, s.Add(nil))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []any{[]int{1, 2}, map[string]int{"a": 1}, nil}, s.Values())
}

func TestSet_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(NewSet(1, "x", 1))
	require.NoError(t, err)
	assert.JSONEq(t, `[1, "x"]`, string(b))
}

func TestAccumulators_NilContainer(t *testing.T) {
	assert.Equal(t, []any{"x"}, AsList().Add(nil, "x"))
	assert.Equal(t, []any{"x"}, AsSet().Add(nil, "x").(*Set).Values())
	assert.Equal(t, "x", AsSingle().Add("old", "x"))
	assert.Equal(t, []any{"x"}, AsList().Add("not a list", "x"))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "list", KindList.String())
	assert.Equal(t, "set", KindSet.String())
	assert.Equal(t, "single", KindSingle.String())
	assert.Equal(t, "custom", KindCustom.String())
}

func TestClosedKeys_EvictsOldest(t *testing.T) {
	c := newClosedKeys(2)
	c.add("a")
	c.add("b")
	c.add("c")
	assert.False(t, c.contains("a"))
	assert.True(t, c.contains("b"))
	assert.True(t, c.contains("c"))
	assert.Equal(t, 2, c.len())
	c.clear()
	assert.Equal(t, 0, c.len())
}

func TestRepository(t *testing.T) {
	r := newRepository()
	g := r.getOrCreate("a", time.Now())
	assert.Same(t, g, r.getOrCreate("a", time.Now()))
	assert.Equal(t, 1, r.len())
	assert.Equal(t, []string{"a"}, r.keys())

	assert.False(t, r.remove("a", &group{}))
	assert.True(t, r.remove("a", g))
	_, ok := r.get("a")
	assert.False(t, ok)
	assert.NotSame(t, g, r.getOrCreate("a", time.Now()))
}
