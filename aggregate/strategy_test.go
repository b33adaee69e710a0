package aggregate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsml/goaggregate/convert"
	"github.com/fxsml/goaggregate/expression"
	"github.com/fxsml/goaggregate/message"
)

func aggregateAll(t *testing.T, s *FlexibleStrategy, bodies ...any) (*message.Exchange, int) {
	t.Helper()
	var result *message.Exchange
	merged := 0
	for _, b := range bodies {
		in := message.New(b, message.Headers{"value": b})
		if result == nil {
			result = s.Prepare(in)
		}
		ok, err := s.Aggregate(result, in)
		require.NoError(t, err)
		if ok {
			merged++
		}
	}
	return result, merged
}

func TestFlexible_Defaults(t *testing.T) {
	result, merged := aggregateAll(t, Flexible(), "a", "b", "c")
	assert.Equal(t, 3, merged)
	assert.Equal(t, "c", result.Body)
	assert.Equal(t, KindSingle, Flexible().Kind())
}

func TestFlexible_Accumulators(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		result, _ := aggregateAll(t, Flexible().AccumulateIn(AsList()), "a", "b", "a")
		assert.Equal(t, []any{"a", "b", "a"}, result.Body)
	})
	t.Run("set", func(t *testing.T) {
		result, merged := aggregateAll(t, Flexible().AccumulateIn(AsSet()), "a", "b", "a", "b", "c")
		assert.Equal(t, 5, merged)
		set, ok := result.Body.(*Set)
		require.True(t, ok)
		assert.Equal(t, []any{"a", "b", "c"}, set.Values())
	})
	t.Run("custom", func(t *testing.T) {
		counts := AsCustom(
			func() map[string]int { return map[string]int{} },
			func(c map[string]int, v any) map[string]int {
				c[v.(string)]++
				return c
			})
		result, _ := aggregateAll(t, Flexible().AccumulateIn(counts), "a", "b", "a")
		assert.Equal(t, map[string]int{"a": 2, "b": 1}, result.Body)
		assert.Equal(t, KindCustom, counts.Kind())
	})
}

func TestFlexible_Condition(t *testing.T) {
	s := Flexible().
		Condition(expression.MustSimple(`body contains "AGGREGATE"`)).
		AccumulateIn(AsList())

	result, merged := aggregateAll(t, s, "AGGREGATE1", "DISCARD", "AGGREGATE2")
	assert.Equal(t, 2, merged)
	assert.Equal(t, []any{"AGGREGATE1", "AGGREGATE2"}, result.Body)
}

func TestFlexible_ConditionError(t *testing.T) {
	s := Flexible().Condition(expression.MustSimple(`body`))
	in := message.New("x", nil)
	result := s.Prepare(in)

	ok, err := s.Aggregate(result, in)
	assert.False(t, ok)
	assert.ErrorIs(t, err, expression.ErrNotBoolean)
	assert.Nil(t, result.Body)
}

func TestFlexible_Pick(t *testing.T) {
	s := Flexible().Pick(expression.Header("value")).AccumulateIn(AsList())
	result, _ := aggregateAll(t, s, 1, 2)
	assert.Equal(t, []any{1, 2}, result.Body)
}

func TestFlexible_CastAs(t *testing.T) {
	s := Flexible().CastAs(reflect.TypeFor[int]()).AccumulateIn(AsList())
	result, _ := aggregateAll(t, s, "1", 2.0, "3")
	assert.Equal(t, []any{1, 2, 3}, result.Body)
}

func TestFlexible_InvalidCast(t *testing.T) {
	s := Flexible().CastAs(reflect.TypeFor[int]()).AccumulateIn(AsList())
	first := message.New("1", nil)
	result := s.Prepare(first)
	_, err := s.Aggregate(result, first)
	require.NoError(t, err)

	ok, err := s.Aggregate(result, message.New("abc", nil))
	assert.False(t, ok)
	assert.ErrorIs(t, err, convert.ErrInvalidConversion)
	assert.Equal(t, []any{1}, result.Body, "failed merge must not modify the result")
}

func TestFlexible_IgnoreInvalidCasts(t *testing.T) {
	s := Flexible().CastAs(reflect.TypeFor[int]()).IgnoreInvalidCasts().StoreNulls().AccumulateIn(AsList())
	result, merged := aggregateAll(t, s, "1", "abc", "2")
	assert.Equal(t, 2, merged)
	assert.Equal(t, []any{1, 2}, result.Body)
}

func TestFlexible_CustomConverterErrorIsConversionError(t *testing.T) {
	boom := errors.New("boom")
	s := Flexible().
		CastAs(reflect.TypeFor[string]()).
		Converter(convert.ConverterFunc(func(any, reflect.Type) (any, error) { return nil, boom }))

	in := message.New(1, nil)
	_, err := s.Aggregate(s.Prepare(in), in)
	assert.ErrorIs(t, err, convert.ErrInvalidConversion)
	assert.ErrorIs(t, err, boom)
}

func TestFlexible_StoreNulls(t *testing.T) {
	pickMissing := expression.Header("missing")

	result, merged := aggregateAll(t, Flexible().Pick(pickMissing).AccumulateIn(AsList()).StoreNulls(), "a", "b")
	assert.Equal(t, 2, merged)
	assert.Equal(t, []any{nil, nil}, result.Body)

	result, merged = aggregateAll(t, Flexible().Pick(pickMissing).AccumulateIn(AsList()), "a", "b")
	assert.Equal(t, 0, merged)
	assert.Nil(t, result.Body)
}

func TestFlexible_Placement(t *testing.T) {
	t.Run("property", func(t *testing.T) {
		s := Flexible().AccumulateIn(AsList()).StoreIn(InProperty("items"))
		result, _ := aggregateAll(t, s, "a", "b")
		assert.Equal(t, []any{"a", "b"}, result.Properties["items"])
		assert.Equal(t, "a", result.Body, "body keeps the first unit's payload")
	})
	t.Run("header", func(t *testing.T) {
		s := Flexible().AccumulateIn(AsList()).StoreIn(InHeader("items"))
		result, _ := aggregateAll(t, s, "a", "b")
		assert.Equal(t, []any{"a", "b"}, result.Headers["items"])
	})
	t.Run("reset on prepare", func(t *testing.T) {
		s := Flexible().StoreIn(InHeader("items"))
		in := message.New("x", message.Headers{"items": "stale"})
		result := s.Prepare(in)
		_, ok := result.Headers["items"]
		assert.False(t, ok)
		assert.Equal(t, "stale", in.Headers["items"], "prepare must not modify the unit")
	})
	assert.Equal(t, "body", InBody().String())
	assert.Equal(t, "property:items", InProperty("items").String())
	assert.Equal(t, "header:items", InHeader("items").String())
}

func TestFlexible_PrepareCorrelates(t *testing.T) {
	in := message.New("x", nil)
	result := Flexible().Prepare(in)
	assert.NotEqual(t, in.ID, result.ID)
	id, ok := result.Properties.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, in.ID, id)
}

func TestFlexible_Observers(t *testing.T) {
	var completed, timedOut int
	s := Flexible().
		CompletionAware(CompletionFunc(func(*message.Exchange) { completed++ })).
		TimeoutAware(TimeoutFunc(func(*message.Exchange, int, int, time.Duration) { timedOut++ }))

	s.OnCompletion(nil)
	s.Timeout(nil, 0, 1, 0)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, timedOut)

	// unregistered observers are no-ops
	Flexible().OnCompletion(nil)
	Flexible().Timeout(nil, 0, 1, 0)
}

func TestFlexible_AggregateReversible(t *testing.T) {
	tests := []struct {
		name string
		s    *FlexibleStrategy
		get  func(*message.Exchange) any
		want any
	}{
		{"list", Flexible().AccumulateIn(AsList()), func(ex *message.Exchange) any { return ex.Body }, []any{"a"}},
		{"single", Flexible(), func(ex *message.Exchange) any { return ex.Body }, "a"},
		{"set", Flexible().AccumulateIn(AsSet()), func(ex *message.Exchange) any { return ex.Body.(*Set).Values() }, []any{"a"}},
		{"header", Flexible().AccumulateIn(AsList()).StoreIn(InHeader("items")),
			func(ex *message.Exchange) any { return ex.Headers["items"] }, []any{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := message.New("a", nil)
			result := tt.s.Prepare(first)
			_, err := tt.s.Aggregate(result, first)
			require.NoError(t, err)

			revert, merged, err := tt.s.AggregateReversible(result, message.New("b", nil))
			require.NoError(t, err)
			require.True(t, merged)
			revert()
			assert.Equal(t, tt.want, tt.get(result))
		})
	}
}

func TestFlexible_AggregateReversible_FirstValue(t *testing.T) {
	s := Flexible().AccumulateIn(AsSet()).StoreIn(InProperty("items"))
	in := message.New("a", nil)
	result := s.Prepare(in)

	revert, merged, err := s.AggregateReversible(result, in)
	require.NoError(t, err)
	require.True(t, merged)
	revert()
	assert.NotContains(t, result.Properties, "items")

	revert, merged, err = s.AggregateReversible(result, message.New(nil, nil))
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Nil(t, revert)
}

func TestSet_DuplicateRevertKeepsValue(t *testing.T) {
	acc := AsSet()
	c := acc.Add(nil, "a")
	c, undo := addReversible(acc, c, "a")
	assert.Equal(t, c, undo())
	assert.Equal(t, []any{"a"}, c.(*Set).Values())

	c, undo = addReversible(acc, c, []int{1})
	undo()
	assert.Equal(t, []any{"a"}, c.(*Set).Values())
}
