package expression

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsml/goaggregate/message"
)

func newExchange() *message.Exchange {
	ex := message.New("AGGREGATE1", message.Headers{"orderId": "o-1", "batchSize": "3"})
	ex.Properties["tenant"] = "acme"
	return ex
}

func TestBuiltins(t *testing.T) {
	ex := newExchange()

	tests := []struct {
		name string
		expr Expression
		want any
	}{
		{"body", Body(), "AGGREGATE1"},
		{"header", Header("orderId"), "o-1"},
		{"missing header", Header("nope"), nil},
		{"property", Property("tenant"), "acme"},
		{"constant", Constant(42), 42},
		{"id", ExchangeID(), ex.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.expr.Evaluate(ex)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	ex := newExchange()

	s, err := String(Header("orderId"), ex)
	require.NoError(t, err)
	assert.Equal(t, "o-1", s)

	s, err = String(Header("nope"), ex)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = String(Constant(7), ex)
	require.NoError(t, err)
	assert.Equal(t, "7", s)

	s, err = String(Constant([]byte("raw")), ex)
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	boom := errors.New("boom")
	_, err = String(Func(func(*message.Exchange) (any, error) { return nil, boom }), ex)
	assert.ErrorIs(t, err, boom)
}

func TestCombinators(t *testing.T) {
	ex := newExchange()
	yes := PredicateFunc(func(*message.Exchange) (bool, error) { return true, nil })
	no := PredicateFunc(func(*message.Exchange) (bool, error) { return false, nil })
	boom := errors.New("boom")
	fail := PredicateFunc(func(*message.Exchange) (bool, error) { return false, boom })

	check := func(p Predicate, want bool) {
		t.Helper()
		got, err := p.Matches(ex)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	check(Not(no), true)
	check(Not(yes), false)
	check(And(yes, yes), true)
	check(And(yes, no), false)
	check(And(), true)
	check(Or(no, yes), true)
	check(Or(no, no), false)
	check(Or(), false)
	check(And(no, fail), false)
	check(Or(yes, fail), true)

	_, err := And(yes, fail).Matches(ex)
	assert.ErrorIs(t, err, boom)
	_, err = Or(no, fail).Matches(ex)
	assert.ErrorIs(t, err, boom)
	ok, err := Not(fail).Matches(ex)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestMatches_NonBoolean(t *testing.T) {
	_, err := Matches(Body()).Matches(newExchange())
	assert.ErrorIs(t, err, ErrNotBoolean)

	ok, err := Matches(Constant(true)).Matches(newExchange())
	require.NoError(t, err)
	assert.True(t, ok)
}
