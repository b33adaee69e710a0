package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsml/goaggregate/message"
)

func TestSimple_Evaluate(t *testing.T) {
	ex := newExchange()

	tests := []struct {
		source string
		want   any
	}{
		{`headers.orderId`, "o-1"},
		{`properties.tenant`, "acme"},
		{`body`, "AGGREGATE1"},
		{`int(headers.batchSize) + 1`, 4},
		{`id == ""`, false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			p, err := Simple(tt.source)
			require.NoError(t, err)
			got, err := p.Evaluate(ex)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, p.String())
		})
	}
}

func TestSimple_Predicate(t *testing.T) {
	p := MustSimple(`body contains "AGGREGATE"`)

	ok, err := p.Matches(newExchange())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Matches(message.New("DISCARD", nil))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = MustSimple(`headers.orderId`).Matches(newExchange())
	assert.ErrorIs(t, err, ErrNotBoolean)
}

func TestSimple_MatchesIsPassthrough(t *testing.T) {
	p := MustSimple(`true`)
	assert.Same(t, p, Matches(p))
}

func TestSimple_CompileError(t *testing.T) {
	_, err := Simple(`headers.`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustSimple(`(`) })
}

func TestSimple_RuntimeError(t *testing.T) {
	p := MustSimple(`int(body)`)
	_, err := p.Evaluate(message.New("not a number", nil))
	assert.ErrorIs(t, err, ErrEvaluation)
}
