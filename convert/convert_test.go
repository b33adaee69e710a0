package convert

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    string `mapstructure:"id"`
	Total int    `mapstructure:"total"`
}

func TestWeak(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
	}{
		{"string to int", "42", reflect.TypeFor[int](), 42},
		{"float to int", 3.0, reflect.TypeFor[int](), 3},
		{"int to string", 7, reflect.TypeFor[string](), "7"},
		{"string to bool", "true", reflect.TypeFor[bool](), true},
		{"same type", "x", reflect.TypeFor[string](), "x"},
		{"duration", "1s", reflect.TypeFor[time.Duration](), time.Second},
		{"map to struct", map[string]any{"id": "o-1", "total": "9"}, reflect.TypeFor[order](), order{ID: "o-1", Total: 9}},
		{"nil", nil, reflect.TypeFor[int](), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Weak(tt.value, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeak_Invalid(t *testing.T) {
	_, err := Weak("abc", reflect.TypeFor[int]())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConversion)

	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "abc", ce.Value)
	assert.Equal(t, reflect.TypeFor[int](), ce.Target)
}

func TestWeak_Lossy(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target reflect.Type
	}{
		{"empty string to int", "", reflect.TypeFor[int]()},
		{"blank string to float", "  ", reflect.TypeFor[float64]()},
		{"empty string to bool", "", reflect.TypeFor[bool]()},
		{"int overflows int8", 300, reflect.TypeFor[int8]()},
		{"negative int to uint", -1, reflect.TypeFor[uint]()},
		{"uint overflows int64", uint64(math.MaxUint64), reflect.TypeFor[int64]()},
		{"fraction to int", 1.9, reflect.TypeFor[int]()},
		{"fraction to uint", 0.5, reflect.TypeFor[uint8]()},
		{"float overflows int32", 1e12, reflect.TypeFor[int32]()},
		{"float64 overflows float32", 1e300, reflect.TypeFor[float32]()},
		{"string overflows int8", "300", reflect.TypeFor[int8]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Weak(tt.value, tt.target)
			assert.ErrorIs(t, err, ErrInvalidConversion, "got %v", got)
		})
	}
}

func TestWeak_InRange(t *testing.T) {
	got, err := Weak(127, reflect.TypeFor[int8]())
	require.NoError(t, err)
	assert.Equal(t, int8(127), got)

	got, err = Weak(255.0, reflect.TypeFor[uint8]())
	require.NoError(t, err)
	assert.Equal(t, uint8(255), got)

	got, err = Weak("", reflect.TypeFor[string]())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestTo(t *testing.T) {
	n, err := To[int64]("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	s, err := To[string](nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = To[int]([]string{"a"})
	assert.ErrorIs(t, err, ErrInvalidConversion)
}
