// Package convert converts picked values to a target element type.
//
// Conversion is weakly typed: strings parse into numbers and booleans, numbers
// widen and narrow, and maps decode into structs. It is backed by mapstructure.
// Conversions that would lose the value fail: empty strings to numbers or
// booleans, fractional floats to integers, and values out of the target range.
package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidConversion reports a value that cannot be converted to the target type.
var ErrInvalidConversion = errors.New("convert: invalid conversion")

// ConversionError describes a failed conversion.
type ConversionError struct {
	Value  any
	Target reflect.Type
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert: cannot convert %T to %s: %v", e.Value, e.Target, e.Err)
}

// Unwrap returns ErrInvalidConversion and the underlying cause.
func (e *ConversionError) Unwrap() []error {
	return []error{ErrInvalidConversion, e.Err}
}

// Converter converts a value to the target type.
type Converter interface {
	Convert(value any, target reflect.Type) (any, error)
}

// ConverterFunc adapts a function to a Converter.
type ConverterFunc func(value any, target reflect.Type) (any, error)

// Convert calls f(value, target).
func (f ConverterFunc) Convert(value any, target reflect.Type) (any, error) {
	return f(value, target)
}

// Default is the weakly typed mapstructure converter.
var Default Converter = ConverterFunc(Weak)

// Weak converts value to target using weak decoding.
// A nil value converts to nil. Values already of the target type are returned unchanged.
func Weak(value any, target reflect.Type) (any, error) {
	if value == nil || target == nil {
		return value, nil
	}
	if reflect.TypeOf(value) == target {
		return value, nil
	}
	out := reflect.New(target)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out.Interface(),
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
			lossless,
		),
	})
	if err != nil {
		return nil, &ConversionError{Value: value, Target: target, Err: err}
	}
	if err := dec.Decode(value); err != nil {
		return nil, &ConversionError{Value: value, Target: target, Err: err}
	}
	return out.Elem().Interface(), nil
}

var (
	errEmpty    = errors.New("empty string")
	errFraction = errors.New("fractional value")
	errRange    = errors.New("value out of range")
)

// lossless rejects weak conversions mapstructure would otherwise accept by
// zeroing, truncating or wrapping the value.
func lossless(from, to reflect.Type, data any) (any, error) {
	if data == nil {
		return data, nil
	}
	src := reflect.ValueOf(data)
	dst := reflect.New(to).Elem()
	fk, tk := from.Kind(), to.Kind()

	if fk == reflect.String && (isNumber(tk) || tk == reflect.Bool) && strings.TrimSpace(src.String()) == "" {
		return nil, errEmpty
	}

	switch {
	case isInt(tk):
		switch {
		case isInt(fk):
			if dst.OverflowInt(src.Int()) {
				return nil, errRange
			}
		case isUint(fk):
			if src.Uint() > math.MaxInt64 || dst.OverflowInt(int64(src.Uint())) {
				return nil, errRange
			}
		case isFloat(fk):
			f := src.Float()
			if f != math.Trunc(f) {
				return nil, errFraction
			}
			if f < math.MinInt64 || f >= math.MaxInt64 || dst.OverflowInt(int64(f)) {
				return nil, errRange
			}
		}
	case isUint(tk):
		switch {
		case isInt(fk):
			if src.Int() < 0 || dst.OverflowUint(uint64(src.Int())) {
				return nil, errRange
			}
		case isUint(fk):
			if dst.OverflowUint(src.Uint()) {
				return nil, errRange
			}
		case isFloat(fk):
			f := src.Float()
			if f != math.Trunc(f) {
				return nil, errFraction
			}
			if f < 0 || f >= math.MaxUint64 || dst.OverflowUint(uint64(f)) {
				return nil, errRange
			}
		}
	case isFloat(tk) && isFloat(fk):
		if f := src.Float(); !math.IsInf(f, 0) && dst.OverflowFloat(f) {
			return nil, errRange
		}
	}
	return data, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}

// To converts value to T using the Default converter.
func To[T any](value any) (T, error) {
	var zero T
	v, err := Default.Convert(value, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}
