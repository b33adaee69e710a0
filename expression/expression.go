package expression

import (
	"errors"
	"fmt"

	"github.com/fxsml/goaggregate/message"
)

var (
	// ErrNotBoolean is returned when a predicate evaluates to a non-boolean value.
	ErrNotBoolean = errors.New("expression: result is not a boolean")

	// ErrEvaluation is the base error for evaluation failures.
	ErrEvaluation = errors.New("expression: evaluation failed")
)

// Expression computes a value from an exchange.
// Implementations must be deterministic for equal exchanges and free of side effects.
type Expression interface {
	Evaluate(ex *message.Exchange) (any, error)
}

// Predicate evaluates a boolean condition against an exchange.
type Predicate interface {
	Matches(ex *message.Exchange) (bool, error)
}

// Func adapts a function to an Expression.
type Func func(ex *message.Exchange) (any, error)

// Evaluate calls f(ex).
func (f Func) Evaluate(ex *message.Exchange) (any, error) {
	return f(ex)
}

// PredicateFunc adapts a function to a Predicate.
type PredicateFunc func(ex *message.Exchange) (bool, error)

// Matches calls f(ex).
func (f PredicateFunc) Matches(ex *message.Exchange) (bool, error) {
	return f(ex)
}

// Body returns an expression that yields the exchange body.
func Body() Expression {
	return Func(func(ex *message.Exchange) (any, error) {
		return ex.Body, nil
	})
}

// Header returns an expression that yields the named header, or nil when absent.
func Header(name string) Expression {
	return Func(func(ex *message.Exchange) (any, error) {
		return ex.Headers[name], nil
	})
}

// Property returns an expression that yields the named property, or nil when absent.
func Property(name string) Expression {
	return Func(func(ex *message.Exchange) (any, error) {
		return ex.Properties[name], nil
	})
}

// Constant returns an expression that always yields v.
func Constant(v any) Expression {
	return Func(func(*message.Exchange) (any, error) {
		return v, nil
	})
}

// ExchangeID returns an expression that yields the exchange ID.
func ExchangeID() Expression {
	return Func(func(ex *message.Exchange) (any, error) {
		return ex.ID, nil
	})
}

// Matches returns a predicate that is true when e evaluates to true.
// A non-boolean result is reported as ErrNotBoolean.
func Matches(e Expression) Predicate {
	if p, ok := e.(Predicate); ok {
		return p
	}
	return PredicateFunc(func(ex *message.Exchange) (bool, error) {
		v, err := e.Evaluate(ex)
		if err != nil {
			return false, err
		}
		return asBool(v)
	})
}

// Not negates p.
func Not(p Predicate) Predicate {
	return PredicateFunc(func(ex *message.Exchange) (bool, error) {
		ok, err := p.Matches(ex)
		return !ok && err == nil, err
	})
}

// And is true when all predicates match. Evaluation stops at the first false or error.
func And(ps ...Predicate) Predicate {
	return PredicateFunc(func(ex *message.Exchange) (bool, error) {
		for _, p := range ps {
			ok, err := p.Matches(ex)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Or is true when any predicate matches. Evaluation stops at the first true or error.
func Or(ps ...Predicate) Predicate {
	return PredicateFunc(func(ex *message.Exchange) (bool, error) {
		for _, p := range ps {
			ok, err := p.Matches(ex)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// String evaluates e and formats the result as a string.
// Nil results yield the empty string.
func String(e Expression, ex *message.Exchange) (string, error) {
	v, err := e.Evaluate(ex)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, v)
	}
	return b, nil
}
