package aggregate

import (
	"errors"
	"reflect"
	"time"

	"github.com/fxsml/goaggregate/convert"
	"github.com/fxsml/goaggregate/expression"
	"github.com/fxsml/goaggregate/message"
)

// Strategy merges units of work into the result exchange of their group.
type Strategy interface {
	// Prepare creates the result exchange of a new group from its first unit.
	Prepare(first *message.Exchange) *message.Exchange
	// Aggregate merges in into result. It reports whether in contributed to the
	// group; units that did not contribute do not count toward completion size.
	// Aggregate must not modify result when it returns an error.
	Aggregate(result, in *message.Exchange) (bool, error)
}

// Reversible is implemented by strategies that can undo a merge. The
// aggregator reverts a merge when the completion check that follows it fails.
// For other strategies the aggregator restores a copy of the result taken
// before the merge; a body mutated in place is not restored.
type Reversible interface {
	// AggregateReversible merges like Aggregate and, when merged, returns a
	// function restoring result to its state before the merge.
	AggregateReversible(result, in *message.Exchange) (revert func(), merged bool, err error)
}

// CompletionAware is implemented by strategies and observers notified when a
// group completes by any cause other than timeout.
type CompletionAware interface {
	OnCompletion(result *message.Exchange)
}

// TimeoutAware is implemented by strategies and observers notified when a
// group completes by timeout. index is the received count minus one, total the
// expected size or -1.
type TimeoutAware interface {
	Timeout(result *message.Exchange, index, total int, timeout time.Duration)
}

// CompletionFunc adapts a function to CompletionAware.
type CompletionFunc func(result *message.Exchange)

func (f CompletionFunc) OnCompletion(result *message.Exchange) { f(result) }

// TimeoutFunc adapts a function to TimeoutAware.
type TimeoutFunc func(result *message.Exchange, index, total int, timeout time.Duration)

func (f TimeoutFunc) Timeout(result *message.Exchange, index, total int, timeout time.Duration) {
	f(result, index, total, timeout)
}

// FlexibleStrategy is a configurable Strategy.
//
// For every unit it evaluates the condition, picks a value, converts it to the
// target type, and accumulates it into the placement target of the result.
// The zero configuration picks the body and keeps the last value in the body.
//
//	s := aggregate.Flexible().
//		Condition(expression.MustSimple(`body contains "AGGREGATE"`)).
//		AccumulateIn(aggregate.AsList()).
//		StoreIn(aggregate.InHeader("items"))
//
// FlexibleStrategy must be fully configured before the aggregator starts.
type FlexibleStrategy struct {
	pick               expression.Expression
	condition          expression.Predicate
	castAs             reflect.Type
	converter          convert.Converter
	accumulator        Accumulator
	placement          Placement
	storeNulls         bool
	ignoreInvalidCasts bool
	completionAware    CompletionAware
	timeoutAware       TimeoutAware
}

// Flexible returns a FlexibleStrategy with defaults.
func Flexible() *FlexibleStrategy {
	return &FlexibleStrategy{
		pick:        expression.Body(),
		converter:   convert.Default,
		accumulator: AsSingle(),
		placement:   InBody(),
	}
}

// Pick sets the expression that selects the value to accumulate.
func (s *FlexibleStrategy) Pick(e expression.Expression) *FlexibleStrategy {
	s.pick = e
	return s
}

// Condition sets the predicate a unit must satisfy to be aggregated.
func (s *FlexibleStrategy) Condition(p expression.Predicate) *FlexibleStrategy {
	s.condition = p
	return s
}

// CastAs converts picked values to t before accumulating.
func (s *FlexibleStrategy) CastAs(t reflect.Type) *FlexibleStrategy {
	s.castAs = t
	return s
}

// Converter replaces the converter used by CastAs.
func (s *FlexibleStrategy) Converter(c convert.Converter) *FlexibleStrategy {
	s.converter = c
	return s
}

// AccumulateIn sets the accumulator.
func (s *FlexibleStrategy) AccumulateIn(a Accumulator) *FlexibleStrategy {
	s.accumulator = a
	return s
}

// StoreIn sets where the accumulated value is written.
func (s *FlexibleStrategy) StoreIn(p Placement) *FlexibleStrategy {
	s.placement = p
	return s
}

// StoreNulls accumulates nil picked values as explicit nil entries.
func (s *FlexibleStrategy) StoreNulls() *FlexibleStrategy {
	s.storeNulls = true
	return s
}

// IgnoreInvalidCasts drops units whose value fails conversion instead of failing them.
func (s *FlexibleStrategy) IgnoreInvalidCasts() *FlexibleStrategy {
	s.ignoreInvalidCasts = true
	return s
}

// CompletionAware registers an observer for non-timeout completions.
func (s *FlexibleStrategy) CompletionAware(o CompletionAware) *FlexibleStrategy {
	s.completionAware = o
	return s
}

// TimeoutAware registers an observer for timeout completions.
func (s *FlexibleStrategy) TimeoutAware(o TimeoutAware) *FlexibleStrategy {
	s.timeoutAware = o
	return s
}

// Kind returns the accumulator kind.
func (s *FlexibleStrategy) Kind() Kind {
	return s.accumulator.Kind()
}

// Prepare returns a correlated copy of first with the placement target cleared.
func (s *FlexibleStrategy) Prepare(first *message.Exchange) *message.Exchange {
	result := first.CorrelatedCopy()
	s.placement.Reset(result)
	return result
}

// Aggregate implements Strategy.
func (s *FlexibleStrategy) Aggregate(result, in *message.Exchange) (bool, error) {
	_, merged, err := s.AggregateReversible(result, in)
	return merged, err
}

// AggregateReversible implements Reversible.
func (s *FlexibleStrategy) AggregateReversible(result, in *message.Exchange) (func(), bool, error) {
	v, ok, err := s.value(in)
	if err != nil || !ok {
		return nil, false, err
	}

	prev := s.placement.Get(result)
	next, undo := addReversible(s.accumulator, prev, v)
	s.placement.Set(result, next)
	return func() {
		if c := undo(); c != nil {
			s.placement.Set(result, c)
		} else {
			s.placement.Reset(result)
		}
	}, true, nil
}

// value evaluates condition, pick and conversion for in. It reports false
// when in does not contribute.
func (s *FlexibleStrategy) value(in *message.Exchange) (any, bool, error) {
	if s.condition != nil {
		ok, err := s.condition.Matches(in)
		if err != nil || !ok {
			return nil, false, err
		}
	}

	v, err := s.pick.Evaluate(in)
	if err != nil {
		return nil, false, err
	}

	if v != nil && s.castAs != nil {
		converted, err := s.converter.Convert(v, s.castAs)
		if err != nil {
			if s.ignoreInvalidCasts {
				return nil, false, nil
			}
			if !errors.Is(err, convert.ErrInvalidConversion) {
				err = &convert.ConversionError{Value: v, Target: s.castAs, Err: err}
			}
			return nil, false, err
		}
		v = converted
	}

	if v == nil && !s.storeNulls {
		return nil, false, nil
	}
	return v, true, nil
}

// OnCompletion forwards to the registered CompletionAware observer.
func (s *FlexibleStrategy) OnCompletion(result *message.Exchange) {
	if s.completionAware != nil {
		s.completionAware.OnCompletion(result)
	}
}

// Timeout forwards to the registered TimeoutAware observer.
func (s *FlexibleStrategy) Timeout(result *message.Exchange, index, total int, timeout time.Duration) {
	if s.timeoutAware != nil {
		s.timeoutAware.Timeout(result, index, total, timeout)
	}
}
