package aggregate

import (
	"encoding/json"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the container an Accumulator merges into.
type Kind int

const (
	KindSingle Kind = iota
	KindList
	KindSet
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindCustom:
		return "custom"
	default:
		return "single"
	}
}

// Accumulator merges a value into a group container.
// Add receives the current container (nil for a new group) and returns the new one.
type Accumulator interface {
	Kind() Kind
	Add(container, value any) any
}

// reversibleAccumulator adds a value and returns a function that restores the
// container passed in, for accumulators that mutate their container in place.
type reversibleAccumulator interface {
	addReversible(container, value any) (any, func() any)
}

func addReversible(a Accumulator, container, value any) (any, func() any) {
	if r, ok := a.(reversibleAccumulator); ok {
		return r.addReversible(container, value)
	}
	return a.Add(container, value), func() any { return container }
}

type listAccumulator struct{}

// AsList returns an accumulator appending values to a []any in merge order.
func AsList() Accumulator { return listAccumulator{} }

func (listAccumulator) Kind() Kind { return KindList }

func (listAccumulator) Add(container, value any) any {
	c, _ := container.([]any)
	return append(c, value)
}

type setAccumulator struct{}

// AsSet returns an accumulator adding values to a *Set. Duplicates are absorbed.
func AsSet() Accumulator { return setAccumulator{} }

func (setAccumulator) Kind() Kind { return KindSet }

func (setAccumulator) Add(container, value any) any {
	c, ok := container.(*Set)
	if !ok || c == nil {
		c = NewSet()
	}
	c.Add(value)
	return c
}

func (setAccumulator) addReversible(container, value any) (any, func() any) {
	c, ok := container.(*Set)
	if !ok || c == nil {
		c = NewSet()
	}
	added := c.Add(value)
	return c, func() any {
		if added {
			c.remove(value)
		}
		return container
	}
}

type singleAccumulator struct{}

// AsSingle returns an accumulator where the last merged value wins.
func AsSingle() Accumulator { return singleAccumulator{} }

func (singleAccumulator) Kind() Kind { return KindSingle }

func (singleAccumulator) Add(_, value any) any { return value }

type customAccumulator[C any] struct {
	newFn func() C
	add   func(C, any) C
}

// AsCustom returns an accumulator over a caller-supplied container type.
// newFn creates the container once per group; add merges one value into it.
// A reverted merge restores the container value passed to add, so containers
// changed in place through a pointer keep the reverted value.
func AsCustom[C any](newFn func() C, add func(C, any) C) Accumulator {
	return customAccumulator[C]{newFn: newFn, add: add}
}

func (customAccumulator[C]) Kind() Kind { return KindCustom }

func (a customAccumulator[C]) Add(container, value any) any {
	c, ok := container.(C)
	if !ok {
		c = a.newFn()
	}
	return a.add(c, value)
}

// Set is an insertion-ordered collection of distinct values.
// Values that are not comparable are deduplicated with reflect.DeepEqual.
type Set struct {
	entries *orderedmap.OrderedMap[any, any]
}

// box keys a non-comparable value by identity.
type box struct{ v any }

// NewSet returns an empty set.
func NewSet(values ...any) *Set {
	s := &Set{entries: orderedmap.New[any, any]()}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s *Set) Add(v any) bool {
	if s.Contains(v) {
		return false
	}
	if hashable(v) {
		s.entries.Set(v, v)
	} else {
		s.entries.Set(&box{v: v}, v)
	}
	return true
}

// Contains reports whether v is in the set.
func (s *Set) Contains(v any) bool {
	if hashable(v) {
		_, ok := s.entries.Get(v)
		return ok
	}
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		if _, boxed := pair.Key.(*box); boxed && reflect.DeepEqual(pair.Value, v) {
			return true
		}
	}
	return false
}

func (s *Set) remove(v any) {
	if hashable(v) {
		s.entries.Delete(v)
		return
	}
	for pair := s.entries.Newest(); pair != nil; pair = pair.Prev() {
		if _, boxed := pair.Key.(*box); boxed && reflect.DeepEqual(pair.Value, v) {
			s.entries.Delete(pair.Key)
			return
		}
	}
}

// Len returns the number of distinct values.
func (s *Set) Len() int {
	return s.entries.Len()
}

// Values returns the values in insertion order.
func (s *Set) Values() []any {
	out := make([]any, 0, s.entries.Len())
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// MarshalJSON encodes the set as a JSON array.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func hashable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).Comparable()
}
