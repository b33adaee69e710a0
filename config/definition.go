package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/expression"
)

// ErrInvalidDefinition is returned for definitions that cannot be compiled.
var ErrInvalidDefinition = errors.New("config: invalid definition")

// File is the root of an aggregation definition file.
//
//	aggregations:
//	  - name: orders
//	    input: orders.lines
//	    output: orders.complete
//	    correlation: headers.orderId
//	    strategy:
//	      pick: body.amount
//	      castAs: float
//	      accumulate: list
//	    completion:
//	      size: 10
//	      timeout: 2s
type File struct {
	Aggregations []Definition `yaml:"aggregations"`
}

// Definition describes one aggregation. Expressions are Simple language sources.
type Definition struct {
	Name string `yaml:"name"`
	// Input and Output are transport addresses: NATS subjects, AMQP routing
	// keys, Kafka topics, or an HTTP path and target URL.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// TimeoutOutput receives groups completed by timeout. Empty sends them to Output.
	TimeoutOutput string `yaml:"timeoutOutput"`
	// Group shares the input between instances: a NATS queue group, an AMQP
	// queue name or a Kafka consumer group.
	Group string `yaml:"group"`

	Correlation string `yaml:"correlation"`
	// SingleGroup allows an empty Correlation; all units join one group.
	SingleGroup                  bool `yaml:"singleGroup"`
	IgnoreInvalidCorrelationKeys bool `yaml:"ignoreInvalidCorrelationKeys"`
	CloseCorrelationKeys         int  `yaml:"closeCorrelationKeys"`

	Strategy   StrategyDefinition   `yaml:"strategy"`
	Completion CompletionDefinition `yaml:"completion"`

	Concurrency int `yaml:"concurrency"`
}

// StrategyDefinition configures the flexible aggregation strategy.
type StrategyDefinition struct {
	Pick      string `yaml:"pick"`
	Condition string `yaml:"condition"`
	// CastAs is one of string, int, int64, float, bool, duration, time.
	CastAs             string `yaml:"castAs"`
	IgnoreInvalidCasts bool   `yaml:"ignoreInvalidCasts"`
	StoreNulls         bool   `yaml:"storeNulls"`
	// Accumulate is one of single, list, set. Default single.
	Accumulate string `yaml:"accumulate"`
	// StoreIn is body, property:<name> or header:<name>. Default body.
	StoreIn string `yaml:"storeIn"`
}

// CompletionDefinition configures when groups complete.
type CompletionDefinition struct {
	Size                        int           `yaml:"size"`
	SizeExpression              string        `yaml:"sizeExpression"`
	Predicate                   string        `yaml:"predicate"`
	Timeout                     time.Duration `yaml:"timeout"`
	TimeoutExpression           string        `yaml:"timeoutExpression"`
	TimeoutFrom                 string        `yaml:"timeoutFrom"`
	Interval                    time.Duration `yaml:"interval"`
	DiscardOnTimeout            bool          `yaml:"discardOnTimeout"`
	DiscardOnAggregationFailure bool          `yaml:"discardOnAggregationFailure"`
	CompleteAllOnStop           bool          `yaml:"completeAllOnStop"`
	// EagerCheck evaluates predicate and sizeExpression against the incoming unit.
	EagerCheck bool `yaml:"eagerCheck"`
}

var castTypes = map[string]reflect.Type{
	"string":   reflect.TypeFor[string](),
	"int":      reflect.TypeFor[int](),
	"int64":    reflect.TypeFor[int64](),
	"float":    reflect.TypeFor[float64](),
	"bool":     reflect.TypeFor[bool](),
	"duration": reflect.TypeFor[time.Duration](),
	"time":     reflect.TypeFor[time.Time](),
}

// ReadFile reads and parses the definition file at path.
func ReadFile(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a definition file. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Aggregations))
	for i, d := range f.Aggregations {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: aggregation %d: name is required", ErrInvalidDefinition, i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: duplicate aggregation %q", ErrInvalidDefinition, d.Name)
		}
		seen[d.Name] = true
	}
	return &f, nil
}

// Lookup returns the definition with the given name.
func (f *File) Lookup(name string) (Definition, bool) {
	for _, d := range f.Aggregations {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Compile builds an aggregate.Config from d and overlays environment variables
// for the stage d.Name using l. Output and Logger are left unset.
func (d Definition) Compile(l Loader) (aggregate.Config, error) {
	cfg, err := d.compile()
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Name, err)
	}
	if err := l.Load(d.Name, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (d Definition) compile() (aggregate.Config, error) {
	var cfg aggregate.Config

	if d.Correlation == "" && !d.SingleGroup {
		return cfg, errors.New("correlation is required unless singleGroup is set")
	}
	if d.Correlation != "" {
		e, err := compile("correlation", d.Correlation)
		if err != nil {
			return cfg, err
		}
		cfg.Correlation = e
	}

	strategy, err := d.Strategy.compile()
	if err != nil {
		return cfg, err
	}
	cfg.Strategy = strategy

	c := d.Completion
	cfg.IgnoreInvalidCorrelationKeys = d.IgnoreInvalidCorrelationKeys
	cfg.CloseCorrelationKeyOnCompletion = d.CloseCorrelationKeys
	cfg.CompletionSize = c.Size
	cfg.CompletionTimeout = c.Timeout
	cfg.CompletionInterval = c.Interval
	cfg.DiscardOnCompletionTimeout = c.DiscardOnTimeout
	cfg.DiscardOnAggregationFailure = c.DiscardOnAggregationFailure
	cfg.CompleteAllOnStop = c.CompleteAllOnStop
	cfg.EagerCheckCompletion = c.EagerCheck
	if err := cfg.TimeoutFrom.UnmarshalText([]byte(c.TimeoutFrom)); err != nil {
		return cfg, err
	}

	if c.SizeExpression != "" {
		if cfg.CompletionSizeExpression, err = compile("completion.sizeExpression", c.SizeExpression); err != nil {
			return cfg, err
		}
	}
	if c.Predicate != "" {
		if cfg.CompletionPredicate, err = compile("completion.predicate", c.Predicate); err != nil {
			return cfg, err
		}
	}
	if c.TimeoutExpression != "" {
		if cfg.CompletionTimeoutExpression, err = compile("completion.timeoutExpression", c.TimeoutExpression); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (s StrategyDefinition) compile() (*aggregate.FlexibleStrategy, error) {
	strategy := aggregate.Flexible()

	if s.Pick != "" {
		e, err := compile("strategy.pick", s.Pick)
		if err != nil {
			return nil, err
		}
		strategy.Pick(e)
	}
	if s.Condition != "" {
		p, err := compile("strategy.condition", s.Condition)
		if err != nil {
			return nil, err
		}
		strategy.Condition(p)
	}
	if s.CastAs != "" {
		t, ok := castTypes[s.CastAs]
		if !ok {
			return nil, fmt.Errorf("strategy.castAs: unknown type %q", s.CastAs)
		}
		strategy.CastAs(t)
	}
	if s.IgnoreInvalidCasts {
		strategy.IgnoreInvalidCasts()
	}
	if s.StoreNulls {
		strategy.StoreNulls()
	}

	switch s.Accumulate {
	case "", "single":
		strategy.AccumulateIn(aggregate.AsSingle())
	case "list":
		strategy.AccumulateIn(aggregate.AsList())
	case "set":
		strategy.AccumulateIn(aggregate.AsSet())
	default:
		return nil, fmt.Errorf("strategy.accumulate: unknown kind %q", s.Accumulate)
	}

	placement, err := parsePlacement(s.StoreIn)
	if err != nil {
		return nil, err
	}
	strategy.StoreIn(placement)
	return strategy, nil
}

func parsePlacement(s string) (aggregate.Placement, error) {
	kind, name, _ := strings.Cut(s, ":")
	switch {
	case s == "" || s == "body":
		return aggregate.InBody(), nil
	case kind == "property" && name != "":
		return aggregate.InProperty(name), nil
	case kind == "header" && name != "":
		return aggregate.InHeader(name), nil
	}
	return nil, fmt.Errorf("strategy.storeIn: invalid placement %q", s)
}

func compile(field, src string) (*expression.Program, error) {
	p, err := expression.Simple(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return p, nil
}
