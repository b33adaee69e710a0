package expression

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/fxsml/goaggregate/message"
)

// Program is a compiled Simple expression.
// It is safe for concurrent use.
type Program struct {
	source  string
	program *vm.Program
}

// Simple compiles source using the expr language.
// The variables body, headers, properties and id refer to the evaluated exchange.
func Simple(source string) (*Program, error) {
	program, err := expr.Compile(source, expr.Env(env(nil)))
	if err != nil {
		return nil, fmt.Errorf("expression: compile %q: %w", source, err)
	}
	return &Program{source: source, program: program}, nil
}

// MustSimple is like Simple but panics if source does not compile.
func MustSimple(source string) *Program {
	p, err := Simple(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluate runs the program against ex.
func (p *Program) Evaluate(ex *message.Exchange) (any, error) {
	v, err := expr.Run(p.program, env(ex))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrEvaluation, p.source, err)
	}
	return v, nil
}

// Matches runs the program against ex and requires a boolean result.
func (p *Program) Matches(ex *message.Exchange) (bool, error) {
	v, err := p.Evaluate(ex)
	if err != nil {
		return false, err
	}
	b, err := asBool(v)
	if err != nil {
		return false, fmt.Errorf("%q: %w", p.source, err)
	}
	return b, nil
}

// String returns the source of the program.
func (p *Program) String() string {
	return p.source
}

// environment is the variable set visible to Simple expressions.
type environment struct {
	Body       any            `expr:"body"`
	Headers    map[string]any `expr:"headers"`
	Properties map[string]any `expr:"properties"`
	ID         string         `expr:"id"`
}

func env(ex *message.Exchange) environment {
	if ex == nil {
		return environment{}
	}
	return environment{
		Body:       ex.Body,
		Headers:    ex.Headers,
		Properties: ex.Properties,
		ID:         ex.ID,
	}
}
