package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/fxsml/goaggregate/expression"
	"github.com/fxsml/goaggregate/message"
)

// Config configures an Aggregator.
type Config struct {
	// Strategy merges units into their group. Required.
	Strategy Strategy

	// Correlation computes the correlation key of each unit.
	// When nil every unit joins the single group DefaultKey.
	Correlation expression.Expression

	// IgnoreInvalidCorrelationKeys drops units with an empty key instead of failing them.
	IgnoreInvalidCorrelationKeys bool

	// CloseCorrelationKeyOnCompletion, when > 0, rejects units whose key has
	// completed before. The value bounds the number of remembered keys.
	CloseCorrelationKeyOnCompletion int

	// CompletionSize completes a group once it has merged this many units.
	CompletionSize int

	// CompletionSizeExpression is evaluated against the result after each merge.
	// A positive value takes precedence over CompletionSize.
	CompletionSizeExpression expression.Expression

	// CompletionPredicate is evaluated against the result after each merge.
	// A failing evaluation reverts the merge of the unit being processed.
	CompletionPredicate expression.Predicate

	// EagerCheckCompletion evaluates CompletionPredicate and
	// CompletionSizeExpression against the incoming unit before it is merged,
	// with PropAggregatedSize set to the size the group reaches by the merge.
	EagerCheckCompletion bool

	// CompletionTimeout completes a group after this period of inactivity,
	// or after this period since creation when TimeoutFrom is FromCreation.
	CompletionTimeout time.Duration

	// CompletionTimeoutExpression is evaluated against each incoming unit.
	// A positive value takes precedence over CompletionTimeout.
	// Numbers are milliseconds; strings are parsed as durations.
	CompletionTimeoutExpression expression.Expression

	// TimeoutFrom selects when the completion timeout starts. Default is FromLastUpdate.
	TimeoutFrom TimeoutFrom

	// CompletionInterval completes all open groups periodically.
	// Cannot be combined with a completion timeout.
	CompletionInterval time.Duration

	// DiscardOnCompletionTimeout drops groups that complete by timeout.
	// Timeout observers are still notified.
	DiscardOnCompletionTimeout bool

	// DiscardOnAggregationFailure drops the whole group when a merge fails
	// instead of returning the error.
	DiscardOnAggregationFailure bool

	// CompleteAllOnStop force completes all open groups when the aggregator stops.
	CompleteAllOnStop bool

	// Output receives every completed result exactly once. When an incoming
	// exchange triggered the completion, message.ExchangeFromContext(ctx)
	// returns it; timer completions carry none.
	Output func(ctx context.Context, result *message.Exchange)

	// Logger for aggregator events (default: slog.Default()).
	Logger message.Logger
}

func (c Config) parse() (Config, error) {
	if c.Strategy == nil {
		return c, &ConfigError{Field: "Strategy", Reason: "is required"}
	}
	if c.CompletionSize < 0 {
		return c, &ConfigError{Field: "CompletionSize", Reason: "must not be negative"}
	}
	if c.CompletionTimeout < 0 {
		return c, &ConfigError{Field: "CompletionTimeout", Reason: "must not be negative"}
	}
	if c.CompletionInterval < 0 {
		return c, &ConfigError{Field: "CompletionInterval", Reason: "must not be negative"}
	}
	if c.CloseCorrelationKeyOnCompletion < 0 {
		return c, &ConfigError{Field: "CloseCorrelationKeyOnCompletion", Reason: "must not be negative"}
	}
	if c.CompletionInterval > 0 && (c.CompletionTimeout > 0 || c.CompletionTimeoutExpression != nil) {
		return c, &ConfigError{Field: "CompletionInterval", Reason: "cannot be combined with a completion timeout"}
	}
	if c.CompletionSize == 0 && c.CompletionSizeExpression == nil && c.CompletionPredicate == nil &&
		c.CompletionTimeout == 0 && c.CompletionTimeoutExpression == nil && c.CompletionInterval == 0 {
		return c, &ConfigError{Field: "Completion", Reason: "requires at least one of size, predicate, timeout or interval"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

func (c Config) usesTimeout() bool {
	return c.CompletionTimeout > 0 || c.CompletionTimeoutExpression != nil
}
