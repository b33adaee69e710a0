// Package aggregate correlates exchanges into groups and completes each group exactly once.
//
// An [Aggregator] derives a correlation key for every incoming exchange,
// merges the exchange into the open group of that key using a [Strategy], and
// completes the group when one of the configured criteria is met:
//
//   - CompletionSize or CompletionSizeExpression: the group merged enough units
//   - CompletionPredicate: a predicate on the merged result is true
//   - CompletionTimeout or CompletionTimeoutExpression: no unit arrived in time
//   - CompletionInterval: periodic completion of all open groups
//   - ForceCompletion and the HeaderCompleteAllGroups control header
//
// Completion is exactly once. Racing paths contend for a single state
// transition; the loser does nothing. The completed group is removed before
// observers run, so the next unit for the same key starts a new group.
// A unit whose completion check fails is not kept in its group.
//
// # Flexible strategy
//
// [FlexibleStrategy] covers the common cases without custom code:
//
//	strategy := aggregate.Flexible().
//		Pick(expression.Header("amount")).
//		CastAs(reflect.TypeFor[int]()).
//		AccumulateIn(aggregate.AsList()).
//		StoreIn(aggregate.InProperty("amounts")).
//		TimeoutAware(aggregate.TimeoutFunc(onTimeout))
//
//	agg, err := aggregate.New(aggregate.Config{
//		Strategy:          strategy,
//		Correlation:       expression.Header("orderId"),
//		CompletionSize:    5,
//		CompletionTimeout: 500 * time.Millisecond,
//		Output:            publish,
//	})
//
// Units rejected by the condition, dropped on an ignored invalid cast, or
// yielding nil without StoreNulls are not merged and do not count toward the
// completion size.
//
// # Pipes
//
// [NewPipe] runs an aggregator behind the worker pool of the pipe package and
// emits completed results on a channel.
package aggregate
