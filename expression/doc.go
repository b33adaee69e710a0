// Package expression provides pluggable expressions and predicates evaluated
// against exchanges.
//
// An [Expression] computes a value from an exchange (a correlation key, a picked
// field, a completion size). A [Predicate] decides a boolean condition (a filter,
// a completion check). Both are small interfaces so callers can plug in their own
// strategy objects; [Func] and [PredicateFunc] adapt plain functions.
//
// # Built-ins
//
// Values: [Body], [Header], [Property], [Constant], [ExchangeID]
//
// Predicates: [Not], [And], [Or], [Matches]
//
// # Simple language
//
// [Simple] compiles an expression using the expr language
// (https://expr-lang.org). The exchange is exposed as the variables body,
// headers, properties and id:
//
//	key := expression.MustSimple(`headers.orderId`)
//	keep := expression.MustSimple(`body contains "AGGREGATE"`)
//	size := expression.MustSimple(`int(headers.batchSize)`)
//
// A compiled program is both an Expression and a Predicate. As a predicate it
// must produce a bool; any other result is reported as [ErrNotBoolean].
package expression
