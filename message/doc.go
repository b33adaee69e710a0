// Package message provides the exchange type that flows through the aggregator.
//
// This package is part of [goaggregate], a correlation and aggregation toolkit for Go.
// The goaggregate family includes:
//
//   - [message] (this package): exchanges with a body, headers and properties
//   - [expression]: pluggable expressions and predicates evaluated against exchanges
//   - [aggregate]: the correlation engine that groups and completes exchanges
//   - [pipe]: concurrent worker stages with lifecycle management
//
// # Quick Start
//
//	ex := message.New("AGGREGATE1", message.Headers{"orderId": "42"})
//	ex.Properties["priority"] = 3
//
// # Ownership
//
// An [Exchange] is owned by one goroutine at a time. Headers and Properties are
// plain maps and are not safe for concurrent read/write access. The aggregator
// never mutates an incoming exchange except to record a failure in [Exchange.Err].
//
// # Subpackages
//
// cloudevents: Conversion between exchanges and CloudEvents
//
// codec: JSON payload codec and result headers shared by the transports
//
// nats: NATS subscriber and publisher for exchanges
//
// amqp: RabbitMQ subscriber and publisher for exchanges
//
// kafka: Kafka subscriber and publisher for exchanges
//
// [goaggregate]: https://github.com/fxsml/goaggregate
// [message]: https://pkg.go.dev/github.com/fxsml/goaggregate/message
// [expression]: https://pkg.go.dev/github.com/fxsml/goaggregate/expression
// [aggregate]: https://pkg.go.dev/github.com/fxsml/goaggregate/aggregate
// [pipe]: https://pkg.go.dev/github.com/fxsml/goaggregate/pipe
package message
