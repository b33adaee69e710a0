// Package cloudevents converts exchanges to and from CloudEvents and bridges
// CloudEvents SDK protocol bindings to aggregation pipes.
//
// [FromEvent] turns an incoming event into an exchange whose headers carry
// the event attributes and extensions. [ToEvent] turns a completed aggregate
// into an event; aggregation results are exposed as the extensions
// aggsize, aggcompletedby and aggkey.
//
// [Subscriber] wraps a [protocol.Receiver] and [Publisher] wraps a
// [protocol.Sender], so any SDK binding (HTTP, NATS, Kafka, AMQP) can feed an
// aggregator or receive its results.
//
// [protocol.Receiver]: https://pkg.go.dev/github.com/cloudevents/sdk-go/v2/protocol#Receiver
// [protocol.Sender]: https://pkg.go.dev/github.com/cloudevents/sdk-go/v2/protocol#Sender
package cloudevents
