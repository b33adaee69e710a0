package message

import (
	"maps"
	"time"
)

// Exchange is a unit of work: a typed body with headers and exchange-scoped properties.
// Headers describe the payload and travel with it across transports.
// Properties live only for the lifetime of the exchange inside the process.
type Exchange struct {
	// ID uniquely identifies the exchange.
	ID string
	// Body is the payload.
	Body any
	// Headers are message headers.
	Headers Headers
	// Properties are exchange-scoped values not propagated to transports.
	Properties Properties
	// Err records a processing failure. Nil when the exchange succeeded.
	Err error
	// Created is the time the exchange was created.
	Created time.Time
}

// New creates a new exchange with the given body and headers.
// Pass nil for headers if no headers are needed.
func New(body any, headers Headers) *Exchange {
	if headers == nil {
		headers = make(Headers)
	}
	return &Exchange{
		ID:         DefaultIDGenerator(),
		Body:       body,
		Headers:    headers,
		Properties: make(Properties),
		Created:    time.Now(),
	}
}

// Copy returns a copy of the exchange with the same ID.
// Headers and properties are copied shallowly; the body is shared.
func (e *Exchange) Copy() *Exchange {
	return &Exchange{
		ID:         e.ID,
		Body:       e.Body,
		Headers:    maps.Clone(e.headers()),
		Properties: maps.Clone(e.properties()),
		Err:        e.Err,
		Created:    e.Created,
	}
}

// CorrelatedCopy returns a copy with a new ID that remembers the ID of its origin
// in the [PropCorrelationID] property. The copy carries no error.
func (e *Exchange) CorrelatedCopy() *Exchange {
	c := e.Copy()
	c.ID = DefaultIDGenerator()
	c.Err = nil
	c.Created = time.Now()
	if _, ok := c.Properties[PropCorrelationID]; !ok {
		c.Properties[PropCorrelationID] = e.ID
	}
	return c
}

// Failed reports whether the exchange carries an error.
func (e *Exchange) Failed() bool {
	return e.Err != nil
}

func (e *Exchange) headers() Headers {
	if e.Headers == nil {
		return make(Headers)
	}
	return e.Headers
}

func (e *Exchange) properties() Properties {
	if e.Properties == nil {
		return make(Properties)
	}
	return e.Properties
}
