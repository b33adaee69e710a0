package aggregate

import "github.com/fxsml/goaggregate/message"

// Placement reads and writes the accumulated value on a result exchange.
type Placement interface {
	// Get returns the current container, or nil.
	Get(ex *message.Exchange) any
	// Set stores the container.
	Set(ex *message.Exchange, v any)
	// Reset clears the target when a group is created.
	Reset(ex *message.Exchange)
	String() string
}

type bodyPlacement struct{}

// InBody stores the accumulated value as the result body.
func InBody() Placement { return bodyPlacement{} }

func (bodyPlacement) Get(ex *message.Exchange) any    { return ex.Body }
func (bodyPlacement) Set(ex *message.Exchange, v any) { ex.Body = v }
func (bodyPlacement) Reset(ex *message.Exchange)      { ex.Body = nil }
func (bodyPlacement) String() string                  { return "body" }

type propertyPlacement string

// InProperty stores the accumulated value in the named exchange property.
func InProperty(name string) Placement { return propertyPlacement(name) }

func (p propertyPlacement) Get(ex *message.Exchange) any {
	return ex.Properties[string(p)]
}

func (p propertyPlacement) Set(ex *message.Exchange, v any) {
	if ex.Properties == nil {
		ex.Properties = make(message.Properties)
	}
	ex.Properties[string(p)] = v
}

func (p propertyPlacement) Reset(ex *message.Exchange) {
	delete(ex.Properties, string(p))
}

func (p propertyPlacement) String() string { return "property:" + string(p) }

type headerPlacement string

// InHeader stores the accumulated value in the named header.
func InHeader(name string) Placement { return headerPlacement(name) }

func (h headerPlacement) Get(ex *message.Exchange) any {
	return ex.Headers[string(h)]
}

func (h headerPlacement) Set(ex *message.Exchange, v any) {
	if ex.Headers == nil {
		ex.Headers = make(message.Headers)
	}
	ex.Headers[string(h)] = v
}

func (h headerPlacement) Reset(ex *message.Exchange) {
	delete(ex.Headers, string(h))
}

func (h headerPlacement) String() string { return "header:" + string(h) }
