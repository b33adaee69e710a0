package message

// Headers is a map of message headers.
//
// Thread safety: Headers is not safe for concurrent read/write access.
// An exchange is handled by a single goroutine at a time, so concurrent access is rare.
// If sharing headers between goroutines, use external synchronization.
type Headers map[string]any

// Well-known header keys.
const (
	// HeaderContentType is the content type of the body.
	HeaderContentType = "content-type"
	// HeaderSubject is the subject the exchange was received on or is published to.
	HeaderSubject = "subject"
	// HeaderSource identifies the origin of the exchange.
	HeaderSource = "source"
	// HeaderType is the event type of the exchange (e.g., "order.line").
	HeaderType = "type"
)

// String retrieves a string header by key.
func (h Headers) String(key string) (string, bool) {
	return lookupString(h, key)
}

// Bool retrieves a boolean header by key.
// The strings "true" and "false" are accepted as well.
func (h Headers) Bool(key string) bool {
	return lookupBool(h, key)
}
