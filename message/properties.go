package message

import (
	"strconv"
	"time"
)

// Properties is a map of exchange-scoped properties.
type Properties map[string]any

// Reserved property keys for standard exchange metadata.
const (
	// PropCorrelationID links an exchange to the exchange it was copied from.
	PropCorrelationID = "correlation_id"

	// PropDeadline stores the exchange processing deadline.
	PropDeadline = "deadline"
)

// String retrieves a string property by key.
func (p Properties) String(key string) (string, bool) {
	return lookupString(p, key)
}

// Bool retrieves a boolean property by key.
// The strings "true" and "false" are accepted as well.
func (p Properties) Bool(key string) bool {
	return lookupBool(p, key)
}

// Int retrieves an integer property by key.
func (p Properties) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	}
	return 0, false
}

// Time retrieves a time.Time property by key.
func (p Properties) Time(key string) (time.Time, bool) {
	if v, ok := p[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// CorrelationID returns the ID of the exchange this one was copied from.
func (p Properties) CorrelationID() (string, bool) {
	return p.String(PropCorrelationID)
}

// Deadline returns the deadline for processing this exchange.
func (p Properties) Deadline() (time.Time, bool) {
	return p.Time(PropDeadline)
}

func lookupString[M ~map[string]any](m M, key string) (string, bool) {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

func lookupBool[M ~map[string]any](m M, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
