package message

import "errors"

// ErrNilExchange is returned when a nil exchange is handed to a component.
var ErrNilExchange = errors.New("message: nil exchange")
