package pipe

import "errors"

var (
	// ErrAlreadyStarted is returned when Pipe or ApplyMiddleware is called
	// on a pipe that has already been started.
	ErrAlreadyStarted = errors.New("pipe: already started")

	// ErrShutdownDropped is reported to the ErrorHandler for inputs whose
	// outputs were dropped by a forced shutdown.
	ErrShutdownDropped = errors.New("pipe: dropped on shutdown")
)
