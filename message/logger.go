package message

// Logger is the structured logger used across goaggregate. *slog.Logger
// satisfies it; args are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
