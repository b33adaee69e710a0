package message

import "context"

type contextKey string

const exchangeKey contextKey = "message.exchange"

// ContextWithExchange stores the exchange being processed in ctx.
func ContextWithExchange(ctx context.Context, ex *Exchange) context.Context {
	return context.WithValue(ctx, exchangeKey, ex)
}

// ExchangeFromContext retrieves the exchange being processed from ctx.
// Returns nil if no exchange is present.
func ExchangeFromContext(ctx context.Context) *Exchange {
	ex, _ := ctx.Value(exchangeKey).(*Exchange)
	return ex
}
