package market

import "context"

// QuoteSource supplies the current price for a symbol. Implementations are
// expected to hit an upstream API; callers should go through Cache so that
// concurrent misses collapse into a single upstream call.
type QuoteSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// QuoteFunc adapts a function to the QuoteSource interface.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

func (f QuoteFunc) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}
