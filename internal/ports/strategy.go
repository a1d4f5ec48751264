package ports

import (
	"context"

	"sentinelbot/internal/domain"
)

// SignalGenerator defines the interface for turning market data into
// trading signals. Implementations must be pure with respect to inputs:
// identical candles, price, and position state yield the identical signal.
type SignalGenerator interface {
	// RequiredCandles returns the minimum number of candles needed for evaluation.
	RequiredCandles() int

	// Evaluate inspects the latest market data for one pair and returns a
	// signal, or nil when no action is warranted. Insufficient candle history
	// is not an error: it yields (nil, nil).
	Evaluate(ctx context.Context, pair string, price float64, candles []domain.Candle, open *domain.Position) (*domain.TradingSignal, error)
}
