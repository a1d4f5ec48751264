package ports

import (
	"context"
	"time"

	"sentinelbot/internal/domain"
)

// ExchangeClient defines the interface for interacting with a cryptocurrency exchange.
// This abstraction allows decoupling the core bot logic from specific exchange implementations.
type ExchangeClient interface {
	// ValidateCredentials proves the client's API keys against a protected
	// endpoint. It returns ErrAuthenticationFailed-class errors for rejected
	// keys and ErrPermissionDenied-class errors for keys without trade access.
	ValidateCredentials(ctx context.Context) error

	// GetTicker retrieves the current ticker price for a trading pair.
	GetTicker(ctx context.Context, pair string) (float64, error)

	// GetCandles retrieves up to limit historical candles for the pair at the
	// given granularity, ordered oldest first.
	GetCandles(ctx context.Context, pair string, granularity time.Duration, limit int) ([]domain.Candle, error)

	// PlaceMarketOrder places a market order for the given base quantity.
	// Returns the essential order details upon successful execution.
	PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*domain.Order, error)
}

// ExchangeFactory builds an ExchangeClient bound to one bot's credentials.
// Construction must not touch the network; credentials are proven later via
// ValidateCredentials.
type ExchangeFactory func(creds domain.Credentials) (ExchangeClient, error)
