package ports

import (
	"context"

	"sentinelbot/internal/domain"
)

// PositionStore tracks the open positions of a single bot worker, keyed by
// trading pair. Implementations own their locking: callers may use a store
// from multiple goroutines without external synchronization.
type PositionStore interface {
	// Get returns the open position for a pair, if any.
	Get(pair string) (domain.Position, bool)
	// Set creates or overwrites the position for the position's pair.
	Set(pos domain.Position)
	// Delete removes the position for a pair. Deleting an absent pair is a no-op.
	Delete(pair string)
	// All returns a snapshot of every open position.
	All() []domain.Position
	// Len returns the number of open positions.
	Len() int
}

// EventRepository persists the event stream produced by bot workers.
type EventRepository interface {
	// SaveTrade persists a trade event and returns its assigned ID.
	SaveTrade(ctx context.Context, ev *domain.Event) (int64, error)
	// SaveBotEvent persists a lifecycle or failure event and returns its assigned ID.
	SaveBotEvent(ctx context.Context, ev *domain.Event) (int64, error)
	// RecentTrades retrieves the most recent trade events for a user, up to a limit.
	RecentTrades(ctx context.Context, userID string, limit int) ([]*domain.Event, error)
}
