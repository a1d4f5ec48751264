package domain

import "time"

// Event is emitted by a bot worker to report lifecycle transitions, executed
// trades, and failures. Every event carries the identity of the worker that
// produced it so consumers can demultiplex a shared stream.
type Event struct {
	Type             EventType
	Time             time.Time
	UserID           string
	StrategyID       string
	ActiveStrategyID string

	Pair    string         // Pair the event relates to (empty for lifecycle events)
	Signal  *TradingSignal // Set on trade events and execution errors
	Order   *Order         // Set on trade events
	Err     error          // Set on error and critical_error events
	Context string         // Short description of the failing operation
}
