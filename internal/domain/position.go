package domain

import "time"

// Position represents an open long position held by a bot worker.
// A worker holds at most one position per trading pair: a buy creates or
// overwrites it, a sell removes it.
type Position struct {
	Pair            string    // Trading pair (e.g., "ETHUSDT")
	Amount          float64   // Size of the position in base units
	EntryPrice      float64   // Price at which the position was entered
	StopLossPrice   float64   // Price level that forces a protective sell
	TakeProfitPrice float64   // Price level that forces a profit-taking sell
	OpenedAt        time.Time // Timestamp when the position was entered
}
