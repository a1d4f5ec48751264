package domain

// TradingSignal is the decision produced by a signal generator for a single
// pair in a single poll cycle. Signals are transient: they are acted on
// immediately and never stored.
type TradingSignal struct {
	Pair       string       // Trading pair the signal applies to
	Action     SignalAction // buy or sell
	Price      float64      // Ticker price the decision was based on
	Amount     float64      // Order size in base units
	Reason     string       // Human-readable explanation
	Confidence float64      // Signal confidence in [0, 1]
}
