package risk

import (
	"fmt"
	"math"
)

// Limits holds the per-bot risk parameters. Percentages are whole numbers:
// a StopLossPercent of 5 places the stop 5% below the entry price.
type Limits struct {
	MaxPositionSize   float64 // Maximum quote-currency notional committed per buy
	StopLossPercent   float64
	TakeProfitPercent float64
}

// Validate checks the limits for values that would produce nonsensical
// stop levels or zero-sized orders.
func (l Limits) Validate() error {
	if l.MaxPositionSize <= 0 {
		return fmt.Errorf("max position size must be positive, got %f", l.MaxPositionSize)
	}
	if l.StopLossPercent <= 0 || l.StopLossPercent >= 100 {
		return fmt.Errorf("stop loss percent must be between 0 and 100, got %f", l.StopLossPercent)
	}
	if l.TakeProfitPercent <= 0 {
		return fmt.Errorf("take profit percent must be positive, got %f", l.TakeProfitPercent)
	}
	return nil
}

// PositionSize calculates the base-unit order size for a buy at the given
// price: the configured notional converted to base units, capped at one unit.
func (l Limits) PositionSize(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return math.Min(l.MaxPositionSize/price, 1)
}

// StopLossPrice calculates the stop loss price level for a long entry.
func (l Limits) StopLossPrice(entryPrice float64) float64 {
	return entryPrice * (1 - l.StopLossPercent/100)
}

// TakeProfitPrice calculates the take profit price level for a long entry.
func (l Limits) TakeProfitPrice(entryPrice float64) float64 {
	return entryPrice * (1 + l.TakeProfitPercent/100)
}
