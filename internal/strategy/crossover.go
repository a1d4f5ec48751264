package strategy

import (
	"context"
	"fmt"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
	"sentinelbot/internal/risk"
	"sentinelbot/internal/strategy/indicators"
)

const (
	defaultPeriod      = 20
	defaultBandPercent = 2.0

	// crossoverConfidence is the confidence assigned to band-crossing signals.
	// Forced exits (stop loss, take profit) are produced by the worker, not here.
	crossoverConfidence = 0.7
)

// Config holds parameters for the moving-average crossover generator.
type Config struct {
	Period      int                          // Number of candles in the average (e.g., 20)
	BandPercent float64                      // Hysteresis band around the average, in percent (e.g., 2.0)
	Type        indicators.MovingAverageType // Averaging method, SMA by default
	Risk        risk.Limits                  // Sizing parameters for buy signals
}

// Crossover generates buy/sell signals when the ticker price leaves the band
// around the moving average of recent closes. It holds no market state: every
// evaluation is a pure function of the inputs.
type Crossover struct {
	cfg    Config
	ma     *indicators.MovingAverage
	logger ports.Logger
}

// New creates a new Crossover generator instance.
func New(cfg Config, logger ports.Logger) (*Crossover, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Period < 0 {
		return nil, fmt.Errorf("strategy period must be positive")
	}
	if cfg.BandPercent == 0 {
		cfg.BandPercent = defaultBandPercent
	}
	if cfg.BandPercent < 0 || cfg.BandPercent >= 100 {
		return nil, fmt.Errorf("band percent must be between 0 and 100")
	}
	if cfg.Type == "" {
		cfg.Type = indicators.SimpleMovingAverage
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}

	ma := indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: cfg.Period},
		Type:            cfg.Type,
	})

	return &Crossover{cfg: cfg, ma: ma, logger: logger}, nil
}

// RequiredCandles returns the minimum number of candles needed for evaluation.
func (c *Crossover) RequiredCandles() int {
	return c.cfg.Period
}

// Evaluate inspects the latest market data for one pair and returns a signal,
// or nil when the price sits inside the band. A sell is only produced while a
// position is open; a buy is produced regardless, overwriting any position.
func (c *Crossover) Evaluate(ctx context.Context, pair string, price float64, candles []domain.Candle, open *domain.Position) (*domain.TradingSignal, error) {
	if len(candles) < c.cfg.Period {
		c.logger.Debug(ctx, "Not enough candle data for signal evaluation",
			map[string]interface{}{"pair": pair, "available": len(candles), "required": c.cfg.Period})
		return nil, nil
	}

	ordered := chronological(candles)
	avg, err := c.ma.Calculate(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("%s calculation failed for %s: %w", c.ma.Name(), pair, err)
	}

	band := c.cfg.BandPercent / 100
	upper := avg * (1 + band)
	lower := avg * (1 - band)

	switch {
	case price > upper:
		signal := &domain.TradingSignal{
			Pair:       pair,
			Action:     domain.ActionBuy,
			Price:      price,
			Amount:     c.cfg.Risk.PositionSize(price),
			Reason:     fmt.Sprintf("price crossed above %s%d", c.ma.Name(), c.cfg.Period),
			Confidence: crossoverConfidence,
		}
		c.logger.Info(ctx, "Entry signal generated", map[string]interface{}{
			"pair":         pair,
			"currentPrice": price,
			"average":      avg,
			"upperBand":    upper,
			"amount":       signal.Amount,
		})
		return signal, nil

	case price < lower && open != nil:
		signal := &domain.TradingSignal{
			Pair:       pair,
			Action:     domain.ActionSell,
			Price:      price,
			Amount:     open.Amount,
			Reason:     fmt.Sprintf("price crossed below %s%d", c.ma.Name(), c.cfg.Period),
			Confidence: crossoverConfidence,
		}
		c.logger.Info(ctx, "Exit signal generated", map[string]interface{}{
			"pair":         pair,
			"currentPrice": price,
			"average":      avg,
			"lowerBand":    lower,
			"amount":       signal.Amount,
		})
		return signal, nil
	}

	c.logger.Debug(ctx, "Price within band, no signal", map[string]interface{}{
		"pair":         pair,
		"currentPrice": price,
		"average":      avg,
		"upperBand":    upper,
		"lowerBand":    lower,
		"hasPosition":  open != nil,
	})
	return nil, nil
}

// chronological returns the candles ordered oldest first. Exchange endpoints
// disagree on ordering; a most-recent-first slice is detected by its
// timestamps and reversed into a copy.
func chronological(candles []domain.Candle) []domain.Candle {
	if len(candles) < 2 || !candles[0].OpenTime.After(candles[len(candles)-1].OpenTime) {
		return candles
	}
	ordered := make([]domain.Candle, len(candles))
	for i, cd := range candles {
		ordered[len(candles)-1-i] = cd
	}
	return ordered
}
