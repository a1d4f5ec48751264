// Package bot contains the trading worker and the registry that manages one
// worker per (user, active strategy) pair.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
	"sentinelbot/internal/positions"
	"sentinelbot/internal/risk"
	"sentinelbot/internal/strategy"
)

// Reference defaults; every deployment can override them per bot.
const (
	DefaultPollInterval     = 60 * time.Second
	DefaultFailureThreshold = 5
	DefaultCandleInterval   = time.Minute
)

// Config holds the settings of one bot worker. It is treated as immutable
// after construction.
type Config struct {
	UserID           string
	StrategyID       string
	ActiveStrategyID string
	Credentials      domain.Credentials
	Pairs            []string // Trading pairs polled every cycle

	MaxPositionSize   float64 // Quote notional committed per buy
	StopLossPercent   float64 // Whole percent, e.g. 5 = 5%
	TakeProfitPercent float64 // Whole percent, e.g. 10 = 10%

	PollInterval     time.Duration // Cycle cadence (DefaultPollInterval when zero)
	FailureThreshold int           // Consecutive failed cycles before self-stop
	CandleInterval   time.Duration // Candle granularity fetched for the generator
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.CandleInterval <= 0 {
		c.CandleInterval = DefaultCandleInterval
	}
	c.Pairs = append([]string(nil), c.Pairs...)
	return c
}

func (c Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if c.StrategyID == "" {
		return fmt.Errorf("strategy id is required")
	}
	if c.ActiveStrategyID == "" {
		return fmt.Errorf("active strategy id is required")
	}
	if !c.Credentials.IsComplete() {
		return fmt.Errorf("exchange credentials are incomplete")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one trading pair is required")
	}
	return c.limits().Validate()
}

func (c Config) limits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:   c.MaxPositionSize,
		StopLossPercent:   c.StopLossPercent,
		TakeProfitPercent: c.TakeProfitPercent,
	}
}

// Deps holds the collaborators injected into a worker. NewExchange and Logger
// are required; the rest default to production implementations.
type Deps struct {
	NewExchange ports.ExchangeFactory
	Logger      ports.Logger
	Signals     ports.SignalGenerator // defaults to the SMA crossover generator
	Positions   ports.PositionStore   // defaults to the in-memory store
	Emit        func(domain.Event)    // event sink; must not block
}

// Bot is a single trading worker. It polls market data for its pairs on a
// fixed cadence, executes generated signals, enforces stop-loss/take-profit
// exits, and stops itself after too many consecutive failed cycles.
type Bot struct {
	cfg      Config
	limits   risk.Limits
	exchange ports.ExchangeClient
	signals  ports.SignalGenerator
	posStore ports.PositionStore
	logger   ports.Logger
	emit     func(domain.Event)

	mu                  sync.Mutex // Protects the state fields below
	state               domain.BotState
	cancel              context.CancelFunc
	consecutiveFailures int
}

// pairOutcome classifies what happened to one pair during a cycle.
type pairOutcome int

const (
	pairOK pairOutcome = iota
	pairFailed
	pairFailedCritical
)

// New validates the configuration and constructs (but does not start) a
// worker. The exchange factory is only invoked once the configuration has
// passed validation; factory failures are configuration errors too.
func New(cfg Config, deps Deps) (*Bot, error) {
	if deps.NewExchange == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for bot: %w", ports.ErrConfigurationError)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("bot config validation failed: %w: %w", ports.ErrConfigurationError, err)
	}

	exchange, err := deps.NewExchange(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("exchange client construction failed: %w: %w", ports.ErrConfigurationError, err)
	}

	signals := deps.Signals
	if signals == nil {
		signals, err = strategy.New(strategy.Config{Risk: cfg.limits()}, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("signal generator construction failed: %w: %w", ports.ErrConfigurationError, err)
		}
	}

	posStore := deps.Positions
	if posStore == nil {
		posStore = positions.NewStore()
	}

	emit := deps.Emit
	if emit == nil {
		emit = func(domain.Event) {}
	}

	return &Bot{
		cfg:      cfg,
		limits:   cfg.limits(),
		exchange: exchange,
		signals:  signals,
		posStore: posStore,
		logger:   deps.Logger,
		emit:     emit,
		state:    domain.StateStopped,
	}, nil
}

// Config returns the worker's configuration.
func (b *Bot) Config() Config {
	return b.cfg
}

// State returns the worker's current lifecycle state.
func (b *Bot) State() domain.BotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start proves the credentials against the exchange and launches the polling
// loop. It returns ErrAlreadyRunning when called on a running worker, and a
// classified validation error (leaving the worker stopped, with no cycle
// scheduled) when the exchange rejects the probe. The passed context scopes
// the probe only; the loop's lifetime is governed by Stop.
func (b *Bot) Start(ctx context.Context) error {
	op := "Start"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.StateRunning {
		return fmt.Errorf("bot for user %s / strategy %s: %w", b.cfg.UserID, b.cfg.ActiveStrategyID, ports.ErrAlreadyRunning)
	}

	b.logger.Info(ctx, op+": validating exchange credentials", b.identityFields(nil))
	if err := b.exchange.ValidateCredentials(ctx); err != nil {
		mapped := classifyCredentialError(err)
		b.logger.Error(ctx, err, op+": credential validation failed", b.identityFields(nil))
		return fmt.Errorf("credential validation failed: %w: %w", mapped, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.state = domain.StateRunning
	b.consecutiveFailures = 0

	go b.run(loopCtx)

	b.logger.Info(ctx, op+": bot started", b.identityFields(map[string]interface{}{
		"pairs":        b.cfg.Pairs,
		"pollInterval": b.cfg.PollInterval.String(),
	}))
	b.emitEvent(domain.Event{Type: domain.EventStarted})
	return nil
}

// Stop halts the polling loop. It is idempotent: stopping a stopped worker is
// a no-op, and the stopped event is emitted once per actual transition. An
// in-flight cycle is canceled; it abandons its remaining work without
// touching the failure counter.
func (b *Bot) Stop() {
	b.mu.Lock()
	if b.state != domain.StateRunning {
		b.mu.Unlock()
		return
	}
	b.state = domain.StateStopped
	cancel := b.cancel
	b.cancel = nil
	b.logger.Info(context.Background(), "Stop: bot stopped", b.identityFields(nil))
	b.emitEvent(domain.Event{Type: domain.EventStopped})
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// run owns the polling cadence. The first cycle runs immediately; afterwards
// cycles run inline on each tick, so a long cycle simply delays the next one
// and overlapping cycles cannot occur.
func (b *Bot) run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug(ctx, "run: worker loop exiting", b.identityFields(nil))
			return
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// runCycle processes every configured pair once and feeds the aggregate
// outcome into the circuit breaker. A cycle counts as failed when no pair
// succeeded and at least one failed critically, or when more than half of
// the pairs failed critically.
func (b *Bot) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	var critical, succeeded int
	for _, pair := range b.cfg.Pairs {
		if ctx.Err() != nil {
			return
		}
		switch b.processPair(ctx, pair) {
		case pairOK:
			succeeded++
		case pairFailedCritical:
			critical++
		}
	}
	if ctx.Err() != nil {
		return
	}

	failed := (succeeded == 0 && critical > 0) || critical*2 > len(b.cfg.Pairs)
	if !failed {
		b.resetFailures(ctx)
		return
	}
	b.recordCycleFailure(ctx, critical)
}

// processPair runs the trade phase and the monitor phase for one pair. The
// phases fail independently: a broken data fetch does not suppress the
// protective exit check, which fetches its own ticker.
func (b *Bot) processPair(ctx context.Context, pair string) pairOutcome {
	tradeErr := b.tradePair(ctx, pair)
	monitorErr := b.monitorPosition(ctx, pair)

	outcome := pairOK
	for _, err := range []error{tradeErr, monitorErr} {
		if err == nil {
			continue
		}
		if isCritical(err) {
			outcome = pairFailedCritical
		} else if outcome == pairOK {
			outcome = pairFailed
		}
	}
	return outcome
}

// tradePair fetches market data, evaluates the signal generator, and executes
// any resulting signal.
func (b *Bot) tradePair(ctx context.Context, pair string) error {
	price, err := b.exchange.GetTicker(ctx, pair)
	if err != nil {
		return b.reportPairError(ctx, pair, "ticker fetch", err, nil)
	}

	candles, err := b.exchange.GetCandles(ctx, pair, b.cfg.CandleInterval, b.signals.RequiredCandles())
	if err != nil {
		return b.reportPairError(ctx, pair, "candle fetch", err, nil)
	}

	var open *domain.Position
	if pos, ok := b.posStore.Get(pair); ok {
		open = &pos
	}

	sig, err := b.signals.Evaluate(ctx, pair, price, candles, open)
	if err != nil {
		return b.reportPairError(ctx, pair, "signal evaluation", err, nil)
	}
	if sig == nil {
		return nil
	}
	return b.executeSignal(ctx, sig)
}

// monitorPosition enforces the stop-loss/take-profit levels of the pair's
// open position, if any. Triggered exits go through the same execution path
// as generated signals, with full confidence and the trigger as reason.
func (b *Bot) monitorPosition(ctx context.Context, pair string) error {
	pos, ok := b.posStore.Get(pair)
	if !ok {
		return nil
	}

	price, err := b.exchange.GetTicker(ctx, pair)
	if err != nil {
		return b.reportPairError(ctx, pair, "position monitoring", err, nil)
	}

	var reason string
	switch {
	case price <= pos.StopLossPrice:
		reason = "stop loss triggered"
	case price >= pos.TakeProfitPrice:
		reason = "take profit triggered"
	default:
		return nil
	}

	b.logger.Info(ctx, "monitorPosition: protective exit triggered", map[string]interface{}{
		"pair":         pair,
		"currentPrice": price,
		"entryPrice":   pos.EntryPrice,
		"stopLoss":     pos.StopLossPrice,
		"takeProfit":   pos.TakeProfitPrice,
		"reason":       reason,
	})

	return b.executeSignal(ctx, &domain.TradingSignal{
		Pair:       pair,
		Action:     domain.ActionSell,
		Price:      price,
		Amount:     pos.Amount,
		Reason:     reason,
		Confidence: 1.0,
	})
}

// executeSignal places the market order and updates the position tracker so
// the monitor phase of the same cycle sees the new state. Buys use the
// signal's price as entry; sells delete the pair's position.
func (b *Bot) executeSignal(ctx context.Context, sig *domain.TradingSignal) error {
	op := "executeSignal"

	order, err := b.exchange.PlaceMarketOrder(ctx, sig.Pair, sig.Action.OrderSide(), sig.Amount)
	if err != nil {
		return b.reportPairError(ctx, sig.Pair, "order placement", err, sig)
	}

	switch sig.Action {
	case domain.ActionBuy:
		pos := domain.Position{
			Pair:            sig.Pair,
			Amount:          sig.Amount,
			EntryPrice:      sig.Price,
			StopLossPrice:   b.limits.StopLossPrice(sig.Price),
			TakeProfitPrice: b.limits.TakeProfitPrice(sig.Price),
			OpenedAt:        time.Now().UTC(),
		}
		b.posStore.Set(pos)
		b.logger.Info(ctx, op+": position opened", map[string]interface{}{
			"pair":       sig.Pair,
			"amount":     pos.Amount,
			"entryPrice": pos.EntryPrice,
			"stopLoss":   pos.StopLossPrice,
			"takeProfit": pos.TakeProfitPrice,
			"orderID":    order.ID,
		})
	case domain.ActionSell:
		b.posStore.Delete(sig.Pair)
		b.logger.Info(ctx, op+": position closed", map[string]interface{}{
			"pair":    sig.Pair,
			"amount":  sig.Amount,
			"price":   sig.Price,
			"reason":  sig.Reason,
			"orderID": order.ID,
		})
	}

	b.emitEvent(domain.Event{Type: domain.EventTrade, Pair: sig.Pair, Signal: sig, Order: order})
	return nil
}

// reportPairError logs and emits one pair failure, then hands the error back
// for cycle accounting. Cancellations caused by Stop are not reported.
func (b *Bot) reportPairError(ctx context.Context, pair, opContext string, err error, sig *domain.TradingSignal) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, ports.ErrContextCanceled) {
		b.logger.Debug(ctx, "pair processing canceled", map[string]interface{}{"pair": pair, "context": opContext})
		return err
	}

	b.logger.Error(ctx, err, opContext+" failed", map[string]interface{}{"pair": pair})
	b.emitEvent(domain.Event{Type: domain.EventError, Pair: pair, Signal: sig, Err: err, Context: opContext})
	return err
}

func (b *Bot) resetFailures(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFailures > 0 {
		b.logger.Debug(ctx, "runCycle: healthy cycle, failure counter reset", map[string]interface{}{
			"previousFailures": b.consecutiveFailures,
		})
		b.consecutiveFailures = 0
	}
}

// recordCycleFailure advances the circuit breaker and trips it once the
// threshold is reached: the worker transitions to Stopped, the loop context
// is canceled, and a single critical_error event follows the stopped event.
func (b *Bot) recordCycleFailure(ctx context.Context, criticalCount int) {
	b.mu.Lock()
	b.consecutiveFailures++
	failures := b.consecutiveFailures
	tripped := false
	if b.state == domain.StateRunning && failures >= b.cfg.FailureThreshold {
		b.state = domain.StateStopped
		if b.cancel != nil {
			b.cancel()
			b.cancel = nil
		}
		tripped = true
	}
	b.mu.Unlock()

	b.logger.Warn(ctx, "runCycle: cycle failed", map[string]interface{}{
		"criticalFailures":    criticalCount,
		"consecutiveFailures": failures,
		"threshold":           b.cfg.FailureThreshold,
	})
	if !tripped {
		return
	}

	err := fmt.Errorf("trading halted after %d consecutive failed cycles", failures)
	b.logger.Error(ctx, err, "runCycle: failure threshold reached, stopping bot", b.identityFields(nil))
	b.emitEvent(domain.Event{Type: domain.EventStopped})
	b.emitEvent(domain.Event{Type: domain.EventCriticalError, Err: err})
}

// emitEvent stamps the worker's identity and hands the event to the sink.
func (b *Bot) emitEvent(ev domain.Event) {
	ev.Time = time.Now().UTC()
	ev.UserID = b.cfg.UserID
	ev.StrategyID = b.cfg.StrategyID
	ev.ActiveStrategyID = b.cfg.ActiveStrategyID
	b.emit(ev)
}

func (b *Bot) identityFields(extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"userID":           b.cfg.UserID,
		"strategyID":       b.cfg.StrategyID,
		"activeStrategyID": b.cfg.ActiveStrategyID,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// classifyCredentialError maps exchange-level failures of the start-time
// probe onto the lifecycle error contract.
func classifyCredentialError(err error) error {
	switch {
	case errors.Is(err, ports.ErrAuthenticationFailed):
		return ports.ErrInvalidCredentials
	case errors.Is(err, ports.ErrPermissionDenied):
		return ports.ErrInsufficientPermissions
	default:
		return ports.ErrCredentialValidationFailed
	}
}

// isCritical reports whether a pair failure indicates an unusable session
// (authentication, permissions, rate limiting, connectivity) rather than a
// transient data or order problem.
func isCritical(err error) bool {
	for _, target := range []error{
		ports.ErrAuthenticationFailed,
		ports.ErrInvalidCredentials,
		ports.ErrPermissionDenied,
		ports.ErrInsufficientPermissions,
		ports.ErrRateLimited,
		ports.ErrConnectionFailed,
		ports.ErrTimeout,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
