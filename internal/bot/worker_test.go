package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
)

// Mock implementations shared by the worker and manager tests. The worker
// loop logs and trades from its own goroutine, so the mocks are locked.

type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) hasWarn(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, got := range m.warnMsgs {
		if got == msg {
			return true
		}
	}
	return false
}

type placedOrder struct {
	pair     string
	side     domain.OrderSide
	quantity float64
}

type mockExchange struct {
	mu sync.Mutex

	validateErr   error
	validateCalls int

	prices      map[string]float64
	priceErrs   map[string]error
	tickerCalls int

	candles    map[string][]domain.Candle
	candlesErr error

	orderErr error
	orders   []placedOrder
}

func (m *mockExchange) factory() ports.ExchangeFactory {
	return func(domain.Credentials) (ports.ExchangeClient, error) { return m, nil }
}

func (m *mockExchange) ValidateCredentials(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateCalls++
	return m.validateErr
}

func (m *mockExchange) GetTicker(ctx context.Context, pair string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls++
	if err := m.priceErrs[pair]; err != nil {
		return 0, err
	}
	return m.prices[pair], nil
}

func (m *mockExchange) GetCandles(ctx context.Context, pair string, granularity time.Duration, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.candlesErr != nil {
		return nil, m.candlesErr
	}
	return m.candles[pair], nil
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.orders = append(m.orders, placedOrder{pair: pair, side: side, quantity: quantity})
	return &domain.Order{
		ID:          fmt.Sprintf("%d", len(m.orders)),
		Pair:        pair,
		Side:        side,
		Quantity:    quantity,
		ExecutedQty: quantity,
		AvgPrice:    m.prices[pair],
		Status:      "FILLED",
		Time:        time.Now(),
	}, nil
}

func (m *mockExchange) tickerCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickerCalls
}

func (m *mockExchange) placedOrders() []placedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placedOrder(nil), m.orders...)
}

func (m *mockExchange) setPriceErr(pair string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.priceErrs == nil {
		m.priceErrs = make(map[string]error)
	}
	m.priceErrs[pair] = err
}

type mockSignals struct {
	signal *domain.TradingSignal
	err    error
}

func (m *mockSignals) RequiredCandles() int { return 1 }

func (m *mockSignals) Evaluate(ctx context.Context, pair string, price float64, candles []domain.Candle, open *domain.Position) (*domain.TradingSignal, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.signal == nil {
		return nil, nil
	}
	sig := *m.signal
	sig.Pair = pair
	return &sig, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) byType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Test helpers

func testConfig(pairs ...string) Config {
	if len(pairs) == 0 {
		pairs = []string{"ETHUSDT"}
	}
	return Config{
		UserID:            "user-1",
		StrategyID:        "strat-1",
		ActiveStrategyID:  "active-1",
		Credentials:       domain.Credentials{APIKey: "key", APISecret: "secret"},
		Pairs:             pairs,
		MaxPositionSize:   1000,
		StopLossPercent:   5,
		TakeProfitPercent: 10,
		PollInterval:      time.Hour, // only the immediate first cycle runs unless a test shortens this
		FailureThreshold:  5,
	}
}

func newTestBot(t *testing.T, cfg Config, exchange *mockExchange, rec *eventRecorder) *Bot {
	t.Helper()
	return newTestBotWithSignals(t, cfg, exchange, rec, &mockSignals{})
}

func newTestBotWithSignals(t *testing.T, cfg Config, exchange *mockExchange, rec *eventRecorder, signals ports.SignalGenerator) *Bot {
	t.Helper()
	deps := Deps{
		NewExchange: exchange.factory(),
		Logger:      &mockLogger{},
		Signals:     signals,
	}
	if rec != nil {
		deps.Emit = rec.record
	}
	b, err := New(cfg, deps)
	require.NoError(t, err)
	return b
}

func failureCount(b *Bot) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// markRunning puts the worker in the running state without scheduling the
// loop, so tests can drive cycles deterministically.
func markRunning(b *Bot, cancel context.CancelFunc) {
	b.mu.Lock()
	b.state = domain.StateRunning
	b.cancel = cancel
	b.mu.Unlock()
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid configuration", wantErr: false},
		{name: "missing user id", mutate: func(c *Config) { c.UserID = "" }, wantErr: true},
		{name: "missing strategy id", mutate: func(c *Config) { c.StrategyID = "" }, wantErr: true},
		{name: "missing active strategy id", mutate: func(c *Config) { c.ActiveStrategyID = "" }, wantErr: true},
		{name: "incomplete credentials", mutate: func(c *Config) { c.Credentials.APISecret = "" }, wantErr: true},
		{name: "no trading pairs", mutate: func(c *Config) { c.Pairs = nil }, wantErr: true},
		{name: "invalid risk limits", mutate: func(c *Config) { c.MaxPositionSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			factoryCalled := false
			factory := func(domain.Credentials) (ports.ExchangeClient, error) {
				factoryCalled = true
				return &mockExchange{}, nil
			}

			b, err := New(cfg, Deps{NewExchange: factory, Logger: &mockLogger{}})
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrConfigurationError)
				assert.Nil(t, b)
				assert.False(t, factoryCalled, "factory must not run for an invalid config")
				return
			}
			require.NoError(t, err)
			assert.True(t, factoryCalled)
			assert.Equal(t, domain.StateStopped, b.State())
		})
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := New(testConfig(), Deps{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(testConfig(), Deps{NewExchange: (&mockExchange{}).factory()})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestNew_AppliesDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 0
	cfg.FailureThreshold = 0
	cfg.CandleInterval = 0

	b := newTestBot(t, cfg, &mockExchange{}, nil)

	got := b.Config()
	assert.Equal(t, DefaultPollInterval, got.PollInterval)
	assert.Equal(t, DefaultFailureThreshold, got.FailureThreshold)
	assert.Equal(t, DefaultCandleInterval, got.CandleInterval)
}

func TestBot_StartCredentialValidation(t *testing.T) {
	tests := []struct {
		name        string
		validateErr error
		wantErr     error
	}{
		{
			name:        "authentication failure maps to invalid credentials",
			validateErr: fmt.Errorf("account probe: %w", ports.ErrAuthenticationFailed),
			wantErr:     ports.ErrInvalidCredentials,
		},
		{
			name:        "permission failure maps to insufficient permissions",
			validateErr: fmt.Errorf("account probe: %w", ports.ErrPermissionDenied),
			wantErr:     ports.ErrInsufficientPermissions,
		},
		{
			name:        "any other failure maps to validation error",
			validateErr: errors.New("exchange briefly unavailable"),
			wantErr:     ports.ErrCredentialValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchange := &mockExchange{validateErr: tt.validateErr}
			rec := &eventRecorder{}
			b := newTestBot(t, testConfig(), exchange, rec)

			err := b.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.StateStopped, b.State())
			assert.Zero(t, rec.count(), "a failed start emits no events")
			assert.Zero(t, exchange.tickerCallCount(), "no cycle may run after a failed start")
		})
	}
}

func TestBot_StartAlreadyRunning(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	b := newTestBot(t, testConfig(), exchange, rec)

	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	err := b.Start(context.Background())
	assert.ErrorIs(t, err, ports.ErrAlreadyRunning)
	assert.Equal(t, domain.StateRunning, b.State())
	assert.Len(t, rec.byType(domain.EventStarted), 1)
}

func TestBot_StopIsIdempotent(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	b := newTestBot(t, testConfig(), exchange, rec)

	b.Stop() // never started, nothing to do
	assert.Zero(t, rec.count())

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool {
		return exchange.tickerCallCount() >= 1
	}, time.Second, 5*time.Millisecond)

	b.Stop()
	b.Stop()
	b.Stop()

	assert.Equal(t, domain.StateStopped, b.State())
	assert.Len(t, rec.byType(domain.EventStopped), 1)
}

func TestBot_StartAfterStop(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	b := newTestBot(t, testConfig(), exchange, rec)

	require.NoError(t, b.Start(context.Background()))
	b.Stop()
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	assert.Equal(t, domain.StateRunning, b.State())
	assert.Len(t, rec.byType(domain.EventStarted), 2)
}

func TestBot_FirstCycleRunsImmediately(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	b := newTestBot(t, testConfig(), exchange, nil)

	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	// The poll interval is an hour, so only the immediate first cycle can
	// account for this call.
	require.Eventually(t, func() bool {
		return exchange.tickerCallCount() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestBot_PollingCadence(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond

	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	b := newTestBot(t, cfg, exchange, nil)

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool {
		return exchange.tickerCallCount() >= 3
	}, 2*time.Second, 5*time.Millisecond, "expected repeated cycles on the poll interval")

	b.Stop()
	time.Sleep(50 * time.Millisecond) // let any in-flight cycle drain
	stopped := exchange.tickerCallCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, exchange.tickerCallCount(), "no cycles may run after Stop")
}

func TestBot_RunCycle_BuyOpensPosition(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	signals := &mockSignals{signal: &domain.TradingSignal{
		Action:     domain.ActionBuy,
		Price:      100,
		Amount:     0.5,
		Reason:     "price crossed above SMA20",
		Confidence: 0.7,
	}}
	b := newTestBotWithSignals(t, testConfig(), exchange, rec, signals)

	b.runCycle(context.Background())

	orders := exchange.placedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.Buy, orders[0].side)
	assert.Equal(t, 0.5, orders[0].quantity)

	pos, ok := b.posStore.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.InDelta(t, 95.0, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 110.0, pos.TakeProfitPrice, 1e-9)
	assert.Equal(t, 0.5, pos.Amount)
	assert.False(t, pos.OpenedAt.IsZero())

	trades := rec.byType(domain.EventTrade)
	require.Len(t, trades, 1)
	assert.Equal(t, "user-1", trades[0].UserID)
	assert.Equal(t, "strat-1", trades[0].StrategyID)
	assert.Equal(t, "active-1", trades[0].ActiveStrategyID)
	assert.Equal(t, "ETHUSDT", trades[0].Pair)
	assert.False(t, trades[0].Time.IsZero())
	require.NotNil(t, trades[0].Signal)
	assert.Equal(t, "price crossed above SMA20", trades[0].Signal.Reason)
	require.NotNil(t, trades[0].Order)

	// The monitor phase ran in the same cycle with its own ticker fetch and
	// saw the fresh position inside its bands.
	assert.Equal(t, 2, exchange.tickerCallCount())
	assert.Zero(t, failureCount(b))
}

func TestBot_RunCycle_BuyOverwritesPosition(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	signals := &mockSignals{signal: &domain.TradingSignal{
		Action:     domain.ActionBuy,
		Price:      100,
		Amount:     0.5,
		Reason:     "price crossed above SMA20",
		Confidence: 0.7,
	}}
	b := newTestBotWithSignals(t, testConfig(), exchange, nil, signals)

	b.posStore.Set(domain.Position{
		Pair: "ETHUSDT", Amount: 0.2, EntryPrice: 90,
		StopLossPrice: 85.5, TakeProfitPrice: 99, OpenedAt: time.Now(),
	})

	b.runCycle(context.Background())

	require.Equal(t, 1, b.posStore.Len())
	pos, ok := b.posStore.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 0.5, pos.Amount)
	assert.InDelta(t, 95.0, pos.StopLossPrice, 1e-9)
}

func TestBot_RunCycle_SellClosesPosition(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	signals := &mockSignals{signal: &domain.TradingSignal{
		Action:     domain.ActionSell,
		Price:      100,
		Amount:     0.75,
		Reason:     "price crossed below SMA20",
		Confidence: 0.7,
	}}
	b := newTestBotWithSignals(t, testConfig(), exchange, rec, signals)

	b.posStore.Set(domain.Position{
		Pair: "ETHUSDT", Amount: 0.75, EntryPrice: 105,
		StopLossPrice: 99.75, TakeProfitPrice: 115.5, OpenedAt: time.Now(),
	})

	b.runCycle(context.Background())

	orders := exchange.placedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.Sell, orders[0].side)
	assert.Equal(t, 0.75, orders[0].quantity)
	assert.Zero(t, b.posStore.Len())
	assert.Len(t, rec.byType(domain.EventTrade), 1)

	// With the position gone the monitor phase had nothing to check.
	assert.Equal(t, 1, exchange.tickerCallCount())
}

func TestBot_MonitorProtectiveExits(t *testing.T) {
	pos := domain.Position{
		Pair: "ETHUSDT", Amount: 0.5, EntryPrice: 100,
		StopLossPrice: 95, TakeProfitPrice: 110, OpenedAt: time.Now().UTC(),
	}

	tests := []struct {
		name       string
		price      float64
		wantExit   bool
		wantReason string
	}{
		{name: "below stop loss", price: 94, wantExit: true, wantReason: "stop loss triggered"},
		{name: "exactly at stop loss", price: 95, wantExit: true, wantReason: "stop loss triggered"},
		{name: "above take profit", price: 111, wantExit: true, wantReason: "take profit triggered"},
		{name: "exactly at take profit", price: 110, wantExit: true, wantReason: "take profit triggered"},
		{name: "between the levels", price: 100, wantExit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": tt.price}}
			rec := &eventRecorder{}
			b := newTestBot(t, testConfig(), exchange, rec)
			b.posStore.Set(pos)

			b.runCycle(context.Background())

			if !tt.wantExit {
				assert.Empty(t, exchange.placedOrders())
				assert.Equal(t, 1, b.posStore.Len())
				return
			}

			orders := exchange.placedOrders()
			require.Len(t, orders, 1)
			assert.Equal(t, domain.Sell, orders[0].side)
			assert.Equal(t, pos.Amount, orders[0].quantity)
			assert.Zero(t, b.posStore.Len())

			trades := rec.byType(domain.EventTrade)
			require.Len(t, trades, 1)
			require.NotNil(t, trades[0].Signal)
			assert.Equal(t, tt.wantReason, trades[0].Signal.Reason)
			assert.Equal(t, 1.0, trades[0].Signal.Confidence)
			assert.Equal(t, tt.price, trades[0].Signal.Price)
			assert.Equal(t, domain.ActionSell, trades[0].Signal.Action)
		})
	}
}

func TestBot_MonitorRunsWhenTradePhaseFails(t *testing.T) {
	exchange := &mockExchange{
		prices:     map[string]float64{"ETHUSDT": 94},
		candlesErr: errors.New("kline endpoint flaked"),
	}
	rec := &eventRecorder{}
	b := newTestBot(t, testConfig(), exchange, rec)
	b.posStore.Set(domain.Position{
		Pair: "ETHUSDT", Amount: 0.5, EntryPrice: 100,
		StopLossPrice: 95, TakeProfitPrice: 110, OpenedAt: time.Now(),
	})

	b.runCycle(context.Background())

	require.Len(t, exchange.placedOrders(), 1, "stop loss must fire even when the data fetch fails")
	assert.Zero(t, b.posStore.Len())
	assert.Len(t, rec.byType(domain.EventTrade), 1)

	errs := rec.byType(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "candle fetch", errs[0].Context)
	assert.Zero(t, failureCount(b), "a lone non-critical failure does not count")
}

func TestBot_SignalEvaluationFailure(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	signals := &mockSignals{err: fmt.Errorf("indicator: %w", ports.ErrInsufficientData)}
	b := newTestBotWithSignals(t, testConfig(), exchange, rec, signals)

	b.runCycle(context.Background())

	errs := rec.byType(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "signal evaluation", errs[0].Context)
	assert.Empty(t, exchange.placedOrders())
	assert.Zero(t, failureCount(b))
}

func TestBot_ExecutionFailureEmitsErrorEvent(t *testing.T) {
	exchange := &mockExchange{
		prices:   map[string]float64{"ETHUSDT": 100},
		orderErr: fmt.Errorf("order rejected: %w", ports.ErrOrderPlacementFailed),
	}
	rec := &eventRecorder{}
	signals := &mockSignals{signal: &domain.TradingSignal{
		Action:     domain.ActionBuy,
		Price:      100,
		Amount:     0.5,
		Reason:     "price crossed above SMA20",
		Confidence: 0.7,
	}}
	b := newTestBotWithSignals(t, testConfig(), exchange, rec, signals)

	b.runCycle(context.Background())

	assert.Zero(t, b.posStore.Len(), "no position may be recorded for a failed order")
	assert.Empty(t, rec.byType(domain.EventTrade))

	errs := rec.byType(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "order placement", errs[0].Context)
	require.NotNil(t, errs[0].Signal)
	assert.ErrorIs(t, errs[0].Err, ports.ErrOrderPlacementFailed)
	assert.Zero(t, failureCount(b), "order rejections are not critical")
}

func TestBot_RunCycle_FailureAccounting(t *testing.T) {
	critical := func(pair string) error { return fmt.Errorf("%s: %w", pair, ports.ErrRateLimited) }

	tests := []struct {
		name      string
		pairs     []string
		priceErrs map[string]error
		wantFail  bool
	}{
		{
			name:     "all pairs healthy",
			pairs:    []string{"ETHUSDT", "BTCUSDT"},
			wantFail: false,
		},
		{
			name:      "critical minority with successes",
			pairs:     []string{"ETHUSDT", "BTCUSDT", "SOLUSDT"},
			priceErrs: map[string]error{"ETHUSDT": critical("ETHUSDT")},
			wantFail:  false,
		},
		{
			name:      "critical majority",
			pairs:     []string{"ETHUSDT", "BTCUSDT", "SOLUSDT"},
			priceErrs: map[string]error{"ETHUSDT": critical("ETHUSDT"), "BTCUSDT": critical("BTCUSDT")},
			wantFail:  true,
		},
		{
			name:      "only non-critical failures",
			pairs:     []string{"ETHUSDT", "BTCUSDT"},
			priceErrs: map[string]error{"ETHUSDT": errors.New("blip"), "BTCUSDT": errors.New("blip")},
			wantFail:  false,
		},
		{
			name:      "zero successes with one critical",
			pairs:     []string{"ETHUSDT", "BTCUSDT"},
			priceErrs: map[string]error{"ETHUSDT": critical("ETHUSDT"), "BTCUSDT": errors.New("blip")},
			wantFail:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := make(map[string]float64, len(tt.pairs))
			for _, p := range tt.pairs {
				prices[p] = 100
			}
			exchange := &mockExchange{prices: prices, priceErrs: tt.priceErrs}
			b := newTestBot(t, testConfig(tt.pairs...), exchange, nil)

			b.runCycle(context.Background())

			if tt.wantFail {
				assert.Equal(t, 1, failureCount(b))
			} else {
				assert.Zero(t, failureCount(b))
			}
		})
	}
}

func TestBot_CircuitBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 3

	exchange := &mockExchange{
		priceErrs: map[string]error{"ETHUSDT": fmt.Errorf("dial tcp: %w", ports.ErrConnectionFailed)},
	}
	rec := &eventRecorder{}
	b := newTestBot(t, cfg, exchange, rec)

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	markRunning(b, cancel)

	b.runCycle(loopCtx)
	b.runCycle(loopCtx)
	assert.Equal(t, 2, failureCount(b))
	assert.Equal(t, domain.StateRunning, b.State())
	assert.Empty(t, rec.byType(domain.EventCriticalError))

	b.runCycle(loopCtx) // third failure trips the breaker

	assert.Equal(t, domain.StateStopped, b.State())
	assert.Error(t, loopCtx.Err(), "tripping the breaker must cancel the loop")
	assert.Len(t, rec.byType(domain.EventStopped), 1)
	require.Len(t, rec.byType(domain.EventCriticalError), 1)
	assert.Len(t, rec.byType(domain.EventError), 3, "each failing cycle reports its pair error")

	// Stopping again emits nothing further.
	b.Stop()
	assert.Len(t, rec.byType(domain.EventStopped), 1)
	assert.Len(t, rec.byType(domain.EventCriticalError), 1)
}

func TestBot_FailureCounterResets(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 3

	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	b := newTestBot(t, cfg, exchange, nil)

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	markRunning(b, cancel)

	exchange.setPriceErr("ETHUSDT", fmt.Errorf("probe: %w", ports.ErrTimeout))
	b.runCycle(loopCtx)
	b.runCycle(loopCtx)
	assert.Equal(t, 2, failureCount(b))

	exchange.setPriceErr("ETHUSDT", nil)
	b.runCycle(loopCtx)
	assert.Zero(t, failureCount(b), "a healthy cycle resets the counter")

	exchange.setPriceErr("ETHUSDT", fmt.Errorf("probe: %w", ports.ErrTimeout))
	b.runCycle(loopCtx)
	assert.Equal(t, 1, failureCount(b))
	assert.Equal(t, domain.StateRunning, b.State())
}

func TestBot_RunCycleHonorsCancellation(t *testing.T) {
	exchange := &mockExchange{prices: map[string]float64{"ETHUSDT": 100}}
	rec := &eventRecorder{}
	b := newTestBot(t, testConfig(), exchange, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.runCycle(ctx)

	assert.Zero(t, exchange.tickerCallCount())
	assert.Zero(t, rec.count())
	assert.Zero(t, failureCount(b))
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "authentication", err: fmt.Errorf("x: %w", ports.ErrAuthenticationFailed), want: true},
		{name: "permissions", err: fmt.Errorf("x: %w", ports.ErrPermissionDenied), want: true},
		{name: "rate limit", err: fmt.Errorf("x: %w", ports.ErrRateLimited), want: true},
		{name: "connection refused", err: fmt.Errorf("x: %w", ports.ErrConnectionFailed), want: true},
		{name: "timeout", err: fmt.Errorf("x: %w", ports.ErrTimeout), want: true},
		{name: "insufficient data", err: fmt.Errorf("x: %w", ports.ErrInsufficientData), want: false},
		{name: "order rejection", err: fmt.Errorf("x: %w", ports.ErrOrderPlacementFailed), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCritical(tt.err))
		})
	}
}
