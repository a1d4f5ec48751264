package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
)

// DefaultEventBuffer is the capacity of the manager's event channel.
const DefaultEventBuffer = 256

// Key identifies a bot in the registry. A user may run several strategies at
// once, but at most one bot per activated strategy.
type Key struct {
	UserID           string
	ActiveStrategyID string
}

// ManagerConfig holds the shared collaborators and defaults handed to every
// bot the manager creates.
type ManagerConfig struct {
	NewExchange ports.ExchangeFactory
	Logger      ports.Logger

	EventBuffer             int           // Event channel capacity (DefaultEventBuffer when zero)
	DefaultPollInterval     time.Duration // Applied to bots created without one
	DefaultFailureThreshold int           // Applied to bots created without one
}

// Manager is the registry of live bots. It owns the merged event stream and
// guarantees at most one bot per (user, active strategy) key. A bot whose
// circuit breaker trips stays registered in the stopped state so it can be
// inspected or restarted.
type Manager struct {
	cfg    ManagerConfig
	logger ports.Logger
	events chan domain.Event

	mu   sync.RWMutex
	bots map[Key]*Bot
}

// NewManager constructs an empty registry.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.NewExchange == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for manager: %w", ports.ErrConfigurationError)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan domain.Event, cfg.EventBuffer),
		bots:   make(map[Key]*Bot),
	}, nil
}

// Events exposes the merged event stream of every managed bot. The channel
// is never closed; consumers simply stop reading when they shut down.
func (m *Manager) Events() <-chan domain.Event {
	return m.events
}

// Create registers a new bot in the stopped state. Manager-level defaults
// fill in the poll interval and failure threshold when the config leaves
// them zero. Creating a second bot under the same key fails with
// ErrDuplicateBot.
func (m *Manager) Create(cfg Config) (*Bot, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = m.cfg.DefaultPollInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = m.cfg.DefaultFailureThreshold
	}

	key := Key{UserID: cfg.UserID, ActiveStrategyID: cfg.ActiveStrategyID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[key]; exists {
		return nil, fmt.Errorf("bot for user %s / strategy %s: %w", key.UserID, key.ActiveStrategyID, ports.ErrDuplicateBot)
	}

	b, err := New(cfg, Deps{
		NewExchange: m.cfg.NewExchange,
		Logger:      m.logger,
		Emit:        m.publish,
	})
	if err != nil {
		return nil, err
	}

	m.bots[key] = b
	m.logger.Info(context.Background(), "Create: bot registered", map[string]interface{}{
		"userID":           key.UserID,
		"activeStrategyID": key.ActiveStrategyID,
		"pairs":            cfg.Pairs,
	})
	return b, nil
}

// Get returns the bot registered under (userID, activeStrategyID).
func (m *Manager) Get(userID, activeStrategyID string) (*Bot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[Key{UserID: userID, ActiveStrategyID: activeStrategyID}]
	return b, ok
}

// Len returns the number of registered bots.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bots)
}

// StopAndRemove deletes the bot from the registry first, so no caller can
// grab it mid-shutdown, then stops it. It reports whether a bot was found.
func (m *Manager) StopAndRemove(userID, activeStrategyID string) bool {
	key := Key{UserID: userID, ActiveStrategyID: activeStrategyID}

	m.mu.Lock()
	b, ok := m.bots[key]
	if ok {
		delete(m.bots, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	b.Stop()
	m.logger.Info(context.Background(), "StopAndRemove: bot removed", map[string]interface{}{
		"userID":           key.UserID,
		"activeStrategyID": key.ActiveStrategyID,
	})
	return true
}

// StopAll stops every bot concurrently and empties the registry. It returns
// once all Stop calls have completed.
func (m *Manager) StopAll() {
	m.mu.Lock()
	bots := m.bots
	m.bots = make(map[Key]*Bot)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, b := range bots {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			b.Stop()
		}(b)
	}
	wg.Wait()

	m.logger.Info(context.Background(), "StopAll: all bots stopped", map[string]interface{}{
		"stopped": len(bots),
	})
}

// Snapshot returns a copy of the registry keyed by (user, active strategy).
// Mutating the returned map does not affect the manager.
func (m *Manager) Snapshot() map[Key]*Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Key]*Bot, len(m.bots))
	for k, v := range m.bots {
		out[k] = v
	}
	return out
}

// publish forwards an event without ever blocking a worker. When the buffer
// is full the event is dropped and logged.
func (m *Manager) publish(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn(context.Background(), "publish: event buffer full, dropping event", map[string]interface{}{
			"type":   string(ev.Type),
			"userID": ev.UserID,
		})
	}
}
