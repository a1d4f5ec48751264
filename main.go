package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinelbot/config"
	"sentinelbot/internal/adapters/binanceclient"
	"sentinelbot/internal/adapters/logger"
	"sentinelbot/internal/adapters/sqlite"
	"sentinelbot/internal/bot"
	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
)

// startTimeout bounds the credential probe each bot performs on Start.
const startTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Event Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize event store")
		log.Fatalf("FATAL: Failed to initialize event store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing event store")
		}
	}()

	// 4. Initialize Bot Manager
	manager, err := bot.NewManager(bot.ManagerConfig{
		NewExchange:             binanceclient.Factory(appLogger, cfg.UseTestnet),
		Logger:                  appLogger,
		EventBuffer:             cfg.EventBuffer,
		DefaultPollInterval:     cfg.PollInterval,
		DefaultFailureThreshold: cfg.FailureThreshold,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize bot manager")
		log.Fatalf("FATAL: Failed to initialize bot manager: %v", err)
	}
	appLogger.Info(ctx, "Bot manager initialized", map[string]interface{}{"testnet": cfg.UseTestnet})

	// 5. Consume the event stream, persisting it for audit
	shutdown := make(chan struct{})
	consumerDone := make(chan struct{})
	go consumeEvents(ctx, appLogger, store, manager.Events(), shutdown, consumerDone)

	// 6. Load fleet definitions and start the bots
	defs, err := config.LoadBots(cfg.BotsFile)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load bot definitions")
		log.Fatalf("FATAL: Failed to load bot definitions: %v", err)
	}

	started := 0
	for _, def := range defs {
		b, err := manager.Create(botConfig(cfg, def))
		if err != nil {
			appLogger.Error(ctx, err, "Skipping bot: registration failed", map[string]interface{}{
				"userID":           def.UserID,
				"activeStrategyID": def.ActiveStrategyID,
			})
			continue
		}

		startCtx, cancel := context.WithTimeout(ctx, startTimeout)
		err = b.Start(startCtx)
		cancel()
		if err != nil {
			appLogger.Error(ctx, err, "Bot failed to start", map[string]interface{}{
				"userID":           def.UserID,
				"activeStrategyID": def.ActiveStrategyID,
			})
			continue
		}
		started++
	}
	if started == 0 {
		err := fmt.Errorf("no bots could be started (%d defined)", len(defs))
		appLogger.Error(ctx, err, "FATAL: Fleet startup failed")
		log.Fatalf("FATAL: %v", err)
	}
	appLogger.Info(ctx, "Fleet started", map[string]interface{}{"started": started, "defined": len(defs)})

	// 7. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})

	// 8. Stop every bot, then let the consumer drain whatever the stopping
	// bots emitted before the store closes.
	manager.StopAll()
	close(shutdown)
	<-consumerDone

	appLogger.Info(ctx, "Application finished gracefully.")
}

// consumeEvents persists every event the fleet emits. After shutdown closes
// it drains the buffered remainder before signalling done.
func consumeEvents(ctx context.Context, appLogger ports.Logger, repo ports.EventRepository, events <-chan domain.Event, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-events:
			persistEvent(ctx, appLogger, repo, ev)
		case <-shutdown:
			for {
				select {
				case ev := <-events:
					persistEvent(ctx, appLogger, repo, ev)
				default:
					return
				}
			}
		}
	}
}

// persistEvent routes an event to the matching event store table.
func persistEvent(ctx context.Context, appLogger ports.Logger, repo ports.EventRepository, ev domain.Event) {
	var err error
	if ev.Type == domain.EventTrade {
		_, err = repo.SaveTrade(ctx, &ev)
	} else {
		_, err = repo.SaveBotEvent(ctx, &ev)
	}
	if err != nil {
		appLogger.Error(ctx, err, "Failed to persist event", map[string]interface{}{"type": ev.Type, "userID": ev.UserID})
	}
}

// botConfig merges a fleet definition with the daemon-level defaults.
func botConfig(cfg *config.Config, def config.BotDefinition) bot.Config {
	bc := bot.Config{
		UserID:            def.UserID,
		StrategyID:        def.StrategyID,
		ActiveStrategyID:  def.ActiveStrategyID,
		Credentials:       domain.Credentials{APIKey: def.APIKey, APISecret: def.APISecret},
		Pairs:             def.Pairs,
		MaxPositionSize:   def.MaxPositionSize,
		StopLossPercent:   def.StopLossPercent,
		TakeProfitPercent: def.TakeProfitPercent,
		CandleInterval:    cfg.CandleInterval,
	}
	if bc.MaxPositionSize == 0 {
		bc.MaxPositionSize = cfg.DefaultMaxPositionSize
	}
	if bc.StopLossPercent == 0 {
		bc.StopLossPercent = cfg.DefaultStopLossPercent
	}
	if bc.TakeProfitPercent == 0 {
		bc.TakeProfitPercent = cfg.DefaultTakeProfitPercent
	}
	return bc
}
