package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"sentinelbot/internal/adapters/binanceclient"
	"sentinelbot/internal/adapters/logger"
	"sentinelbot/internal/risk"
	"sentinelbot/internal/strategy"
)

var (
	pair        = flag.String("pair", "ETHUSDT", "trading pair to probe")
	interval    = flag.Duration("interval", time.Minute, "candle granularity")
	maxPosition = flag.Float64("max-position", 1000, "position size cap in quote currency")
	testnet     = flag.Bool("testnet", true, "use the spot testnet")
	logLevel    = flag.String("level", "warn", "log level for adapter output")
)

// signalprobe fetches live market data for one pair and runs a single
// crossover evaluation against it, printing the decision a bot would make.
func main() {
	flag.Parse()

	appLogger, err := logger.New(*logLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	// Market data endpoints are public; no credentials needed.
	client, err := binanceclient.New(binanceclient.Config{
		UseTestnet: *testnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	gen, err := strategy.New(strategy.Config{
		Risk: risk.Limits{
			MaxPositionSize:   *maxPosition,
			StopLossPercent:   5,
			TakeProfitPercent: 10,
		},
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal generator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	price, err := client.GetTicker(ctx, *pair)
	if err != nil {
		log.Fatalf("Error fetching ticker: %v", err)
	}

	candles, err := client.GetCandles(ctx, *pair, *interval, gen.RequiredCandles())
	if err != nil {
		log.Fatalf("Error fetching candles: %v", err)
	}

	fmt.Printf("Evaluating %s at %.2f against %d candles of %s...\n", *pair, price, len(candles), interval.String())
	sig, err := gen.Evaluate(ctx, *pair, price, candles, nil)
	if err != nil {
		log.Fatalf("Error evaluating signal: %v", err)
	}
	if sig == nil {
		fmt.Println("No signal: price is inside the moving-average band.")
		return
	}
	fmt.Printf("Signal: %s %s amount=%.6f price=%.2f confidence=%.2f\n", sig.Action, sig.Pair, sig.Amount, sig.Price, sig.Confidence)
	fmt.Printf("Reason: %s\n", sig.Reason)
}
