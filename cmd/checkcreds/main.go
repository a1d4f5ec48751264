package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sentinelbot/internal/adapters/binanceclient"
	"sentinelbot/internal/adapters/logger"
	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
)

var (
	apiKey    = flag.String("key", "", "Binance API key (falls back to BINANCE_API_KEY)")
	apiSecret = flag.String("secret", "", "Binance API secret (falls back to BINANCE_API_SECRET)")
	testnet   = flag.Bool("testnet", true, "validate against the spot testnet")
	logLevel  = flag.String("level", "warn", "log level for adapter output")
	timeout   = flag.Duration("timeout", 15*time.Second, "request timeout")
)

// checkcreds proves an API key pair against the exchange before it goes into
// the fleet file, reporting the same verdicts a bot start would produce.
func main() {
	flag.Parse()
	_ = godotenv.Load()

	key := *apiKey
	if key == "" {
		key = os.Getenv("BINANCE_API_KEY")
	}
	secret := *apiSecret
	if secret == "" {
		secret = os.Getenv("BINANCE_API_SECRET")
	}
	creds := domain.Credentials{APIKey: key, APISecret: secret}
	if !creds.IsComplete() {
		fmt.Fprintln(os.Stderr, "an API key and secret are required (flags or BINANCE_API_KEY / BINANCE_API_SECRET)")
		flag.Usage()
		os.Exit(2)
	}

	appLogger, err := logger.New(*logLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	client, err := binanceclient.New(binanceclient.Config{
		Credentials: creds,
		UseTestnet:  *testnet,
		Logger:      appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("Checking exchange connectivity (testnet=%v)...\n", *testnet)
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("Exchange unreachable: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Exchange reachable.")

	fmt.Println("Validating credentials...")
	err = client.ValidateCredentials(ctx)
	switch {
	case err == nil:
		fmt.Println("Credentials are valid and the account is allowed to trade.")
	case errors.Is(err, ports.ErrAuthenticationFailed):
		fmt.Println("Credentials rejected: the exchange does not accept this key/secret pair.")
		os.Exit(1)
	case errors.Is(err, ports.ErrPermissionDenied):
		fmt.Println("Credentials accepted, but the account is not allowed to trade.")
		os.Exit(1)
	default:
		fmt.Printf("Credential validation could not be completed: %v\n", err)
		os.Exit(1)
	}
}
