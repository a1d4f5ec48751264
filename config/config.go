package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all daemon-level configuration. Per-bot settings (credentials,
// pairs, risk limits) live in the bots file loaded via LoadBots.
type Config struct {
	// Bot fleet
	BotsFile string // Path to the YAML file defining the bots to run

	// Worker cadence
	PollInterval     time.Duration // How often each bot evaluates its pairs
	FailureThreshold int           // Consecutive failed cycles before a bot halts itself
	CandleInterval   time.Duration // Candle granularity requested from the exchange

	// Per-bot risk defaults, applied when a bot definition omits them
	DefaultMaxPositionSize   float64 // Quote-currency cap per position
	DefaultStopLossPercent   float64 // e.g. 5.0 for 5%
	DefaultTakeProfitPercent float64 // e.g. 10.0 for 10%

	// Exchange
	UseTestnet bool

	// Event stream
	EventBuffer int // Capacity of the shared event channel

	// Database
	DBPath string

	// Logging
	LogLevel string // zap level name: debug, info, warn, error
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Bot fleet
	cfg.BotsFile = getEnv("BOTS_FILE", "./config/bots.yaml")
	if cfg.BotsFile == "" {
		errs = append(errs, "BOTS_FILE must be set")
	}

	// Worker cadence
	pollSeconds, err := getEnvAsIntRequired("POLL_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.FailureThreshold, err = getEnvAsIntRequired("FAILURE_THRESHOLD", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FAILURE_THRESHOLD: %v", err))
	} else if cfg.FailureThreshold <= 0 {
		errs = append(errs, "FAILURE_THRESHOLD must be positive")
	}

	candleSeconds, err := getEnvAsIntRequired("CANDLE_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_INTERVAL_SECONDS: %v", err))
	} else if candleSeconds <= 0 {
		errs = append(errs, "CANDLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CandleInterval = time.Duration(candleSeconds) * time.Second

	// Per-bot risk defaults
	cfg.DefaultMaxPositionSize, err = getEnvAsFloatRequired("DEFAULT_MAX_POSITION_SIZE", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_MAX_POSITION_SIZE: %v", err))
	} else if cfg.DefaultMaxPositionSize <= 0 {
		errs = append(errs, "DEFAULT_MAX_POSITION_SIZE must be positive")
	}

	cfg.DefaultStopLossPercent, err = getEnvAsFloatRequired("DEFAULT_STOP_LOSS_PERCENT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_STOP_LOSS_PERCENT: %v", err))
	} else if cfg.DefaultStopLossPercent <= 0 || cfg.DefaultStopLossPercent >= 100 {
		errs = append(errs, "DEFAULT_STOP_LOSS_PERCENT must be between 0 and 100 (exclusive)")
	}

	cfg.DefaultTakeProfitPercent, err = getEnvAsFloatRequired("DEFAULT_TAKE_PROFIT_PERCENT", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_TAKE_PROFIT_PERCENT: %v", err))
	} else if cfg.DefaultTakeProfitPercent <= 0 {
		errs = append(errs, "DEFAULT_TAKE_PROFIT_PERCENT must be positive")
	}

	// Exchange
	cfg.UseTestnet = getEnvAsBool("USE_TESTNET", true) // Default to testnet for safety

	// Event stream
	cfg.EventBuffer = getEnvAsInt("EVENT_BUFFER", 256)
	if cfg.EventBuffer <= 0 {
		errs = append(errs, "EVENT_BUFFER must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/sentinelbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
