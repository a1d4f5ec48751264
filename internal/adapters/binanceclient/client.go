// Package binanceclient adapts the Binance spot REST API to the exchange
// port used by the trading workers.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.ExchangeClient interface using the go-binance
// spot client.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	Credentials domain.Credentials
	UseTestnet  bool
	Logger      ports.Logger
}

// New creates a new Binance spot client adapter. Construction never touches
// the network; the credentials are only proven by ValidateCredentials.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.Credentials.APIKey, cfg.Credentials.APISecret)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Debug(context.Background(), "Binance spot client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{spot: client, logger: cfg.Logger}, nil
}

// Factory returns an exchange factory that builds one client per credential
// set, sharing the logger and the environment selection.
func Factory(logger ports.Logger, useTestnet bool) ports.ExchangeFactory {
	return func(creds domain.Credentials) (ports.ExchangeClient, error) {
		return New(Config{Credentials: creds, UseTestnet: useTestnet, Logger: logger})
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / too many orders
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1002, -1022, -2014: // Unauthorized / invalid signature / API-key format invalid
			mappedErr = ports.ErrAuthenticationFailed
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrPermissionDenied
		case -1013, -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1130: // Filter and parameter errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2013: // Order does not exist
			mappedErr = ports.ErrNotFound
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// ValidateCredentials proves the configured API key against the account
// endpoint. Keys that authenticate but are not allowed to trade are rejected.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	op := "ValidateCredentials"
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	if !account.CanTrade {
		err := fmt.Errorf("%s failed: account is not allowed to trade: %w", op, ports.ErrPermissionDenied)
		c.logger.Error(ctx, err, op+": account cannot trade")
		return err
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetTicker retrieves the last traded price for a given symbol.
func (c *Client) GetTicker(ctx context.Context, pair string) (float64, error) {
	op := "GetTicker"
	prices, err := c.spot.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", pair)
		return 0, c.handleError(ctx, err, op) // Wrap with handleError for logging
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetCandles retrieves the most recent historical candles for the given
// symbol, newest last, exactly as the exchange returns them.
func (c *Client) GetCandles(ctx context.Context, pair string, granularity time.Duration, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	interval, err := intervalString(granularity)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines, err := c.spot.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// PlaceMarketOrder places a market order with a generated client order ID so
// retries stay traceable on the exchange side.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*domain.Order, error) {
	op := "PlaceMarketOrder"
	if quantity <= 0 {
		return nil, fmt.Errorf("%s failed: quantity must be positive, got %f: %w", op, quantity, ports.ErrInvalidRequest)
	}

	res, err := c.spot.NewCreateOrderService().
		Symbol(pair).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order := translateOrderResponse(res)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   pair,
		"side":     string(side),
		"quantity": formatQuantity(quantity),
		"orderID":  order.ID,
		"avgPrice": order.AvgPrice,
	})
	return order, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// --- Translation Helpers ---

var intervalStrings = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
	72 * time.Hour:   "3d",
	168 * time.Hour:  "1w",
}

func intervalString(granularity time.Duration) (string, error) {
	s, ok := intervalStrings[granularity]
	if !ok {
		return "", fmt.Errorf("unsupported candle granularity %s: %w", granularity, ports.ErrInvalidRequest)
	}
	return s, nil
}

// formatQuantity renders an order quantity with the lot precision of the
// supported majors.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 3, 64)
}

func translateOrderResponse(res *binance.CreateOrderResponse) *domain.Order {
	if res == nil {
		return nil
	}
	origQty, _ := strconv.ParseFloat(res.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(res.CummulativeQuoteQuantity, 64)

	// Spot market orders report no price; derive the average fill price from
	// the cumulative quote volume.
	avgPrice := 0.0
	if execQty > 0 {
		avgPrice = quoteQty / execQty
	}

	return &domain.Order{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Pair:          res.Symbol,
		Side:          domain.OrderSide(res.Side),
		Quantity:      origQty,
		ExecutedQty:   execQty,
		AvgPrice:      avgPrice,
		Status:        string(res.Status),
		Time:          time.UnixMilli(res.TransactTime),
	}
}

func translateKline(k *binance.Kline) (domain.Candle, error) {
	if k == nil {
		return domain.Candle{}, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}
