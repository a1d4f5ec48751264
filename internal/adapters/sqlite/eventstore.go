package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sentinelbot/internal/domain"
	"sentinelbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// defaultTradeLimit caps RecentTrades queries that pass a non-positive limit.
const defaultTradeLimit = 50

// Store implements the ports.EventRepository interface using SQLite.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite event store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (creating if necessary) the event database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite event store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/sentinelbot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite event store initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite event store initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite event store initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	store := &Store{db: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite event store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return store, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		active_strategy_id TEXT NOT NULL,
		pair TEXT NOT NULL,
		action TEXT NOT NULL,
		price REAL NOT NULL,
		amount REAL NOT NULL,
		reason TEXT NOT NULL,
		confidence REAL NOT NULL,
		order_id TEXT DEFAULT NULL,
		client_order_id TEXT DEFAULT NULL,
		order_status TEXT DEFAULT NULL,
		executed_qty REAL DEFAULT NULL,
		avg_price REAL DEFAULT NULL,
		event_time TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bot_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		active_strategy_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		pair TEXT DEFAULT NULL,
		context TEXT DEFAULT NULL,
		error_message TEXT DEFAULT NULL,
		event_time TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trade_events_user_time ON trade_events (user_id, event_time);
	CREATE INDEX IF NOT EXISTS idx_bot_events_user_time ON bot_events (user_id, event_time);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// --- EventRepository Implementation ---

// SaveTrade persists a trade event and returns its assigned ID.
func (s *Store) SaveTrade(ctx context.Context, ev *domain.Event) (int64, error) {
	if ev == nil || ev.Signal == nil {
		return 0, fmt.Errorf("trade event must carry a signal: %w", ports.ErrInvalidRequest)
	}

	const query = `
	INSERT INTO trade_events (user_id, strategy_id, active_strategy_id, pair, action, price,
	                          amount, reason, confidence, order_id, client_order_id, order_status,
	                          executed_qty, avg_price, event_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var (
		orderID, clientOrderID, orderStatus sql.NullString
		executedQty, avgPrice               sql.NullFloat64
	)
	if ev.Order != nil {
		orderID = sql.NullString{String: ev.Order.ID, Valid: true}
		clientOrderID = sql.NullString{String: ev.Order.ClientOrderID, Valid: true}
		orderStatus = sql.NullString{String: ev.Order.Status, Valid: true}
		executedQty = sql.NullFloat64{Float64: ev.Order.ExecutedQty, Valid: true}
		avgPrice = sql.NullFloat64{Float64: ev.Order.AvgPrice, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		ev.UserID, ev.StrategyID, ev.ActiveStrategyID, ev.Pair, string(ev.Signal.Action), ev.Signal.Price,
		ev.Signal.Amount, ev.Signal.Reason, ev.Signal.Confidence, orderID, clientOrderID, orderStatus,
		executedQty, avgPrice, ev.Time)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade event for %s: %w: %w", ev.Pair, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade event on %s: %w", ev.Pair, err)
	}
	s.logger.Debug(ctx, "Trade event stored", map[string]interface{}{"eventID": id, "pair": ev.Pair, "action": ev.Signal.Action})
	return id, nil
}

// SaveBotEvent persists a lifecycle or failure event and returns its assigned ID.
func (s *Store) SaveBotEvent(ctx context.Context, ev *domain.Event) (int64, error) {
	if ev == nil {
		return 0, fmt.Errorf("bot event must not be nil: %w", ports.ErrInvalidRequest)
	}

	const query = `
	INSERT INTO bot_events (user_id, strategy_id, active_strategy_id, event_type, pair, context, error_message, event_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var pair, opContext, errMsg sql.NullString
	if ev.Pair != "" {
		pair = sql.NullString{String: ev.Pair, Valid: true}
	}
	if ev.Context != "" {
		opContext = sql.NullString{String: ev.Context, Valid: true}
	}
	if ev.Err != nil {
		errMsg = sql.NullString{String: ev.Err.Error(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		ev.UserID, ev.StrategyID, ev.ActiveStrategyID, string(ev.Type), pair, opContext, errMsg, ev.Time)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s event for user %s: %w: %w", ev.Type, ev.UserID, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for %s event: %w", ev.Type, err)
	}
	s.logger.Debug(ctx, "Bot event stored", map[string]interface{}{"eventID": id, "type": ev.Type, "userID": ev.UserID})
	return id, nil
}

// RecentTrades retrieves the most recent trade events for a user, newest first.
func (s *Store) RecentTrades(ctx context.Context, userID string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}

	const query = `
	SELECT user_id, strategy_id, active_strategy_id, pair, action, price, amount,
	       reason, confidence, order_id, client_order_id, order_status, executed_qty,
	       avg_price, event_time
	FROM trade_events
	WHERE user_id = ?
	ORDER BY event_time DESC, id DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade events for user %s: %w: %w", userID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		ev, err := scanTradeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade event during RecentTrades: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade event rows: %w", err)
	}
	return events, nil
}

// --- Row Scanning Helpers ---

// scanner defines an interface compatible with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTradeEvent scans a single row into a domain.Event, rebuilding the
// signal and, when the row carries order columns, the executed order.
func scanTradeEvent(sc scanner) (*domain.Event, error) {
	var (
		ev     domain.Event
		sig    domain.TradingSignal
		action string

		orderID, clientOrderID, orderStatus sql.NullString
		executedQty, avgPrice               sql.NullFloat64
	)

	err := sc.Scan(
		&ev.UserID, &ev.StrategyID, &ev.ActiveStrategyID, &ev.Pair, &action, &sig.Price, &sig.Amount,
		&sig.Reason, &sig.Confidence, &orderID, &clientOrderID, &orderStatus, &executedQty,
		&avgPrice, &ev.Time,
	)
	if err != nil {
		return nil, err // Let caller check sql.ErrNoRows
	}

	ev.Type = domain.EventTrade
	sig.Pair = ev.Pair
	sig.Action = domain.SignalAction(action)
	ev.Signal = &sig

	if orderID.Valid {
		ev.Order = &domain.Order{
			ID:            orderID.String,
			ClientOrderID: clientOrderID.String,
			Pair:          ev.Pair,
			Side:          sig.Action.OrderSide(),
			Quantity:      sig.Amount,
			ExecutedQty:   executedQty.Float64,
			AvgPrice:      avgPrice.Float64,
			Status:        orderStatus.String,
			Time:          ev.Time,
		}
	}
	return &ev, nil
}
