package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrPermissionDenied     = errors.New("API keys lack the required permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrInsufficientData     = errors.New("not enough market data for the operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Bot Lifecycle Errors
	ErrInvalidCredentials         = errors.New("exchange rejected the supplied credentials")
	ErrInsufficientPermissions    = errors.New("credentials are valid but lack trading permissions")
	ErrCredentialValidationFailed = errors.New("credential validation could not be completed")
	ErrAlreadyRunning             = errors.New("bot is already running")
	ErrDuplicateBot               = errors.New("a bot already exists for this user and strategy")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
