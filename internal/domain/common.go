package domain

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// SignalAction represents the direction a trading signal asks for.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
)

// OrderSide maps a signal action onto the exchange order side.
func (a SignalAction) OrderSide() OrderSide {
	if a == ActionSell {
		return Sell
	}
	return Buy
}

// BotState represents the lifecycle state of a bot worker.
type BotState string

const (
	StateStopped BotState = "stopped"
	StateRunning BotState = "running"
)

// EventType classifies the events a bot worker emits over its lifetime.
type EventType string

const (
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventTrade         EventType = "trade"
	EventError         EventType = "error"
	EventCriticalError EventType = "critical_error"
)
