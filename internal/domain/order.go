package domain

import "time"

// Order represents the essential details returned after placing an order.
type Order struct {
	ID            string    // Exchange's order ID
	ClientOrderID string    // Client-generated order ID
	Pair          string    // Trading pair for the order
	Side          OrderSide // Order side (BUY, SELL)
	Quantity      float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	AvgPrice      float64   // Average filled price (0 if not yet filled)
	Status        string    // Order status (e.g., NEW, FILLED)
	Time          time.Time // Time the order response was generated
}
