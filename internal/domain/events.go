package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventTypeOrderPaid = "order.paid"

// OrderPaidEvent is published once per order, when the payment webhook moves it
// from pending to processing.
type OrderPaidEvent struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Email           string          `json:"email"`
	Total           decimal.Decimal `json:"total"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (OrderPaidEvent) EventType() string { return EventTypeOrderPaid }
