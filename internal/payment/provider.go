// Package payment talks to the hosted checkout provider: it opens payment
// sessions for orders and turns signed webhook deliveries into typed events.
package payment

import (
	"context"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"

	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ParseEvent(payload []byte, signatureHeader string) (Event, error)
}

// SessionRequest carries the persisted order lines; the provider charges
// exactly these names, prices and quantities.
type SessionRequest struct {
	OrderID     string
	UserID      string
	Email       string
	Lines       []domain.OrderLine
	ShippingFee decimal.Decimal
	Currency    string
	SuccessURL  string
	CancelURL   string
}

type Session struct {
	ID  string
	URL string
}

// Event is one verified provider notification. The concrete types are
// CheckoutCompleted, PaymentSucceeded, PaymentFailed and Unhandled.
type Event interface {
	Kind() string
}

type CheckoutCompleted struct {
	EventID         string
	SessionID       string
	OrderID         string
	UserID          string
	PaymentIntentID string
}

func (CheckoutCompleted) Kind() string { return EventCheckoutCompleted }

type PaymentSucceeded struct {
	EventID         string
	PaymentIntentID string
}

func (PaymentSucceeded) Kind() string { return EventPaymentSucceeded }

type PaymentFailed struct {
	EventID         string
	PaymentIntentID string
	Reason          string
}

func (PaymentFailed) Kind() string { return EventPaymentFailed }

// Unhandled is any event type this service does not act on yet.
type Unhandled struct {
	EventID string
	Type    string
}

func (u Unhandled) Kind() string { return u.Type }

// MinorUnits converts a decimal amount to the provider's integer minor unit,
// rounding half away from zero (49.995 -> 5000).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
