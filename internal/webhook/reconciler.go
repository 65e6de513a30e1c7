// Package webhook applies verified payment provider events to orders.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
)

// ErrAnnounceFailed means the order was paid but its OrderPaidEvent could not
// be published. The event should be redelivered so the announcement is retried.
var ErrAnnounceFailed = errors.New("announce paid order")

type OrderStore interface {
	MarkProcessing(ctx context.Context, id, paymentIntentID string) (*domain.Order, bool, error)
	// ClaimPaidAnnouncement reports whether the caller won the right to
	// publish the order's paid event. ReleasePaidAnnouncement gives it back.
	ClaimPaidAnnouncement(ctx context.Context, id string) (bool, error)
	ReleasePaidAnnouncement(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Outcome is what applying an event did. It is also the metric label.
type Outcome string

const (
	OutcomeTransitioned  Outcome = "transitioned"
	OutcomeReplayed      Outcome = "replayed"
	OutcomeReannounced   Outcome = "reannounced"
	OutcomeOrderNotFound Outcome = "order_not_found"
	OutcomeMissingOrder  Outcome = "missing_order_id"
	OutcomeObserved      Outcome = "observed"
	OutcomeIgnored       Outcome = "ignored"
)

type Reconciler struct {
	orders    OrderStore
	publisher Publisher
	logger    *slog.Logger
	events    metric.Int64Counter
}

// NewReconciler builds a Reconciler. publisher may be nil, in which case
// paid orders are not announced.
func NewReconciler(orders OrderStore, publisher Publisher, logger *slog.Logger) (*Reconciler, error) {
	events, err := otel.Meter("webhook").Int64Counter("storefront.webhook.events",
		metric.WithDescription("Payment provider events by type and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Reconciler{
		orders:    orders,
		publisher: publisher,
		logger:    logger,
		events:    events,
	}, nil
}

// Apply is safe to call repeatedly with the same event. Store failures and
// failed announcements are returned as errors; a paid order whose event was
// never published is announced on the next delivery.
func (rc *Reconciler) Apply(ctx context.Context, event payment.Event) (Outcome, error) {
	outcome, err := rc.apply(ctx, event)
	if err == nil {
		rc.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", event.Kind()),
			attribute.String("outcome", string(outcome)),
		))
	}
	return outcome, err
}

func (rc *Reconciler) apply(ctx context.Context, event payment.Event) (Outcome, error) {
	switch e := event.(type) {
	case payment.CheckoutCompleted:
		return rc.checkoutCompleted(ctx, e)

	case payment.PaymentSucceeded:
		// No transition yet: completed is reached through fulfilment.
		rc.logger.Info("payment succeeded", "event_id", e.EventID, "payment_intent_id", e.PaymentIntentID)
		return OutcomeObserved, nil

	case payment.PaymentFailed:
		rc.logger.Warn("payment failed", "event_id", e.EventID, "payment_intent_id", e.PaymentIntentID, "reason", e.Reason)
		return OutcomeObserved, nil

	default:
		rc.logger.Debug("ignoring webhook event", "type", event.Kind())
		return OutcomeIgnored, nil
	}
}

func (rc *Reconciler) checkoutCompleted(ctx context.Context, e payment.CheckoutCompleted) (Outcome, error) {
	if e.OrderID == "" {
		rc.logger.Warn("checkout completed without order id", "event_id", e.EventID, "session_id", e.SessionID)
		return OutcomeMissingOrder, nil
	}

	order, transitioned, err := rc.orders.MarkProcessing(ctx, e.OrderID, e.PaymentIntentID)
	if err != nil {
		return "", fmt.Errorf("%w: mark order %s processing: %w", domain.ErrPersistence, e.OrderID, err)
	}

	if order == nil {
		rc.logger.Warn("order not found", "event_id", e.EventID, "order_id", e.OrderID, "session_id", e.SessionID)
		return OutcomeOrderNotFound, nil
	}

	if !transitioned {
		if order.Status.IsTerminal() {
			rc.logger.Warn("checkout completed for closed order", "event_id", e.EventID, "order_id", order.ID, "status", order.Status)
			return OutcomeReplayed, nil
		}
		rc.logger.Info("checkout completion already applied", "event_id", e.EventID, "order_id", order.ID, "status", order.Status)
	} else {
		rc.logger.Info("order marked processing", "event_id", e.EventID, "order_id", order.ID, "payment_intent_id", e.PaymentIntentID)
	}

	if order.Status != domain.OrderStatusProcessing {
		return OutcomeReplayed, nil
	}

	announced, err := rc.announce(ctx, order)
	if err != nil {
		return "", err
	}

	switch {
	case transitioned:
		return OutcomeTransitioned, nil
	case announced:
		return OutcomeReannounced, nil
	default:
		return OutcomeReplayed, nil
	}
}

// announce publishes the OrderPaidEvent at most once per order. A failed
// publish releases the claim so a later delivery can retry it.
func (rc *Reconciler) announce(ctx context.Context, order *domain.Order) (bool, error) {
	if rc.publisher == nil {
		return false, nil
	}

	claimed, err := rc.orders.ClaimPaidAnnouncement(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("%w: claim announcement for order %s: %w", domain.ErrPersistence, order.ID, err)
	}
	if !claimed {
		return false, nil
	}

	event := domain.OrderPaidEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Email:           order.Shipping.Email,
		Total:           order.Total,
		PaymentIntentID: order.PaymentIntentID,
		Timestamp:       time.Now().UTC(),
	}
	if err := rc.publisher.Publish(ctx, order.ID, event); err != nil {
		if releaseErr := rc.orders.ReleasePaidAnnouncement(context.WithoutCancel(ctx), order.ID); releaseErr != nil {
			rc.logger.Error("failed to release announcement claim", "error", releaseErr, "order_id", order.ID)
		}
		return false, fmt.Errorf("%w: order %s: %w", ErrAnnounceFailed, order.ID, err)
	}

	return true, nil
}
