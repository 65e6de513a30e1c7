package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
)

const testSecret = "whsec_test_secret"

const completedPayload = `{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_1",
		"object": "checkout.session",
		"payment_intent": "pi_1",
		"metadata": {"order_id": "order-1", "user_id": "user-1"}
	}}
}`

func signedRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(string(signed.Payload)))
	req.Header.Set(SignatureHeader, signed.Header)
	return req
}

func newTestHandler(t *testing.T, store *fakeOrderStore) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test", WebhookSecret: testSecret})
	return NewHandler(provider, newTestReconciler(t, store, nil), logger)
}

func TestHandler_HandlePayment(t *testing.T) {
	t.Run("acknowledges and applies a verified event", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		handler := newTestHandler(t, store)

		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if strings.TrimSpace(rec.Body.String()) != `{"received":true}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
		if got := store.get("order-1").Status; got != domain.OrderStatusProcessing {
			t.Errorf("expected processing, got %s", got)
		}
	})

	t.Run("replay is acknowledged with the same final state", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		handler := newTestHandler(t, store)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))
			if rec.Code != http.StatusOK {
				t.Fatalf("delivery %d: expected status 200, got %d", i+1, rec.Code)
			}
		}

		order := store.get("order-1")
		if order.Status != domain.OrderStatusProcessing || order.PaymentIntentID != "pi_1" {
			t.Errorf("unexpected order state: %s %s", order.Status, order.PaymentIntentID)
		}
	})

	t.Run("invalid signature is rejected without mutation", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		handler := newTestHandler(t, store)

		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, "whsec_attacker"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if store.calls != 0 {
			t.Errorf("expected no store calls, got %d", store.calls)
		}
		if got := store.get("order-1").Status; got != domain.OrderStatusPending {
			t.Errorf("expected pending, got %s", got)
		}
	})

	t.Run("missing signature header is rejected", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		handler := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(completedPayload))
		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if store.calls != 0 {
			t.Errorf("expected no store calls, got %d", store.calls)
		}
	})

	t.Run("unknown order is still acknowledged", func(t *testing.T) {
		store := newFakeOrderStore()
		handler := newTestHandler(t, store)

		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if len(store.orders) != 0 {
			t.Errorf("expected no orders to be created, got %d", len(store.orders))
		}
	})

	t.Run("store outage asks the provider to redeliver", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		store.err = errors.New("connection refused")
		handler := newTestHandler(t, store)

		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "connection refused") {
			t.Errorf("internal error leaked: %s", rec.Body.String())
		}
	})

	t.Run("failed announcement asks the provider to redeliver", func(t *testing.T) {
		store := newFakeOrderStore(pendingOrder())
		publisher := &fakePublisher{}
		publisher.fail(errors.New("kafka: leader not available"))
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		provider := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test", WebhookSecret: testSecret})
		handler := NewHandler(provider, newTestReconciler(t, store, publisher), logger)

		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rec.Code)
		}

		publisher.fail(nil)
		rec = httptest.NewRecorder()
		handler.HandlePayment(rec, signedRequest(t, completedPayload, testSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 on redelivery, got %d", rec.Code)
		}
		if len(publisher.events) != 1 {
			t.Errorf("expected one paid event after redelivery, got %d", len(publisher.events))
		}
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		handler := newTestHandler(t, newFakeOrderStore())

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(strings.Repeat("x", maxPayloadBytes+1)))
		rec := httptest.NewRecorder()
		handler.HandlePayment(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

type applierFunc func(ctx context.Context, event payment.Event) (Outcome, error)

func (f applierFunc) Apply(ctx context.Context, event payment.Event) (Outcome, error) { return f(ctx, event) }

func TestHandler_HandlePayment_UnhandledType(t *testing.T) {
	var applied payment.Event
	applier := applierFunc(func(_ context.Context, event payment.Event) (Outcome, error) {
		applied = event
		return OutcomeIgnored, nil
	})
	provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testSecret})
	handler := NewHandler(provider, applier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	handler.HandlePayment(rec, signedRequest(t, `{"id":"evt_9","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`, testSecret))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if applied == nil || applied.Kind() != "invoice.paid" {
		t.Errorf("expected invoice.paid to reach the applier, got %#v", applied)
	}
}
