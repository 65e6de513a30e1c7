package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

type sentMail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func newMailer(t *testing.T, status int) (*httptest.Server, *[]sentMail) {
	t.Helper()
	var mu sync.Mutex
	var sent []sentMail

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("expected /send, got %s", r.URL.Path)
		}
		var mail sentMail
		if err := json.NewDecoder(r.Body).Decode(&mail); err != nil {
			t.Errorf("failed to decode mail: %v", err)
		}
		mu.Lock()
		sent = append(sent, mail)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, &sent
}

func paidMessage(t *testing.T, event domain.OrderPaidEvent) messaging.Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return messaging.Message{Key: event.OrderID, EventType: domain.EventTypeOrderPaid, Value: data}
}

func TestNotificationHandler_Handle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("sends a confirmation to the customer", func(t *testing.T) {
		mailer, sent := newMailer(t, http.StatusOK)
		handler := NewNotificationHandler(mailer.URL, mailer.Client(), logger)

		err := handler.Handle(context.Background(), paidMessage(t, domain.OrderPaidEvent{
			OrderID: "order-1",
			Email:   "ana@example.com",
			Total:   decimal.RequireFromString("115"),
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(*sent) != 1 {
			t.Fatalf("expected 1 mail, got %d", len(*sent))
		}
		mail := (*sent)[0]
		if mail.To != "ana@example.com" {
			t.Errorf("unexpected recipient %s", mail.To)
		}
		if mail.Subject != "Order Confirmation: order-1" {
			t.Errorf("unexpected subject %s", mail.Subject)
		}
		if !strings.Contains(mail.Body, "115.00") {
			t.Errorf("expected total in body: %s", mail.Body)
		}
	})

	t.Run("mailer failure is returned for redelivery", func(t *testing.T) {
		mailer, _ := newMailer(t, http.StatusServiceUnavailable)
		handler := NewNotificationHandler(mailer.URL, mailer.Client(), logger)

		err := handler.Handle(context.Background(), paidMessage(t, domain.OrderPaidEvent{OrderID: "order-1", Email: "ana@example.com"}))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("skips messages it cannot act on", func(t *testing.T) {
		mailer, sent := newMailer(t, http.StatusOK)
		handler := NewNotificationHandler(mailer.URL, mailer.Client(), logger)

		messages := []messaging.Message{
			{Key: "order-1", EventType: "order.shipped", Value: []byte(`{}`)},
			{Key: "order-1", EventType: domain.EventTypeOrderPaid, Value: []byte(`not json`)},
			paidMessage(t, domain.OrderPaidEvent{OrderID: "order-1"}),
		}
		for _, msg := range messages {
			if err := handler.Handle(context.Background(), msg); err != nil {
				t.Errorf("unexpected error for %q: %v", msg.EventType, err)
			}
		}

		if len(*sent) != 0 {
			t.Errorf("expected no mail, got %d", len(*sent))
		}
	})
}
