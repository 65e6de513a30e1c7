// Package notify reacts to paid orders by mailing the customer a confirmation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

type NotificationHandler struct {
	mailerURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationHandler(mailerURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		mailerURL:  mailerURL,
		httpClient: client,
		logger:     logger,
	}
}

// Handle sends one confirmation per order.paid message. Messages of other
// types and undecodable payloads are skipped; a mail failure is returned so
// the message is redelivered.
func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	if msg.EventType != "" && msg.EventType != domain.EventTypeOrderPaid {
		h.logger.Debug("skipping event", "event_type", msg.EventType, "key", msg.Key)
		return nil
	}

	var event domain.OrderPaidEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("dropping undecodable order paid event", "error", err, "key", msg.Key)
		return nil
	}

	if event.Email == "" {
		h.logger.Warn("order paid without customer email", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order paid event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.sendConfirmationEmail(ctx, event); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order confirmation sent", "order_id", event.OrderID)
	return nil
}

func (h *NotificationHandler) sendConfirmationEmail(ctx context.Context, event domain.OrderPaidEvent) error {
	body := map[string]string{
		"to":      event.Email,
		"subject": "Order Confirmation: " + event.OrderID,
		"body":    fmt.Sprintf("We received your payment of %s for order %s. We are preparing it for shipping.", event.Total.StringFixed(2), event.OrderID),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.mailerURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}

	return nil
}
