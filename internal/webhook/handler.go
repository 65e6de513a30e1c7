package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
)

const (
	maxPayloadBytes = 64 << 10
	SignatureHeader = "Stripe-Signature"
)

type EventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (payment.Event, error)
}

type EventApplier interface {
	Apply(ctx context.Context, event payment.Event) (Outcome, error)
}

type Handler struct {
	parser  EventParser
	applier EventApplier
	logger  *slog.Logger
}

func NewHandler(parser EventParser, applier EventApplier, logger *slog.Logger) *Handler {
	return &Handler{
		parser:  parser,
		applier: applier,
		logger:  logger,
	}
}

func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.parser.ParseEvent(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			h.logger.Warn("rejected webhook with invalid signature", "error", err)
			h.writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		h.logger.Warn("rejected undecodable webhook", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	outcome, err := h.applier.Apply(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to apply webhook event", "error", err, "type", event.Kind())
		h.writeError(w, http.StatusInternalServerError, "webhook handler failed")
		return
	}

	h.logger.Info("webhook processed", "type", event.Kind(), "outcome", outcome)
	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
