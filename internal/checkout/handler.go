package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/identity"
)

const maxBodyBytes = 1 << 20

type Initiator interface {
	Initiate(ctx context.Context, req Request) (*Result, error)
}

type Handler struct {
	service Initiator
	logger  *slog.Logger
}

func NewHandler(service Initiator, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// checkoutItem accepts the storefront's cart line shape. Name and price are
// display copies only and never reach the order.
type checkoutItem struct {
	ProductID    string           `json:"product_id"`
	ProductName  string           `json:"product_name,omitempty"`
	ProductPrice *decimal.Decimal `json:"product_price,omitempty"`
	Quantity     int              `json:"quantity"`
}

type checkoutRequest struct {
	Items          []checkoutItem      `json:"items"`
	Total          *decimal.Decimal    `json:"total,omitempty"`
	Shipping       domain.ShippingInfo `json:"shipping"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

type checkoutResponse struct {
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]domain.CartLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.service.Initiate(r.Context(), Request{
		UserID:         user.ID,
		Lines:          lines,
		Shipping:       req.Shipping,
		IdempotencyKey: key,
	})
	if err != nil {
		h.handleError(w, err, user.ID)
		return
	}

	if req.Total != nil && !req.Total.Equal(result.Total) {
		h.logger.Warn("client total differs from computed total",
			"order_id", result.OrderID, "client_total", req.Total.StringFixed(2), "total", result.Total.StringFixed(2))
	}

	h.logger.Info("checkout initiated", "order_id", result.OrderID, "user_id", user.ID)
	h.writeJSON(w, http.StatusOK, checkoutResponse{URL: result.RedirectURL, OrderID: result.OrderID})
}

func (h *Handler) handleError(w http.ResponseWriter, err error, userID string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  validationErr.Reason,
			"fields": validationErr.Fields,
		})
	case errors.Is(err, domain.ErrProductNotFound):
		h.writeError(w, http.StatusBadRequest, "one or more products are no longer available")
	case errors.Is(err, domain.ErrCheckoutConflict):
		h.writeError(w, http.StatusConflict, "this checkout was already submitted")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("checkout timed out", "error", err, "user_id", userID)
		h.writeError(w, http.StatusGatewayTimeout, "payment service timed out, please try again")
	default:
		h.logger.Error("checkout failed", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to create checkout session")
	}
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
