// Package checkout turns an authenticated cart submission into a pending
// order with a hosted payment session attached.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
)

var tracer = otel.Tracer("checkout")

const (
	// maxLineQuantity caps one product's quantity in a single order.
	maxLineQuantity = 10_000

	// outboundCalls is the longest sequence Initiate runs: idempotency lookup,
	// catalog, order insert, payment session, session attach.
	outboundCalls = 5
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error)
	AttachSession(ctx context.Context, id, sessionID, sessionURL string) (bool, error)
}

type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type Config struct {
	Shipping      ShippingPolicy
	Currency      string
	StorefrontURL string
	// Timeout bounds each outbound call (catalog, order store, provider).
	Timeout time.Duration
}

type Request struct {
	UserID         string
	Lines          []domain.CartLine
	Shipping       domain.ShippingInfo
	IdempotencyKey string
}

type Result struct {
	OrderID     string
	RedirectURL string
	Total       decimal.Decimal
}

type Service struct {
	orders   OrderStore
	catalog  Catalog
	provider payment.Provider
	cfg      Config
	logger   *slog.Logger
	attempts metric.Int64Counter
}

func NewService(orders OrderStore, catalog Catalog, provider payment.Provider, cfg Config, logger *slog.Logger) (*Service, error) {
	attempts, err := otel.Meter("checkout").Int64Counter("storefront.checkout.attempts",
		metric.WithDescription("Checkout submissions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Service{
		orders:   orders,
		catalog:  catalog,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		attempts: attempts,
	}, nil
}

// Budget is the longest Initiate may run before it gives up with
// context.DeadlineExceeded.
func (s *Service) Budget() time.Duration {
	return outboundCalls * s.cfg.Timeout
}

func (s *Service) Initiate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Budget())
	defer cancel()

	ctx, span := tracer.Start(ctx, "checkout.initiate")
	defer span.End()

	result, err := s.initiate(ctx, req)

	outcome := outcomeOf(err)
	s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(attribute.String("checkout.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", result.OrderID))
	return result, nil
}

func (s *Service) initiate(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, domain.ErrUnauthorized
	}

	lines, err := mergeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	if missing := req.Shipping.MissingFields(); len(missing) > 0 {
		return nil, domain.NewValidationError("missing shipping fields", missing...)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findExisting(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.resume(ctx, existing)
		}
	}

	orderLines, err := s.resolveLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	quote := s.cfg.Shipping.Quote(orderLines)
	order := &domain.Order{
		UserID:         req.UserID,
		Status:         domain.OrderStatusPending,
		Subtotal:       quote.Subtotal,
		ShippingFee:    quote.ShippingFee,
		Total:          quote.Total,
		Shipping:       req.Shipping,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          orderLines,
		CreatedAt:      time.Now().UTC(),
	}

	createCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err = s.orders.Create(createCtx, order)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrCheckoutConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create order: %w", domain.ErrPersistence, err)
	}

	s.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total", order.Total.StringFixed(2))

	return s.openSession(ctx, order)
}

func (s *Service) findExisting(ctx context.Context, userID, key string) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	order, err := s.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: find order by idempotency key: %w", domain.ErrPersistence, err)
	}
	return order, nil
}

// resume answers a resubmission for an order that already exists instead of
// creating a second one.
func (s *Service) resume(ctx context.Context, order *domain.Order) (*Result, error) {
	if !order.Status.CanTransitionTo(domain.OrderStatusProcessing) {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrCheckoutConflict, order.ID, order.Status)
	}

	if order.PaymentSessionURL != "" {
		s.logger.Info("checkout resubmitted, reusing payment session", "order_id", order.ID)
		return &Result{OrderID: order.ID, RedirectURL: order.PaymentSessionURL, Total: order.Total}, nil
	}

	s.logger.Info("checkout resubmitted, opening new payment session", "order_id", order.ID)
	return s.openSession(ctx, order)
}

func (s *Service) openSession(ctx context.Context, order *domain.Order) (*Result, error) {
	providerCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	sess, err := s.provider.CreateSession(providerCtx, payment.SessionRequest{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Email:       order.Shipping.Email,
		Lines:       order.Lines,
		ShippingFee: order.ShippingFee,
		Currency:    s.cfg.Currency,
		SuccessURL:  s.cfg.StorefrontURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.StorefrontURL + "/cart",
	})
	cancel()
	if err != nil {
		s.logger.Error("failed to create payment session", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("%w: %w", domain.ErrCheckoutFailed, err)
	}

	attachCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	attached, err := s.orders.AttachSession(attachCtx, order.ID, sess.ID, sess.URL)
	cancel()
	if err != nil {
		s.logger.Error("failed to attach payment session", "error", err, "order_id", order.ID, "session_id", sess.ID)
		return nil, fmt.Errorf("%w: %w: attach session: %w", domain.ErrCheckoutFailed, domain.ErrPersistence, err)
	}
	if !attached {
		return nil, fmt.Errorf("%w: order %s is no longer pending", domain.ErrCheckoutConflict, order.ID)
	}

	s.logger.Info("payment session attached", "order_id", order.ID, "session_id", sess.ID)
	return &Result{OrderID: order.ID, RedirectURL: sess.URL, Total: order.Total}, nil
}

func (s *Service) resolveLines(ctx context.Context, lines []domain.CartLine) ([]domain.OrderLine, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %w", domain.ErrPersistence, err)
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
		}
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     line.Quantity,
		})
	}

	return orderLines, nil
}

// mergeLines collapses repeated product ids into one line and rejects empty
// carts and quantities outside 1..maxLineQuantity, before and after merging.
// Input order is preserved.
func mergeLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, domain.NewValidationError("cart is empty", "items")
	}

	index := make(map[string]int, len(lines))
	merged := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return nil, domain.NewValidationError("item without product id", "items")
		}
		if line.Quantity <= 0 {
			return nil, domain.NewValidationError("quantity must be positive", "items")
		}
		if line.Quantity > maxLineQuantity {
			return nil, domain.NewValidationError("quantity out of range", "items")
		}
		if i, ok := index[id]; ok {
			// Both operands are bounded, so the sum cannot overflow.
			if merged[i].Quantity+line.Quantity > maxLineQuantity {
				return nil, domain.NewValidationError("quantity out of range", "items")
			}
			merged[i].Quantity += line.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.CartLine{ProductID: id, Quantity: line.Quantity})
	}

	return merged, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrCheckoutConflict):
		return "conflict"
	case errors.Is(err, domain.ErrPaymentProvider):
		return "provider_error"
	default:
		return "persistence_error"
	}
}
