package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// ErrDuplicateIdempotencyKey is returned by Create when the user already has an
// order for the same idempotency key.
var ErrDuplicateIdempotencyKey = fmt.Errorf("%w: duplicate idempotency key", domain.ErrCheckoutConflict)

const uniqueViolation = "23505"

const orderColumns = `
	id, user_id, status, subtotal, shipping_fee, total,
	shipping_name, shipping_email, shipping_address, shipping_city, shipping_state, shipping_zip,
	payment_session_id, payment_session_url, payment_intent_id, idempotency_key,
	created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its lines in a single transaction. A failure on
// any line rolls the order back as well.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, subtotal, shipping_fee, total,
			shipping_name, shipping_email, shipping_address, shipping_city, shipping_state, shipping_zip,
			idempotency_key, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, order.ID, order.UserID, order.Status, order.Subtotal, order.ShippingFee, order.Total,
		order.Shipping.Name, order.Shipping.Email, order.Shipping.Address,
		order.Shipping.City, order.Shipping.State, order.Shipping.Zip,
		nullString(order.IdempotencyKey), order.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.ID = uuid.New().String()
		line.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, product_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.ID, line.OrderID, line.ProductID, line.ProductName, line.ProductPrice, line.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadLines(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// AttachSession stores the payment session reference on an order that can
// still be paid. It reports false when no such order exists.
func (r *OrderRepository) AttachSession(ctx context.Context, id, sessionID, sessionURL string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_session_id = $2, payment_session_url = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, sessionID, sessionURL, payableStatuses())
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkProcessing moves a pending order to processing and records the payment
// intent in one conditional update. It returns the order as stored afterwards
// and whether this call made the transition; the order is nil when it does not
// exist.
func (r *OrderRepository) MarkProcessing(ctx context.Context, id, paymentIntentID string) (*domain.Order, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, nullString(paymentIntentID), string(domain.OrderStatusProcessing), payableStatuses())
	if err != nil {
		return nil, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	return order, rowsAffected > 0, nil
}

// ClaimPaidAnnouncement marks a processing order's paid event as published.
// It reports false when the order is missing, not processing, or already
// claimed, so at most one caller publishes.
func (r *OrderRepository) ClaimPaidAnnouncement(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET paid_announced_at = NOW()
		WHERE id = $1 AND status = $2 AND paid_announced_at IS NULL
	`, id, string(domain.OrderStatusProcessing))
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ReleasePaidAnnouncement undoes a claim whose publish failed.
func (r *OrderRepository) ReleasePaidAnnouncement(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET paid_announced_at = NULL WHERE id = $1
	`, id)
	return err
}

func (r *OrderRepository) loadLines(ctx context.Context, orderMap map[string]*domain.Order, orderIDs []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, product_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY product_name
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.ProductPrice, &line.Quantity); err != nil {
			return err
		}
		order := orderMap[line.OrderID]
		order.Lines = append(order.Lines, line)
	}

	return rows.Err()
}

// payableStatuses is the status guard for moving an order to processing.
func payableStatuses() any {
	var statuses []string
	for _, s := range domain.SourceStatuses(domain.OrderStatusProcessing) {
		statuses = append(statuses, string(s))
	}
	return pq.Array(statuses)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var sessionID, sessionURL, intentID, idemKey sql.NullString

	err := row.Scan(
		&order.ID, &order.UserID, &order.Status, &order.Subtotal, &order.ShippingFee, &order.Total,
		&order.Shipping.Name, &order.Shipping.Email, &order.Shipping.Address,
		&order.Shipping.City, &order.Shipping.State, &order.Shipping.Zip,
		&sessionID, &sessionURL, &intentID, &idemKey,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentSessionID = sessionID.String
	order.PaymentSessionURL = sessionURL.String
	order.PaymentIntentID = intentID.String
	order.IdempotencyKey = idemKey.String

	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
