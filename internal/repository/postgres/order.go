package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tentshop/storefront/pkg/database"
	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/domain"
)

const orderColumns = `id, user_id, customer_email, session_id, amount_cents, currency, status,
		shipping_country, shipping_cost_cents, guest_access_token, stock_decremented_at,
		created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new order and its line items atomically within a
// transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	orderQuery := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", orderQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, orderQuery,
		o.ID,
		o.UserID,
		o.CustomerEmail,
		o.SessionID,
		o.AmountCents,
		o.Currency,
		o.Status,
		o.ShippingCountry,
		o.ShippingCostCents,
		o.GuestAccessToken,
		o.StockDecrementedAt,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_line_items (id, order_id, position, product_id, product_name, quantity, unit_price_cents, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			i,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPriceCents,
			item.TotalCents,
		)
		if err != nil {
			return fmt.Errorf("insert order line item: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetBySessionID retrieves an order by its payment session id.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderBySession", "session_id", sessionID)
}

// GetByGuestToken retrieves an order by its guest access token.
func (r *OrderRepository) GetByGuestToken(ctx context.Context, token string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderByGuestToken", "guest_access_token", token)
}

func (r *OrderRepository) getOne(ctx context.Context, operation, column, key string) (o *domain.Order, err error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`

	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() { end(err) }()

	var order domain.Order
	err = r.pool.QueryRow(ctx, query, key).Scan(
		&order.ID,
		&order.UserID,
		&order.CustomerEmail,
		&order.SessionID,
		&order.AmountCents,
		&order.Currency,
		&order.Status,
		&order.ShippingCountry,
		&order.ShippingCostCents,
		&order.GuestAccessToken,
		&order.StockDecrementedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	order.Items, err = r.loadLineItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// loadLineItems retrieves all line items of an order in cart order.
func (r *OrderRepository) loadLineItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price_cents, total_cents
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.TotalCents,
		); err != nil {
			return nil, fmt.Errorf("scan order line item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line item rows: %w", err)
	}

	return items, nil
}

// TransitionFromPending applies a terminal status to a pending order. The
// status guard in the WHERE clause makes concurrent or repeated calls
// harmless: only the first one affects a row, and only that one decrements
// stock.
func (r *OrderRepository) TransitionFromPending(ctx context.Context, orderID, status string) (applied bool, err error) {
	if !domain.IsTerminalStatus(status) {
		return false, apperrors.InvalidInput(fmt.Sprintf("cannot transition order to %q", status))
	}

	updateQuery := `
		UPDATE orders
		SET status = $1, updated_at = $2, stock_decremented_at = $3
		WHERE id = $4 AND status = 'pending'`

	ctx, end := database.TraceQuery(ctx, "TransitionOrder", updateQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now()
	var decrementedAt *time.Time
	if status == domain.OrderStatusPaid {
		decrementedAt = &now
	}

	ct, err := tx.Exec(ctx, updateQuery, status, now, decrementedAt, orderID)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	if status == domain.OrderStatusPaid {
		// Quantities are summed per product first: UPDATE ... FROM applies
		// at most one joined row to each target row.
		stockQuery := `
			UPDATE products p
			SET stock = GREATEST(p.stock - li.qty, 0), updated_at = $2
			FROM (
				SELECT product_id, SUM(quantity) AS qty
				FROM order_line_items
				WHERE order_id = $1
				GROUP BY product_id
			) li
			WHERE p.id = li.product_id`

		if _, err = tx.Exec(ctx, stockQuery, orderID, now); err != nil {
			return false, fmt.Errorf("decrement stock: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	return true, nil
}
