package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"hermes/internal/domain/order"
	"hermes/pkg/errors"
)

// Compile-time check
var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository using sqlx
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order. The unique index on (pair, exchange_order_id)
// makes replayed fill events map to the existing row instead of a duplicate.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	query := `
		INSERT INTO orders (
			id, position_id, exchange_order_id, pair,
			side, status,
			amount, filled_amount, remaining,
			price, avg_fill_price, stop_price,
			fee, fee_currency, fee_base, funding_fee,
			placed_at, filled_at, updated_at
		) VALUES (
			:id, :position_id, :exchange_order_id, :pair,
			:side, :status,
			:amount, :filled_amount, :remaining,
			:price, :avg_fill_price, :stop_price,
			:fee, :fee_currency, :fee_base, :funding_fee,
			:placed_at, :filled_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, o)
	return err
}

// GetByID retrieves an order by internal ID
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order

	err := r.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrOrderNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// GetByExchangeOrderID retrieves an order by its exchange-assigned ID.
// Exchange IDs are only unique per pair.
func (r *OrderRepository) GetByExchangeOrderID(ctx context.Context, pair, exchangeOrderID string) (*order.Order, error) {
	var o order.Order

	query := `SELECT * FROM orders WHERE pair = $1 AND exchange_order_id = $2`

	err := r.db.GetContext(ctx, &o, query, pair, exchangeOrderID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrOrderNotFound, "%s on %s", exchangeOrderID, pair)
	}
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// GetByPosition retrieves all orders of a position in fill order, which
// is the order the accounting walk expects.
func (r *OrderRepository) GetByPosition(ctx context.Context, positionID uuid.UUID) ([]*order.Order, error) {
	var orders []*order.Order

	query := `
		SELECT * FROM orders
		WHERE position_id = $1
		ORDER BY COALESCE(filled_at, placed_at), placed_at`

	if err := r.db.SelectContext(ctx, &orders, query, positionID); err != nil {
		return nil, err
	}

	return orders, nil
}

// Update persists the mutable, exchange-observed order fields
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	query := `
		UPDATE orders SET
			status = :status,
			amount = :amount,
			filled_amount = :filled_amount,
			remaining = :remaining,
			price = :price,
			avg_fill_price = :avg_fill_price,
			stop_price = :stop_price,
			fee = :fee,
			fee_currency = :fee_currency,
			fee_base = :fee_base,
			funding_fee = :funding_fee,
			placed_at = :placed_at,
			filled_at = :filled_at,
			updated_at = NOW()
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, o)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrOrderNotFound, "id %s", o.ID)
	}
	return nil
}
