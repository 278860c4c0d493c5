package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"

	"hermes/internal/domain/position"
	"hermes/pkg/errors"
)

// Compile-time check
var _ position.Repository = (*PositionRepository)(nil)

// PositionRepository implements position.Repository using sqlx
type PositionRepository struct {
	db DBTX
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db DBTX) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position
func (r *PositionRepository) Create(ctx context.Context, p *position.Position) error {
	query := `
		INSERT INTO positions (
			id, pair, direction, trading_mode, leverage,
			open_rate, amount, stake_amount, max_stake_amount, open_trade_value,
			fee_open, fee_open_currency, fee_close, fee_close_currency,
			stop_loss, stop_loss_pct, initial_stop_loss, initial_stop_loss_pct, is_stop_trailing,
			max_rate, min_rate,
			realized_profit, close_profit, close_rate, close_rate_requested, exit_reason,
			funding_fees, funding_fee_running, interest_rate, liquidation_price,
			is_open, opened_at, closed_at, updated_at
		) VALUES (
			:id, :pair, :direction, :trading_mode, :leverage,
			:open_rate, :amount, :stake_amount, :max_stake_amount, :open_trade_value,
			:fee_open, :fee_open_currency, :fee_close, :fee_close_currency,
			:stop_loss, :stop_loss_pct, :initial_stop_loss, :initial_stop_loss_pct, :is_stop_trailing,
			:max_rate, :min_rate,
			:realized_profit, :close_profit, :close_rate, :close_rate_requested, :exit_reason,
			:funding_fees, :funding_fee_running, :interest_rate, :liquidation_price,
			:is_open, :opened_at, :closed_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}

// GetByID retrieves a position by ID. Orders are not loaded here, the
// caller hydrates them through the order repository when needed.
func (r *PositionRepository) GetByID(ctx context.Context, id uuid.UUID) (*position.Position, error) {
	var p position.Position

	query := `SELECT * FROM positions WHERE id = $1`

	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// Query retrieves positions matching the filter, open positions first,
// most recently opened first within each group.
func (r *PositionRepository) Query(ctx context.Context, filter position.Filter) ([]*position.Position, error) {
	query := `SELECT * FROM positions WHERE 1=1`
	args := []interface{}{}

	if filter.Pair != "" {
		args = append(args, filter.Pair)
		query += ` AND pair = $` + strconv.Itoa(len(args))
	}
	if filter.IsOpen != nil {
		args = append(args, *filter.IsOpen)
		query += ` AND is_open = $` + strconv.Itoa(len(args))
	}
	if filter.OpenedAfter != nil {
		args = append(args, *filter.OpenedAfter)
		query += ` AND opened_at >= $` + strconv.Itoa(len(args))
	}
	if filter.ClosedAfter != nil {
		args = append(args, *filter.ClosedAfter)
		query += ` AND closed_at >= $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY is_open DESC, opened_at DESC`

	var positions []*position.Position
	if err := r.db.SelectContext(ctx, &positions, query, args...); err != nil {
		return nil, err
	}

	return positions, nil
}

// Update persists all mutable position fields
func (r *PositionRepository) Update(ctx context.Context, p *position.Position) error {
	query := `
		UPDATE positions SET
			open_rate = :open_rate,
			amount = :amount,
			stake_amount = :stake_amount,
			max_stake_amount = :max_stake_amount,
			open_trade_value = :open_trade_value,
			fee_open = :fee_open,
			fee_open_currency = :fee_open_currency,
			fee_close = :fee_close,
			fee_close_currency = :fee_close_currency,
			stop_loss = :stop_loss,
			stop_loss_pct = :stop_loss_pct,
			initial_stop_loss = :initial_stop_loss,
			initial_stop_loss_pct = :initial_stop_loss_pct,
			is_stop_trailing = :is_stop_trailing,
			max_rate = :max_rate,
			min_rate = :min_rate,
			realized_profit = :realized_profit,
			close_profit = :close_profit,
			close_rate = :close_rate,
			close_rate_requested = :close_rate_requested,
			exit_reason = :exit_reason,
			funding_fees = :funding_fees,
			funding_fee_running = :funding_fee_running,
			liquidation_price = :liquidation_price,
			is_open = :is_open,
			closed_at = :closed_at,
			updated_at = NOW()
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrPositionNotFound, "id %s", p.ID)
	}
	return nil
}
