package registry

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"hermes/internal/domain/position"
	pg "hermes/internal/repository/postgres"
	"hermes/pkg/errors"
)

// Compile-time check
var _ Registry = (*DBRegistry)(nil)

// DBRegistry persists positions and their orders in PostgreSQL. Commit
// writes the position and all of its orders in one transaction, so a
// half-applied fill can never become visible.
type DBRegistry struct {
	db *sqlx.DB
}

// NewDBRegistry creates a database-backed registry
func NewDBRegistry(db *sqlx.DB) *DBRegistry {
	return &DBRegistry{db: db}
}

// Add registers a freshly opened position with its initial orders
func (r *DBRegistry) Add(ctx context.Context, p *position.Position) error {
	return r.inTx(ctx, func(positions *pg.PositionRepository, orders *pg.OrderRepository) error {
		if err := positions.Create(ctx, p); err != nil {
			return errors.Wrap(err, "create position")
		}
		for _, o := range p.Orders {
			if err := orders.Create(ctx, o); err != nil {
				return errors.Wrapf(err, "create order %s", o.ExchangeOrderID)
			}
		}
		return nil
	})
}

// Commit persists the position and upserts all of its orders atomically
func (r *DBRegistry) Commit(ctx context.Context, p *position.Position) error {
	return r.inTx(ctx, func(positions *pg.PositionRepository, orders *pg.OrderRepository) error {
		err := positions.Update(ctx, p)
		if errors.Is(err, errors.ErrPositionNotFound) {
			err = positions.Create(ctx, p)
		}
		if err != nil {
			return errors.Wrap(err, "persist position")
		}

		for _, o := range p.Orders {
			existing, err := orders.GetByExchangeOrderID(ctx, o.Pair, o.ExchangeOrderID)
			switch {
			case errors.Is(err, errors.ErrOrderNotFound):
				err = orders.Create(ctx, o)
			case err == nil:
				o.ID = existing.ID
				err = orders.Update(ctx, o)
			}
			if err != nil {
				return errors.Wrapf(err, "persist order %s", o.ExchangeOrderID)
			}
		}
		return nil
	})
}

// GetOpen returns the open position for a pair with its orders loaded
func (r *DBRegistry) GetOpen(ctx context.Context, pair string) (*position.Position, error) {
	isOpen := true
	found, err := pg.NewPositionRepository(r.db).Query(ctx, position.Filter{Pair: pair, IsOpen: &isOpen})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "no open position for %s", pair)
	}

	p := found[0]
	if err := r.hydrate(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenPositions returns all open positions with their orders loaded
func (r *DBRegistry) OpenPositions(ctx context.Context) ([]*position.Position, error) {
	isOpen := true
	found, err := pg.NewPositionRepository(r.db).Query(ctx, position.Filter{IsOpen: &isOpen})
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		if err := r.hydrate(ctx, p); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// OpenCount returns the number of open positions
func (r *DBRegistry) OpenCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM positions WHERE is_open`)
	return n, err
}

// TotalOpenStake sums the stake bound in open positions
func (r *DBRegistry) TotalOpenStake(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(stake_amount), 0) FROM positions WHERE is_open`)
	return total, err
}

// TotalClosedProfit sums the realized profit of closed positions
func (r *DBRegistry) TotalClosedProfit(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(realized_profit), 0) FROM positions WHERE NOT is_open`)
	return total, err
}

// Query returns positions matching the filter. Orders are not loaded,
// aggregate reporting does not need them.
func (r *DBRegistry) Query(ctx context.Context, filter position.Filter) ([]*position.Position, error) {
	return pg.NewPositionRepository(r.db).Query(ctx, filter)
}

func (r *DBRegistry) hydrate(ctx context.Context, p *position.Position) error {
	orders, err := pg.NewOrderRepository(r.db).GetByPosition(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "load orders for %s", p.Pair)
	}
	p.Orders = orders
	return nil
}

func (r *DBRegistry) inTx(ctx context.Context, fn func(*pg.PositionRepository, *pg.OrderRepository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(pg.NewPositionRepository(tx), pg.NewOrderRepository(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
