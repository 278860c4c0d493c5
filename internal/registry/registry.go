package registry

import (
	"context"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/position"
)

// Registry tracks every position the engine knows about, at most one
// open position per pair. It is an explicit dependency handed to the
// services that need it, never process-global state.
//
// Commit persists a position together with its orders; implementations
// make that atomic. A committed position with IsOpen false moves from
// the open set to the closed set.
type Registry interface {
	// Add registers a freshly opened position.
	Add(ctx context.Context, p *position.Position) error

	// Commit persists the position and all of its orders.
	Commit(ctx context.Context, p *position.Position) error

	// GetOpen returns the open position for a pair with orders attached.
	GetOpen(ctx context.Context, pair string) (*position.Position, error)

	// OpenPositions returns all currently open positions.
	OpenPositions(ctx context.Context) ([]*position.Position, error)

	// OpenCount returns the number of open positions.
	OpenCount(ctx context.Context) (int, error)

	// TotalOpenStake sums the stake bound in open positions.
	TotalOpenStake(ctx context.Context) (decimal.Decimal, error)

	// TotalClosedProfit sums the realized profit of closed positions.
	TotalClosedProfit(ctx context.Context) (decimal.Decimal, error)

	// Query returns positions matching the filter.
	Query(ctx context.Context, filter position.Filter) ([]*position.Position, error)
}
