package registry

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/position"
	"hermes/pkg/errors"
)

// Compile-time check
var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry keeps positions in process memory. Used in tests and as
// the working set in front of the database-backed registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	open   map[string]*position.Position // keyed by pair
	closed []*position.Position
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		open: make(map[string]*position.Position),
	}
}

// Add registers a freshly opened position
func (r *MemoryRegistry) Add(_ context.Context, p *position.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.open[p.Pair]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "open position for %s", p.Pair)
	}
	r.open[p.Pair] = p
	return nil
}

// Commit moves a closed position out of the open set. Open positions are
// already live objects here, so there is nothing else to persist.
func (r *MemoryRegistry) Commit(_ context.Context, p *position.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.IsOpen {
		r.open[p.Pair] = p
		return nil
	}

	if current, ok := r.open[p.Pair]; ok && current.ID == p.ID {
		delete(r.open, p.Pair)
	}
	// A replayed commit of an already-closed position must not count it
	// twice in the closed set.
	for i, c := range r.closed {
		if c.ID == p.ID {
			r.closed[i] = p
			return nil
		}
	}
	r.closed = append(r.closed, p)
	return nil
}

// GetOpen returns the open position for a pair
func (r *MemoryRegistry) GetOpen(_ context.Context, pair string) (*position.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.open[pair]
	if !ok {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "no open position for %s", pair)
	}
	return p, nil
}

// OpenPositions returns all currently open positions
func (r *MemoryRegistry) OpenPositions(_ context.Context) ([]*position.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*position.Position, 0, len(r.open))
	for _, p := range r.open {
		out = append(out, p)
	}
	return out, nil
}

// OpenCount returns the number of open positions
func (r *MemoryRegistry) OpenCount(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.open), nil
}

// TotalOpenStake sums the stake bound in open positions
func (r *MemoryRegistry) TotalOpenStake(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, p := range r.open {
		total = total.Add(p.StakeAmount)
	}
	return total, nil
}

// TotalClosedProfit sums the realized profit of closed positions
func (r *MemoryRegistry) TotalClosedProfit(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, p := range r.closed {
		total = total.Add(p.RealizedProfit)
	}
	return total, nil
}

// Query returns positions matching the filter
func (r *MemoryRegistry) Query(_ context.Context, filter position.Filter) ([]*position.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*position.Position
	for _, p := range r.open {
		if matches(p, filter) {
			out = append(out, p)
		}
	}
	for _, p := range r.closed {
		if matches(p, filter) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matches(p *position.Position, f position.Filter) bool {
	if f.Pair != "" && p.Pair != f.Pair {
		return false
	}
	if f.IsOpen != nil && p.IsOpen != *f.IsOpen {
		return false
	}
	if f.OpenedAfter != nil && p.OpenedAt.Before(*f.OpenedAfter) {
		return false
	}
	if f.ClosedAfter != nil {
		if p.ClosedAt == nil || p.ClosedAt.Before(*f.ClosedAfter) {
			return false
		}
	}
	return true
}
