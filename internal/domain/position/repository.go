package position

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a position query. Nil fields match everything.
type Filter struct {
	Pair        string
	IsOpen      *bool
	OpenedAfter *time.Time
	ClosedAfter *time.Time
}

// Repository defines the interface for position data access
type Repository interface {
	Create(ctx context.Context, position *Position) error
	GetByID(ctx context.Context, id uuid.UUID) (*Position, error)
	Query(ctx context.Context, filter Filter) ([]*Position, error)
	Update(ctx context.Context, position *Position) error
}
