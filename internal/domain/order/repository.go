package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for order data access
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByExchangeOrderID(ctx context.Context, pair, exchangeOrderID string) (*Order, error)
	GetByPosition(ctx context.Context, positionID uuid.UUID) ([]*Order, error)
	Update(ctx context.Context, order *Order) error
}
