package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"hermes/internal/domain/position"
	"hermes/pkg/errors"
)

const snapshotKeyPrefix = "position:snapshot:"

// SnapshotStore caches the latest committed state of open positions in
// Redis. The database stays the source of truth; the cache only serves
// dashboards and strategy reads that must not hit Postgres per tick.
type SnapshotStore struct {
	client *Client
	ttl    time.Duration
}

// NewSnapshotStore creates a snapshot store with the given TTL
func NewSnapshotStore(client *Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

// StoreSnapshot caches the position state, including its orders
func (s *SnapshotStore) StoreSnapshot(ctx context.Context, p *position.Position) error {
	return s.client.Set(ctx, snapshotKeyPrefix+p.Pair, p, s.ttl)
}

// GetSnapshot returns the cached position state for a pair
func (s *SnapshotStore) GetSnapshot(ctx context.Context, pair string) (*position.Position, error) {
	var p position.Position
	err := s.client.Get(ctx, snapshotKeyPrefix+pair, &p)
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "no snapshot for %s", pair)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DropSnapshot removes the cached state, used when a position closes
func (s *SnapshotStore) DropSnapshot(ctx context.Context, pair string) error {
	return s.client.Delete(ctx, snapshotKeyPrefix+pair)
}
