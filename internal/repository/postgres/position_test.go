package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/domain/position"
	"hermes/internal/repository/postgres"
	"hermes/internal/testsupport"
	"hermes/pkg/errors"
)

func makePosition(t *testing.T, pair string) *position.Position {
	t.Helper()
	p, err := position.New(position.Params{
		Pair:        pair,
		Direction:   position.DirectionLong,
		TradingMode: position.ModeSpot,
		FeeOpen:     decimal.RequireFromString("0.001"),
		FeeClose:    decimal.RequireFromString("0.001"),
		OpenedAt:    time.Now().UTC().Truncate(time.Microsecond),
	})
	require.NoError(t, err)
	p.OpenRate = decimal.RequireFromString("100")
	p.Amount = decimal.RequireFromString("1.5")
	p.StakeAmount = decimal.RequireFromString("150")
	p.RecalcOpenTradeValue()
	return p
}

func TestPositionRepository_CreateAndGet(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewPositionRepository(helper.Tx())
	ctx := context.Background()

	p := makePosition(t, "BTC/USDT")
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, p.Pair, got.Pair)
	assert.Equal(t, p.Direction, got.Direction)
	assert.Equal(t, p.TradingMode, got.TradingMode)
	assert.True(t, got.OpenRate.Equal(p.OpenRate))
	assert.True(t, got.Amount.Equal(p.Amount))
	assert.True(t, got.OpenTradeValue.Equal(p.OpenTradeValue))
	assert.True(t, got.IsOpen)
	assert.Nil(t, got.CloseRate)
	assert.Nil(t, got.InitialStopLossPct)
}

func TestPositionRepository_GetByIDNotFound(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewPositionRepository(helper.Tx())

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestPositionRepository_Update(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewPositionRepository(helper.Tx())
	ctx := context.Background()

	p := makePosition(t, "ETH/USDT")
	require.NoError(t, repo.Create(ctx, p))

	p.AdjustStopLoss(decimal.RequireFromString("100"), decimal.RequireFromString("0.05"), false)
	closeRate := decimal.RequireFromString("110")
	closedAt := time.Now().UTC().Truncate(time.Microsecond)
	p.CloseRate = &closeRate
	p.ClosedAt = &closedAt
	p.RealizedProfit = decimal.RequireFromString("15")
	p.ExitReason = "exit_signal"
	p.IsOpen = false
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	assert.False(t, got.IsOpen)
	assert.True(t, got.StopLoss.Equal(decimal.RequireFromString("95")))
	require.NotNil(t, got.InitialStopLossPct)
	assert.True(t, got.InitialStopLossPct.Equal(decimal.RequireFromString("-0.05")))
	require.NotNil(t, got.CloseRate)
	assert.True(t, got.CloseRate.Equal(closeRate))
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, "exit_signal", got.ExitReason)
}

func TestPositionRepository_UpdateMissing(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewPositionRepository(helper.Tx())

	p := makePosition(t, "BTC/USDT")
	err := repo.Update(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestPositionRepository_Query(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewPositionRepository(helper.Tx())
	ctx := context.Background()

	open := makePosition(t, "BTC/USDT")
	require.NoError(t, repo.Create(ctx, open))

	closed := makePosition(t, "ETH/USDT")
	closed.IsOpen = false
	closedAt := time.Now().UTC().Truncate(time.Microsecond)
	closed.ClosedAt = &closedAt
	require.NoError(t, repo.Create(ctx, closed))

	isOpen := true
	got, err := repo.Query(ctx, position.Filter{IsOpen: &isOpen})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC/USDT", got[0].Pair)

	got, err = repo.Query(ctx, position.Filter{Pair: "ETH/USDT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsOpen)

	cutoff := closedAt.Add(time.Minute)
	got, err = repo.Query(ctx, position.Filter{ClosedAfter: &cutoff})
	require.NoError(t, err)
	assert.Empty(t, got)
}
