package accounting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaadapter "hermes/internal/adapters/kafka"
	"hermes/internal/domain/order"
	"hermes/internal/domain/position"
	"hermes/internal/registry"
	"hermes/internal/services/accounting"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

var fillTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeCache struct {
	stored  map[string]*position.Position
	dropped []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: make(map[string]*position.Position)}
}

func (c *fakeCache) StoreSnapshot(_ context.Context, p *position.Position) error {
	c.stored[p.Pair] = p
	return nil
}

func (c *fakeCache) DropSnapshot(_ context.Context, pair string) error {
	delete(c.stored, pair)
	c.dropped = append(c.dropped, pair)
	return nil
}

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ string, _ interface{}) error {
	p.topics = append(p.topics, topic)
	return nil
}

type fixture struct {
	svc       *accounting.Service
	registry  *registry.MemoryRegistry
	cache     *fakeCache
	publisher *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	cache := newFakeCache()
	pub := &fakePublisher{}
	cfg := accounting.Config{
		StopLossPct:  dec("0.05"),
		TrailingStop: true,
	}
	return &fixture{
		svc:       accounting.NewService(reg, cache, pub, cfg, logger.Get()),
		registry:  reg,
		cache:     cache,
		publisher: pub,
	}
}

func fillEvent(pair, orderID string, side order.Side, amount, price string) accounting.FillEvent {
	status := order.StatusClosed
	amt := dec(amount)
	pr := dec(price)
	ts := fillTime
	return accounting.FillEvent{
		Pair:        pair,
		Side:        side,
		Direction:   position.DirectionLong,
		TradingMode: position.ModeSpot,
		Placed:      true,
		Amount:      amt,
		Price:       pr,
		State: order.ExchangeState{
			OrderID:       orderID,
			Status:        &status,
			Filled:        &amt,
			Average:       &pr,
			FillTimestamp: &ts,
		},
	}
}

func TestProcessFill_OpensPositionOnFirstEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pos, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	assert.True(t, pos.IsOpen)
	assert.True(t, pos.OpenRate.Equal(dec("100")))
	assert.True(t, pos.Amount.Equal(dec("1")))

	// The default stop is assigned off the open rate.
	assert.True(t, pos.StopLoss.Equal(dec("95")), "stop %s", pos.StopLoss)
	require.NotNil(t, pos.InitialStopLossPct)

	assert.Equal(t, []string{kafkaadapter.TopicPositionOpened}, f.publisher.topics)
	assert.Contains(t, f.cache.stored, "BTC/USDT")

	got, err := f.registry.GetOpen(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Same(t, pos, got)
}

func TestProcessFill_RejectsUnknownOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	ev := fillEvent("BTC/USDT", "ex-rogue", order.SideExit, "1", "110")
	ev.Placed = false

	_, err = f.svc.ProcessFill(ctx, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIdentityMismatch))
}

func TestProcessFill_RejectsExitWithoutPosition(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessFill(context.Background(), fillEvent("BTC/USDT", "ex-1", order.SideExit, "1", "110"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestProcessFill_FullExitClosesPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	pos, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-2", order.SideExit, "1", "110"))
	require.NoError(t, err)

	assert.False(t, pos.IsOpen)
	assert.True(t, pos.RealizedProfit.Equal(dec("10")), "profit %s", pos.RealizedProfit)
	assert.Equal(t,
		[]string{kafkaadapter.TopicPositionOpened, kafkaadapter.TopicPositionClosed},
		f.publisher.topics,
	)
	assert.Equal(t, []string{"BTC/USDT"}, f.cache.dropped)

	_, err = f.registry.GetOpen(ctx, "BTC/USDT")
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))

	profit, err := f.registry.TotalClosedProfit(ctx)
	require.NoError(t, err)
	assert.True(t, profit.Equal(dec("10")))
}

func TestProcessFill_ReplayedEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100")
	first, err := f.svc.ProcessFill(ctx, ev)
	require.NoError(t, err)

	second, err := f.svc.ProcessFill(ctx, ev)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, second.Orders, 1)
	assert.True(t, second.Amount.Equal(dec("1")))
	assert.True(t, second.OpenRate.Equal(dec("100")))
	// Only the first fill announces the position.
	assert.Equal(t, []string{kafkaadapter.TopicPositionOpened}, f.publisher.topics)
}

func TestProcessFill_StopLossFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	pos, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-2", order.SideStopLoss, "1", "94.8"))
	require.NoError(t, err)

	assert.False(t, pos.IsOpen)
	assert.Equal(t, position.ExitReasonStopLoss, pos.ExitReason)
	require.NotNil(t, pos.CloseRateRequested)
	assert.True(t, pos.CloseRateRequested.Equal(dec("95")))
}

func TestAdjustStops_TrailsWithPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	require.NoError(t, f.svc.AdjustStops(ctx, accounting.StopUpdate{
		Pair:         "BTC/USDT",
		CurrentPrice: dec("120"),
		CurrentLow:   dec("118"),
	}))

	pos, err := f.registry.GetOpen(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, pos.StopLoss.Equal(dec("114")), "stop %s", pos.StopLoss)
	assert.True(t, pos.IsStopTrailing)
	assert.True(t, pos.MaxRate.Equal(dec("120")))
	assert.True(t, pos.MinRate.Equal(dec("100")))

	// A retracement leaves the stop where it is.
	require.NoError(t, f.svc.AdjustStops(ctx, accounting.StopUpdate{
		Pair:         "BTC/USDT",
		CurrentPrice: dec("105"),
	}))
	pos, err = f.registry.GetOpen(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, pos.StopLoss.Equal(dec("114")))
}

func TestAdjustStops_RecordsLiquidationBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT", "ex-1", order.SideEntry, "1", "100"))
	require.NoError(t, err)

	liq := dec("97")
	require.NoError(t, f.svc.AdjustStops(ctx, accounting.StopUpdate{
		Pair:         "BTC/USDT",
		CurrentPrice: dec("100"),
		Liquidation:  &liq,
	}))

	stop, err := f.svc.EffectiveStop(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, stop.Equal(dec("97")), "effective stop %s", stop)
}

func TestApplyFunding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := fillEvent("BTC/USDT:USDT", "ex-1", order.SideEntry, "1", "100")
	ev.TradingMode = position.ModeFutures
	_, err := f.svc.ProcessFill(ctx, ev)
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyFunding(ctx, "BTC/USDT:USDT", dec("-0.75")))

	pos, err := f.registry.GetOpen(ctx, "BTC/USDT:USDT")
	require.NoError(t, err)
	assert.True(t, pos.FundingFeeRunning.Equal(dec("-0.75")))
	assert.True(t, pos.FundingFees.Equal(dec("-0.75")))

	// The funding lands on the order that closes the position.
	closed, err := f.svc.ProcessFill(ctx, fillEvent("BTC/USDT:USDT", "ex-2", order.SideExit, "1", "110"))
	require.NoError(t, err)
	assert.True(t, closed.RealizedProfit.Equal(dec("9.25")), "profit %s", closed.RealizedProfit)
}
