package position_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/domain/money"
	"hermes/internal/domain/order"
	"hermes/internal/domain/position"
	"hermes/pkg/errors"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestPosition(t *testing.T, params position.Params) *position.Position {
	t.Helper()
	if params.Pair == "" {
		params.Pair = "BTC/USDT"
	}
	if params.Direction == "" {
		params.Direction = position.DirectionLong
	}
	if params.TradingMode == "" {
		params.TradingMode = position.ModeSpot
	}
	if params.OpenedAt.IsZero() {
		params.OpenedAt = baseTime
	}
	p, err := position.New(params)
	require.NoError(t, err)
	return p
}

// fill appends a filled order n minutes after the open.
func fill(p *position.Position, side order.Side, amount, price string, minutes int) *order.Order {
	id := fmt.Sprintf("ex-%d", len(p.Orders)+1)
	o := order.New(p.ID, id, p.Pair, side, dec(amount), dec(price))
	o.Status = order.StatusClosed
	o.FilledAmount = dec(amount)
	o.AvgFillPrice = dec(price)
	o.Remaining = decimal.Zero
	at := baseTime.Add(time.Duration(minutes) * time.Minute)
	o.FilledAt = &at
	p.AppendOrder(o)
	return o
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money.EqualWithin(dec(want), got), "want %s, got %s", want, got)
}

func TestRecalc_WeightedAverageOpenRate(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	fill(p, order.SideEntry, "1", "100", 0)
	fill(p, order.SideEntry, "1", "110", 5)

	p.Recalc(false)

	assertDecimal(t, "105", p.OpenRate)
	assertDecimal(t, "2", p.Amount)
	assertDecimal(t, "210", p.StakeAmount)
	assertDecimal(t, "210", p.OpenTradeValue)
	assertDecimal(t, "210", p.MaxStakeAmount)
}

func TestRecalc_EqualTimestampsUseAppendOrder(t *testing.T) {
	first := newTestPosition(t, position.Params{})
	fill(first, order.SideEntry, "1", "100", 0)
	fill(first, order.SideEntry, "3", "120", 0)
	first.Recalc(false)

	second := newTestPosition(t, position.Params{})
	fill(second, order.SideEntry, "3", "120", 0)
	fill(second, order.SideEntry, "1", "100", 0)
	second.Recalc(false)

	// Averaging over entries is order independent.
	assert.True(t, first.OpenRate.Equal(second.OpenRate))
	assertDecimal(t, "115", first.OpenRate)
}

func TestRecalc_Idempotent(t *testing.T) {
	p := newTestPosition(t, position.Params{FeeOpen: dec("0.001"), FeeClose: dec("0.001")})
	fill(p, order.SideEntry, "1", "100", 0)
	fill(p, order.SideExit, "0.4", "112", 10)
	fill(p, order.SideEntry, "0.6", "95", 20)

	p.Recalc(false)
	openRate := p.OpenRate
	amount := p.Amount
	stake := p.StakeAmount
	realized := p.RealizedProfit
	closeProfit := p.CloseProfit

	p.Recalc(false)

	assert.True(t, openRate.Equal(p.OpenRate))
	assert.True(t, amount.Equal(p.Amount))
	assert.True(t, stake.Equal(p.StakeAmount))
	assert.True(t, realized.Equal(p.RealizedProfit))
	assert.True(t, closeProfit.Equal(p.CloseProfit))
}

func TestRecalc_PartialExitThenReentry(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	fill(p, order.SideEntry, "1", "100", 0)
	fill(p, order.SideExit, "0.5", "110", 10)
	fill(p, order.SideEntry, "0.5", "90", 20)

	p.Recalc(false)

	// Exit realizes 0.5 * (110 - 100) = 5 against the pre-exit basis;
	// the re-entry averages the remaining half down to 95.
	assertDecimal(t, "95", p.OpenRate)
	assertDecimal(t, "1", p.Amount)
	assertDecimal(t, "5", p.RealizedProfit)
	assertDecimal(t, "0.05", p.CloseProfit)
	assert.True(t, p.IsOpen)
}

func TestRecalc_SkipsOpenAndUnfilledOrders(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	fill(p, order.SideEntry, "1", "100", 0)

	pending := order.New(p.ID, "ex-pending", p.Pair, order.SideEntry, dec("5"), dec("50"))
	p.AppendOrder(pending)

	canceled := order.New(p.ID, "ex-canceled", p.Pair, order.SideEntry, dec("5"), dec("50"))
	canceled.Status = order.StatusCanceled
	p.AppendOrder(canceled)

	p.Recalc(false)

	assertDecimal(t, "100", p.OpenRate)
	assertDecimal(t, "1", p.Amount)
}

func TestUpdate_FullExitClosesPosition(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	fill(p, order.SideEntry, "1", "100", 0)
	require.NoError(t, p.Update(p.Orders[0]))

	exit := fill(p, order.SideExit, "1", "110", 30)
	require.NoError(t, p.Update(exit))

	assert.False(t, p.IsOpen)
	require.NotNil(t, p.CloseRate)
	assertDecimal(t, "110", *p.CloseRate)
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, baseTime.Add(30*time.Minute), *p.ClosedAt)
	assertDecimal(t, "0.1", p.CloseProfit)
	assertDecimal(t, "10", p.RealizedProfit)
	assert.True(t, p.Amount.IsZero())
}

func TestUpdate_ShortProfitRatioScalesWithLeverage(t *testing.T) {
	p := newTestPosition(t, position.Params{
		Pair:        "ETH/USDT:USDT",
		Direction:   position.DirectionShort,
		TradingMode: position.ModeFutures,
		Leverage:    dec("3"),
	})
	entry := fill(p, order.SideEntry, "1", "100", 0)
	require.NoError(t, p.Update(entry))

	exit := fill(p, order.SideExit, "1", "90", 60)
	require.NoError(t, p.Update(exit))

	// Shorts profit from falling prices: (1 - 90/100) * 3.
	assert.False(t, p.IsOpen)
	assertDecimal(t, "0.3", p.CloseProfit)
	assertDecimal(t, "10", p.RealizedProfit)
}

func TestUpdate_StopLossFillRecordsExitReason(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	entry := fill(p, order.SideEntry, "1", "100", 0)
	require.NoError(t, p.Update(entry))
	p.AdjustStopLoss(dec("100"), dec("0.05"), false)

	stop := fill(p, order.SideStopLoss, "1", "94.7", 45)
	require.NoError(t, p.Update(stop))

	assert.False(t, p.IsOpen)
	assert.Equal(t, position.ExitReasonStopLoss, p.ExitReason)
	require.NotNil(t, p.CloseRateRequested)
	assertDecimal(t, "95", *p.CloseRateRequested)
	require.NotNil(t, p.CloseRate)
	assertDecimal(t, "94.7", *p.CloseRate)
}

func TestUpdate_UnknownSideRejected(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	bogus := fill(p, order.Side("liquidate"), "1", "100", 0)

	err := p.Update(bogus)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownOrderSide))
}

func TestUpdate_IgnoresOpenOrders(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	pending := order.New(p.ID, "ex-1", p.Pair, order.SideEntry, dec("1"), dec("100"))
	p.AppendOrder(pending)

	require.NoError(t, p.Update(pending))
	assert.True(t, p.Amount.IsZero())
	assert.True(t, p.OpenRate.IsZero())
}

func TestCalculateProfit_ZeroOpenValueYieldsZeroRatio(t *testing.T) {
	p := newTestPosition(t, position.Params{})

	prof := p.CalculateProfit(dec("100"))

	assert.True(t, prof.Ratio.IsZero())
	assert.True(t, prof.Abs.IsZero())
}

func TestCalculateProfit_IncludesFees(t *testing.T) {
	p := newTestPosition(t, position.Params{FeeOpen: dec("0.001"), FeeClose: dec("0.001")})
	fill(p, order.SideEntry, "1", "100", 0)
	p.Recalc(false)

	// open value 100.1, close value 109.89
	prof := p.CalculateProfit(dec("110"))

	assertDecimal(t, "9.79", prof.Abs)
	assertDecimal(t, "0.09780220", prof.Ratio)
}

func TestCalculateInterest_MarginPerStartedHour(t *testing.T) {
	p := newTestPosition(t, position.Params{
		TradingMode:  position.ModeMargin,
		Leverage:     dec("5"),
		InterestRate: dec("0.0005"),
	})
	fill(p, order.SideEntry, "2", "100", 0)
	p.Recalc(false)
	closedAt := baseTime.Add(90 * time.Minute)
	p.ClosedAt = &closedAt

	// borrowed = 2 * 100 * 4/5 = 160; 1.5h rounds up to 2 started hours
	assertDecimal(t, "0.16", p.CalculateInterest())
}

func TestCalculateInterest_MinimumOneHour(t *testing.T) {
	p := newTestPosition(t, position.Params{
		TradingMode:  position.ModeMargin,
		Leverage:     dec("2"),
		InterestRate: dec("0.001"),
	})
	fill(p, order.SideEntry, "1", "100", 0)
	p.Recalc(false)
	closedAt := baseTime.Add(5 * time.Minute)
	p.ClosedAt = &closedAt

	// borrowed = 50, a single started hour is always charged
	assertDecimal(t, "0.05", p.CalculateInterest())
}

func TestCalculateInterest_NotChargedOutsideMargin(t *testing.T) {
	p := newTestPosition(t, position.Params{})
	fill(p, order.SideEntry, "1", "100", 0)
	p.Recalc(false)

	assert.True(t, p.CalculateInterest().IsZero())
}

func TestUpdate_FuturesFundingAttributedToClosingOrder(t *testing.T) {
	p := newTestPosition(t, position.Params{
		Pair:        "BTC/USDT:USDT",
		TradingMode: position.ModeFutures,
	})
	entry := fill(p, order.SideEntry, "1", "100", 0)
	require.NoError(t, p.Update(entry))

	p.SetFundingFees(dec("-1.5"))

	exit := fill(p, order.SideExit, "1", "110", 480)
	require.NoError(t, p.Update(exit))

	require.NotNil(t, exit.FundingFee)
	assertDecimal(t, "-1.5", *exit.FundingFee)
	assertDecimal(t, "-1.5", p.FundingFees)
	// Longs add funding to the close value: 110 - 100 - 1.5.
	assertDecimal(t, "8.5", p.RealizedProfit)
}

func TestRecalc_SurvivesJSONRoundTrip(t *testing.T) {
	p := newTestPosition(t, position.Params{FeeOpen: dec("0.001"), FeeClose: dec("0.001")})
	fill(p, order.SideEntry, "1", "100", 0)
	fill(p, order.SideExit, "0.5", "108", 15)
	fill(p, order.SideEntry, "0.5", "96", 30)
	p.Recalc(false)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var restored position.Position
	require.NoError(t, json.Unmarshal(raw, &restored))
	restored.Recalc(false)

	assert.True(t, p.OpenRate.Equal(restored.OpenRate), "open rate %s vs %s", p.OpenRate, restored.OpenRate)
	assert.True(t, p.Amount.Equal(restored.Amount))
	assert.True(t, p.StakeAmount.Equal(restored.StakeAmount))
	assert.True(t, p.RealizedProfit.Equal(restored.RealizedProfit))
	assert.True(t, p.CloseProfit.Equal(restored.CloseProfit))
}
