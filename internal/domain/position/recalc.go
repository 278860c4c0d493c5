package position

import (
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/money"
	"hermes/internal/domain/order"
	"hermes/pkg/errors"
)

// Profit holds the profit metrics for one evaluation. All values include fees.
type Profit struct {
	Abs        decimal.Decimal
	Ratio      decimal.Decimal
	Total      decimal.Decimal
	TotalRatio decimal.Decimal
}

var one = decimal.NewFromInt(1)

// calcOpenTradeValue computes the stake-currency value of an entry at the
// given rate including the open fee. Fees increase the cost basis for
// longs and reduce the borrowed-value credit for shorts.
func (p *Position) calcOpenTradeValue(amount, openRate decimal.Decimal) decimal.Decimal {
	openValue := amount.Mul(openRate)
	fees := openValue.Mul(p.FeeOpen)
	if p.IsShort() {
		return openValue.Sub(fees)
	}
	return openValue.Add(fees)
}

// RecalcOpenTradeValue refreshes OpenTradeValue. Must be called whenever
// OpenRate or FeeOpen changes.
func (p *Position) RecalcOpenTradeValue() {
	p.OpenTradeValue = p.calcOpenTradeValue(p.Amount, p.OpenRate)
}

// CalculateInterest computes the interest owed on the borrowed notional.
// Only applicable to margin trading. Interest accrues per started hour,
// with a minimum of one hour.
func (p *Position) CalculateInterest() decimal.Decimal {
	if p.TradingMode != ModeMargin || p.HasNoLeverage() {
		return decimal.Zero
	}

	until := time.Now().UTC()
	if p.ClosedAt != nil {
		until = *p.ClosedAt
	}
	hours := decimal.NewFromFloat(until.Sub(p.OpenedAt).Hours()).Ceil()
	if hours.LessThan(one) {
		hours = one
	}

	return p.Borrowed().Mul(p.InterestRate).Mul(hours)
}

func (p *Position) calcBaseClose(amount, rate, fee decimal.Decimal) decimal.Decimal {
	closeValue := amount.Mul(rate)
	fees := closeValue.Mul(fee)
	if p.IsShort() {
		return closeValue.Add(fees)
	}
	return closeValue.Sub(fees)
}

// CalcCloseTradeValue computes the stake-currency value of closing the
// given amount at the given rate, including the close fee and, depending
// on the trading mode, accrued interest or funding fees.
func (p *Position) CalcCloseTradeValue(rate, amount decimal.Decimal) decimal.Decimal {
	switch p.TradingMode {
	case ModeMargin:
		interest := p.CalculateInterest()
		if p.IsShort() {
			// Shorts buy back the borrowed amount plus interest.
			return p.calcBaseClose(amount.Add(interest), rate, p.FeeClose)
		}
		return p.calcBaseClose(amount, rate, p.FeeClose).Sub(interest)
	case ModeFutures:
		// Positive funding fees mean the position gained from them.
		if p.IsShort() {
			return p.calcBaseClose(amount, rate, p.FeeClose).Sub(p.FundingFees)
		}
		return p.calcBaseClose(amount, rate, p.FeeClose).Add(p.FundingFees)
	default:
		return p.calcBaseClose(amount, rate, p.FeeClose)
	}
}

// CalculateProfit evaluates the profit of closing the whole open amount
// at the given rate against the position's open trade value.
func (p *Position) CalculateProfit(rate decimal.Decimal) Profit {
	return p.calculateProfit(rate, p.Amount, p.OpenTradeValue)
}

// calcProfitAt evaluates the profit of closing amount at rate against the
// cost basis implied by openRate. Used during the order walk where the
// open rate at that point in history matters, not the final one.
func (p *Position) calcProfitAt(rate, amount, openRate decimal.Decimal) Profit {
	return p.calculateProfit(rate, amount, p.calcOpenTradeValue(amount, openRate))
}

func (p *Position) calculateProfit(rate, amount, openTradeValue decimal.Decimal) Profit {
	closeTradeValue := p.CalcCloseTradeValue(rate, amount)

	var profitAbs decimal.Decimal
	if p.IsShort() {
		profitAbs = openTradeValue.Sub(closeTradeValue)
	} else {
		profitAbs = closeTradeValue.Sub(openTradeValue)
	}

	// A zero open value yields a ratio of exactly zero, never an error.
	profitRatio := decimal.Zero
	if !openTradeValue.IsZero() {
		if p.IsShort() {
			profitRatio = one.Sub(closeTradeValue.Div(openTradeValue)).Mul(p.Leverage)
		} else {
			profitRatio = closeTradeValue.Div(openTradeValue).Sub(one).Mul(p.Leverage)
		}
		profitRatio = profitRatio.Round(money.PricePrecision)
	}

	totalProfit := profitAbs.Add(p.RealizedProfit)
	totalRatio := decimal.Zero
	if !p.MaxStakeAmount.IsZero() {
		feeFactor := one.Add(p.FeeOpen)
		if p.IsShort() {
			feeFactor = one.Sub(p.FeeOpen)
		}
		totalRatio = totalProfit.Div(p.MaxStakeAmount.Mul(feeFactor)).Round(money.PricePrecision)
	}

	return Profit{
		Abs:        profitAbs.Round(money.PricePrecision),
		Ratio:      profitRatio,
		Total:      totalProfit.Round(money.PricePrecision),
		TotalRatio: totalRatio,
	}
}

// CalcProfitRatio evaluates only the leveraged profit ratio of closing
// the open amount at the given rate.
func (p *Position) CalcProfitRatio(rate decimal.Decimal) decimal.Decimal {
	return p.CalculateProfit(rate).Ratio
}

// Recalc walks the order history in chronological order and rebuilds all
// derived fields from scratch. It is idempotent and performs no I/O, so a
// crashed update is recovered by re-fetching order state and replaying it.
//
// Entries feed the cost and quantity accumulators; each exit realizes
// profit against the average entry price as it stood at that point in the
// walk, which keeps interleaved averaging and partial exits correct.
func (p *Position) Recalc(isClosing bool) {
	currentAmount := decimal.Zero
	currentStake := decimal.Zero
	maxStakeAmount := decimal.Zero
	totalStake := decimal.Zero // entry stake only, exits do not subtract
	avgPrice := decimal.Zero
	closeProfit := decimal.Zero
	closeProfitAbs := decimal.Zero
	fundingFees := decimal.Zero

	p.FundingFees = decimal.Zero
	lastIdx := len(p.Orders) - 1

	for i, o := range p.Orders {
		if o.IsOpen() || o.SafeFilled().IsZero() {
			continue
		}
		if o.FundingFee != nil {
			fundingFees = fundingFees.Add(*o.FundingFee)
		}

		tmpAmount := o.SafeFilledAfterFee()
		tmpPrice := o.SafePrice()
		isExit := o.Side != order.SideEntry

		if tmpAmount.IsPositive() && !tmpPrice.IsZero() {
			if isExit {
				currentAmount = currentAmount.Sub(tmpAmount)
				currentStake = currentStake.Sub(avgPrice.Mul(tmpAmount))
			} else {
				currentAmount = currentAmount.Add(tmpAmount)
				currentStake = currentStake.Add(tmpPrice.Mul(tmpAmount))
				if currentAmount.IsPositive() {
					avgPrice = currentStake.Div(currentAmount)
				}
			}
		}

		if isExit {
			if i == lastIdx && isClosing {
				// Funding fees attributed so far apply to the closing order.
				p.FundingFees = fundingFees
			}

			prof := p.calcProfitAt(tmpPrice, tmpAmount, avgPrice)
			closeProfitAbs = closeProfitAbs.Add(prof.Abs)
			if totalStake.IsPositive() {
				// Re-derived on every exit over the total entry stake, so
				// the ratio always reflects the last realized exit.
				closeProfit = closeProfitAbs.Div(totalStake).Mul(p.Leverage)
			}
		} else {
			totalStake = totalStake.Add(p.calcOpenTradeValue(tmpAmount, tmpPrice))
			maxStakeAmount = maxStakeAmount.Add(tmpAmount.Mul(tmpPrice))
		}
	}

	p.FundingFees = fundingFees
	p.MaxStakeAmount = maxStakeAmount.Div(p.Leverage)

	if !closeProfit.IsZero() {
		p.CloseProfit = closeProfit.Round(money.PricePrecision)
		p.RealizedProfit = closeProfitAbs
	}

	if currentAmount.GreaterThan(money.Tolerance()) {
		// Position stays open.
		p.OpenRate = currentStake.Div(currentAmount).Round(money.PricePrecision)
		p.Amount = currentAmount
		p.StakeAmount = currentStake.Div(p.Leverage)
		p.RecalcOpenTradeValue()
	} else if isClosing && totalStake.IsPositive() {
		// Net quantity is dust: finalize from the accumulators.
		p.Amount = decimal.Zero
		p.CloseProfit = closeProfitAbs.Div(totalStake).Mul(p.Leverage).Round(money.PricePrecision)
		p.RealizedProfit = closeProfitAbs
	}

	p.UpdatedAt = time.Now().UTC()
}

// Update applies a filled order to the position and recomputes all
// derived state. Orders still open on the exchange are ignored.
func (p *Position) Update(o *order.Order) error {
	if o.IsOpen() || o.SafePrice().IsZero() {
		return nil
	}

	if o.Side != order.SideStopLoss {
		// Attribute funding accumulated since the previous fill.
		o.SetFundingFee(p.FundingFeeRunning)
		p.FundingFeeRunning = decimal.Zero
	}

	switch o.Side {
	case order.SideEntry:
		prevRate := p.OpenRate
		p.Recalc(false)
		if p.InitialStopLossPct != nil && !p.OpenRate.Equal(prevRate) {
			// An averaging entry moved the open rate; re-anchor the stop
			// to it. Exit fills never refresh, so a trailed stop keeps its
			// level through partial exits.
			p.AdjustStopLoss(p.OpenRate, p.StopLossPct.Abs(), true)
		}
	case order.SideExit:
		// Handled by the common close-or-recalc step below.
	case order.SideStopLoss:
		stop := p.StopLoss
		p.CloseRateRequested = &stop
		p.ExitReason = ExitReasonStopLoss
	default:
		return errors.Wrapf(errors.ErrUnknownOrderSide, "side %q on position %s", o.Side, p.Pair)
	}

	if o.Side != order.SideEntry {
		filled := o.SafeFilledAfterFee()
		if money.EqualWithin(filled, p.Amount) || filled.GreaterThan(p.Amount) {
			p.Close(o.SafePrice())
		} else {
			p.Recalc(false)
		}
	}

	return nil
}

// Close sets the close rate, finalizes total profit and irreversibly
// marks the position as closed.
func (p *Position) Close(rate decimal.Decimal) {
	r := rate
	p.CloseRate = &r
	if p.ClosedAt == nil {
		closedAt := p.LastFillTime()
		p.ClosedAt = &closedAt
	}
	p.IsOpen = false
	p.Recalc(true)
}
