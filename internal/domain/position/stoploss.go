package position

import (
	"github.com/shopspring/decimal"

	"hermes/internal/domain/money"
)

// Stop-loss state machine: unset -> initial -> trailing. The initial
// stop is recorded permanently on first assignment; afterwards the stop
// only moves in the favorable direction (up for longs, down for shorts)
// unless the caller explicitly allows a refresh.

// setStopLoss assigns the stop level and records the initial level once.
func (p *Position) setStopLoss(stopLoss, percent decimal.Decimal) {
	if p.StopLoss.IsZero() {
		p.InitialStopLoss = stopLoss
	}
	p.StopLoss = stopLoss
	p.StopLossPct = percent.Abs().Neg()
}

// AdjustStopLoss moves the stop-loss to the level implied by the current
// price and the given offset magnitude. The candidate level is rounded
// away from the position, so the stop is never optimistic.
//
// allowRefresh permits movement in both directions and is only used
// after a position-averaging entry changed the open rate; a refresh does
// not count as trailing and discards any earlier trailing state.
func (p *Position) AdjustStopLoss(currentPrice, stopLossPct decimal.Decimal, allowRefresh bool) {
	offset := stopLossPct.Abs().Div(p.Leverage)

	var candidate decimal.Decimal
	if p.IsShort() {
		candidate = money.CeilPrice(currentPrice.Mul(one.Add(offset)))
	} else {
		candidate = money.FloorPrice(currentPrice.Mul(one.Sub(offset)))
	}

	// No stop assigned yet: unset -> initial.
	if p.InitialStopLossPct == nil {
		p.setStopLoss(candidate, stopLossPct)
		p.InitialStopLoss = candidate
		initialPct := stopLossPct.Abs().Neg()
		p.InitialStopLossPct = &initialPct
		return
	}

	higherStop := candidate.GreaterThan(p.StopLoss)
	lowerStop := candidate.LessThan(p.StopLoss)

	// Stop losses only walk in the favorable direction, never back.
	if allowRefresh || (higherStop && !p.IsShort()) || (lowerStop && p.IsShort()) {
		// A refresh re-anchors the stop to the open rate, so any prior
		// trailing state is discarded rather than kept stale.
		p.IsStopTrailing = !allowRefresh
		p.setStopLoss(candidate, stopLossPct)
	}
}

// StopLossOrLiquidation returns the effective stop used for risk
// decisions: the stop must never be treated as safer than the exchange's
// liquidation boundary.
func (p *Position) StopLossOrLiquidation() decimal.Decimal {
	if p.LiquidationPrice != nil {
		if p.IsShort() {
			return decimal.Min(p.StopLoss, *p.LiquidationPrice)
		}
		return decimal.Max(p.StopLoss, *p.LiquidationPrice)
	}
	return p.StopLoss
}
