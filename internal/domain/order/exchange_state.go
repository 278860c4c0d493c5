package order

import (
	"time"

	"github.com/shopspring/decimal"

	"hermes/pkg/errors"
)

// ExchangeState is the typed patch of externally-observed order fields
// delivered by the exchange connectivity layer. Nil fields were not
// present in the observation and never overwrite known values.
type ExchangeState struct {
	OrderID string `json:"order_id"`

	Status    *Status          `json:"status,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Average   *decimal.Decimal `json:"average,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Filled    *decimal.Decimal `json:"filled,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
	StopPrice *decimal.Decimal `json:"stop_price,omitempty"`

	FeeCost     *decimal.Decimal `json:"fee_cost,omitempty"`
	FeeBase     *decimal.Decimal `json:"fee_base,omitempty"`
	FeeRate     *decimal.Decimal `json:"fee_rate,omitempty"`
	FeeCurrency *string          `json:"fee_currency,omitempty"`

	Timestamp     *time.Time `json:"timestamp,omitempty"`
	FillTimestamp *time.Time `json:"fill_timestamp,omitempty"`
}

// ApplyExchangeState merges an observed order state into the order.
// Merge policy: a field is only updated when new data is present, a known
// value is never overwritten with an absent one. FilledAmount never
// decreases and Status never leaves a terminal state.
func (o *Order) ApplyExchangeState(state ExchangeState) error {
	if state.OrderID != o.ExchangeOrderID {
		return errors.Wrapf(errors.ErrIdentityMismatch,
			"order %s got state for %s", o.ExchangeOrderID, state.OrderID)
	}

	wasTerminal := o.Status.IsTerminal()

	if state.Status != nil && !wasTerminal {
		o.Status = *state.Status
	}
	if state.Price != nil {
		o.Price = *state.Price
	}
	if state.Average != nil {
		o.AvgFillPrice = *state.Average
	}
	if state.Amount != nil {
		o.Amount = *state.Amount
	}
	if state.Filled != nil && state.Filled.GreaterThanOrEqual(o.FilledAmount) {
		o.FilledAmount = *state.Filled
	}
	if state.Remaining != nil {
		o.Remaining = *state.Remaining
	}
	if state.StopPrice != nil {
		o.StopPrice = *state.StopPrice
	}
	if state.FeeCost != nil {
		o.Fee = *state.FeeCost
	}
	if state.FeeBase != nil {
		o.FeeBase = *state.FeeBase
	}
	if state.FeeCurrency != nil {
		o.FeeCurrency = *state.FeeCurrency
	}
	if state.Timestamp != nil {
		o.PlacedAt = state.Timestamp.UTC()
	} else if o.PlacedAt.IsZero() {
		o.PlacedAt = time.Now().UTC()
	}

	// Stamp the fill date exactly once, on the first transition into a
	// terminal state with something executed.
	if o.Status.IsTerminal() && o.FilledAmount.IsPositive() && o.FilledAt == nil {
		filledAt := time.Now().UTC()
		if state.FillTimestamp != nil {
			filledAt = state.FillTimestamp.UTC()
		}
		o.FilledAt = &filledAt
	}

	o.UpdatedAt = time.Now().UTC()
	return nil
}
