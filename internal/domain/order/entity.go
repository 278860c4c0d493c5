package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order keeps a record of a single exchange order (entry, exit or
// stop-loss) belonging to one position.
//
// One to many relationship with positions:
//   - One position can have many orders
//   - One order can only be associated with one position
//
// Uniqueness is ensured over (pair, exchange_order_id): the same fill
// observed twice must map to the same row.
type Order struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PositionID uuid.UUID `db:"position_id" json:"position_id"`

	ExchangeOrderID string `db:"exchange_order_id" json:"exchange_order_id"`
	Pair            string `db:"pair" json:"pair"`

	Side   Side   `db:"side" json:"side"`     // entry, exit, stoploss
	Status Status `db:"status" json:"status"` // exchange-derived, never invented locally

	// Quantities. Amount is the requested quantity, FilledAmount what the
	// exchange reports as executed. FilledAmount never decreases.
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	FilledAmount decimal.Decimal `db:"filled_amount" json:"filled_amount"`
	Remaining    decimal.Decimal `db:"remaining" json:"remaining"`

	// Prices. A zero decimal means "not observed yet"; use the Safe*
	// accessors which apply the fallback chain.
	Price        decimal.Decimal `db:"price" json:"price"`
	AvgFillPrice decimal.Decimal `db:"avg_fill_price" json:"avg_fill_price"`
	StopPrice    decimal.Decimal `db:"stop_price" json:"stop_price"`

	// Fees. Fee is charged in quote currency; FeeBase is the portion paid
	// in base currency and reduces the effective filled amount.
	Fee         decimal.Decimal `db:"fee" json:"fee"`
	FeeCurrency string          `db:"fee_currency" json:"fee_currency"`
	FeeBase     decimal.Decimal `db:"fee_base" json:"fee_base"`

	// FundingFee is assigned at most once, to the order that fully closes
	// a futures position.
	FundingFee *decimal.Decimal `db:"funding_fee" json:"funding_fee,omitempty"`

	PlacedAt  time.Time  `db:"placed_at" json:"placed_at"`
	FilledAt  *time.Time `db:"filled_at" json:"filled_at,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Side defines the role of an order within its position
type Side string

const (
	SideEntry    Side = "entry"
	SideExit     Side = "exit"
	SideStopLoss Side = "stoploss"
)

// Valid checks if order side is valid
func (s Side) Valid() bool {
	return s == SideEntry || s == SideExit || s == SideStopLoss
}

// String returns string representation
func (s Side) String() string {
	return string(s)
}

// Status defines order lifecycle status as observed on the exchange
type Status string

const (
	StatusOpen     Status = "open"
	StatusCanceled Status = "canceled"
	StatusClosed   Status = "closed"
)

// Valid checks if order status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusCanceled, StatusClosed:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if order is in terminal state
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusClosed
}

// New creates an order record for a placement on the exchange.
func New(positionID uuid.UUID, exchangeOrderID, pair string, side Side, amount, price decimal.Decimal) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:              uuid.New(),
		PositionID:      positionID,
		ExchangeOrderID: exchangeOrderID,
		Pair:            pair,
		Side:            side,
		Status:          StatusOpen,
		Amount:          amount,
		Remaining:       amount,
		Price:           price,
		PlacedAt:        now,
		UpdatedAt:       now,
	}
}

// IsOpen returns true while the exchange still considers the order active.
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// IsFilled reports whether the order reached a terminal state with a
// non-zero executed quantity. Only filled orders enter the accounting walk.
func (o *Order) IsFilled() bool {
	return o.Status.IsTerminal() && o.FilledAmount.IsPositive()
}

// SafePrice returns the best known execution price: average fill price,
// then requested price, then stop trigger price.
func (o *Order) SafePrice() decimal.Decimal {
	if !o.AvgFillPrice.IsZero() {
		return o.AvgFillPrice
	}
	if !o.Price.IsZero() {
		return o.Price
	}
	return o.StopPrice
}

// SafeFilled returns the executed quantity.
func (o *Order) SafeFilled() decimal.Decimal {
	return o.FilledAmount
}

// SafeRemaining returns the unexecuted quantity.
func (o *Order) SafeRemaining() decimal.Decimal {
	if !o.Remaining.IsZero() {
		return o.Remaining
	}
	return o.Amount.Sub(o.FilledAmount)
}

// SafeFilledAfterFee returns the executed quantity reduced by any fee
// paid in base currency.
func (o *Order) SafeFilledAfterFee() decimal.Decimal {
	return o.FilledAmount.Sub(o.FeeBase)
}

// SetFundingFee assigns the funding fee accumulated since the previous
// fill. Only the first assignment sticks.
func (o *Order) SetFundingFee(fee decimal.Decimal) {
	if o.FundingFee != nil {
		return
	}
	o.FundingFee = &fee
}
