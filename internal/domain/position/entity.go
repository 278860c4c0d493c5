package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hermes/internal/domain/order"
	"hermes/pkg/errors"
)

// ExitReasonStopLoss marks positions closed by a stop-loss order fill.
const ExitReasonStopLoss = "stoploss"

// Position is the aggregate owning an ordered collection of orders for
// one pair. All derived fields (open rate, open quantity, stake,
// realized profit) are rebuilt from the order history by Recalc; the
// struct itself never talks to storage.
//
// Not safe for concurrent use: the caller serializes updates per position.
type Position struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Pair string    `db:"pair" json:"pair"`

	Direction   Direction       `db:"direction" json:"direction"`
	TradingMode TradingMode     `db:"trading_mode" json:"trading_mode"`
	Leverage    decimal.Decimal `db:"leverage" json:"leverage"`

	// Orders are append-only, ordered by fill time. Persisted separately.
	Orders []*order.Order `db:"-" json:"orders"`

	// Derived from entry fills
	OpenRate       decimal.Decimal `db:"open_rate" json:"open_rate"`
	Amount         decimal.Decimal `db:"amount" json:"amount"` // currently open quantity
	StakeAmount    decimal.Decimal `db:"stake_amount" json:"stake_amount"`
	MaxStakeAmount decimal.Decimal `db:"max_stake_amount" json:"max_stake_amount"`
	OpenTradeValue decimal.Decimal `db:"open_trade_value" json:"open_trade_value"`

	// Fee rates, first observed per side wins
	FeeOpen          decimal.Decimal `db:"fee_open" json:"fee_open"`
	FeeOpenCurrency  string          `db:"fee_open_currency" json:"fee_open_currency"`
	FeeClose         decimal.Decimal `db:"fee_close" json:"fee_close"`
	FeeCloseCurrency string          `db:"fee_close_currency" json:"fee_close_currency"`

	// Stop-loss state. InitialStopLossPct doubles as the state marker:
	// nil means no stop has ever been assigned.
	StopLoss           decimal.Decimal  `db:"stop_loss" json:"stop_loss"`
	StopLossPct        decimal.Decimal  `db:"stop_loss_pct" json:"stop_loss_pct"`
	InitialStopLoss    decimal.Decimal  `db:"initial_stop_loss" json:"initial_stop_loss"`
	InitialStopLossPct *decimal.Decimal `db:"initial_stop_loss_pct" json:"initial_stop_loss_pct,omitempty"`
	IsStopTrailing     bool             `db:"is_stop_trailing" json:"is_stop_trailing"`

	// Running price extrema since open
	MaxRate decimal.Decimal `db:"max_rate" json:"max_rate"`
	MinRate decimal.Decimal `db:"min_rate" json:"min_rate"`

	// Realized results across partial exits
	RealizedProfit     decimal.Decimal  `db:"realized_profit" json:"realized_profit"`
	CloseProfit        decimal.Decimal  `db:"close_profit" json:"close_profit"`
	CloseRate          *decimal.Decimal `db:"close_rate" json:"close_rate,omitempty"`
	CloseRateRequested *decimal.Decimal `db:"close_rate_requested" json:"close_rate_requested,omitempty"`
	ExitReason         string           `db:"exit_reason" json:"exit_reason"`

	// Futures: accumulated funding fees; FundingFeeRunning holds the part
	// not yet attributed to an order and is excluded from calculations.
	FundingFees       decimal.Decimal `db:"funding_fees" json:"funding_fees"`
	FundingFeeRunning decimal.Decimal `db:"funding_fee_running" json:"funding_fee_running"`

	// Margin: hourly interest rate on the borrowed notional
	InterestRate decimal.Decimal `db:"interest_rate" json:"interest_rate"`

	LiquidationPrice *decimal.Decimal `db:"liquidation_price" json:"liquidation_price,omitempty"`

	IsOpen    bool       `db:"is_open" json:"is_open"`
	OpenedAt  time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Direction defines long or short
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid checks if direction is valid
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// String returns string representation
func (d Direction) String() string {
	return string(d)
}

// TradingMode defines how the position is collateralized
type TradingMode string

const (
	ModeSpot    TradingMode = "spot"
	ModeMargin  TradingMode = "margin"
	ModeFutures TradingMode = "futures"
)

// Valid checks if trading mode is valid
func (m TradingMode) Valid() bool {
	switch m {
	case ModeSpot, ModeMargin, ModeFutures:
		return true
	}
	return false
}

// String returns string representation
func (m TradingMode) String() string {
	return string(m)
}

// Params holds the construction inputs for a position.
type Params struct {
	Pair        string
	Direction   Direction
	TradingMode TradingMode
	Leverage    decimal.Decimal
	FeeOpen     decimal.Decimal
	FeeClose    decimal.Decimal

	// InterestRate is required for margin mode.
	InterestRate decimal.Decimal

	OpenedAt time.Time
}

// New constructs a position. Configuration errors are fatal here rather
// than surfacing later as corrupted accounting.
func New(params Params) (*Position, error) {
	if params.Pair == "" {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, "pair is required")
	}
	if !params.Direction.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "direction %q", params.Direction)
	}
	if !params.TradingMode.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "trading mode %q", params.TradingMode)
	}
	if params.Direction == DirectionShort && params.TradingMode == ModeSpot {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, "spot mode cannot short")
	}
	leverage := params.Leverage
	if leverage.IsZero() {
		leverage = decimal.NewFromInt(1)
	}
	if leverage.LessThan(decimal.NewFromInt(1)) {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "leverage %s below 1", leverage)
	}
	if params.TradingMode == ModeMargin && params.InterestRate.IsZero() {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, "margin mode requires an interest rate")
	}

	openedAt := params.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}

	return &Position{
		ID:           uuid.New(),
		Pair:         params.Pair,
		Direction:    params.Direction,
		TradingMode:  params.TradingMode,
		Leverage:     leverage,
		FeeOpen:      params.FeeOpen,
		FeeClose:     params.FeeClose,
		InterestRate: params.InterestRate,
		IsOpen:       true,
		OpenedAt:     openedAt,
		UpdatedAt:    openedAt,
	}, nil
}

// IsShort returns true for short positions.
func (p *Position) IsShort() bool {
	return p.Direction == DirectionShort
}

// HasNoLeverage returns true for plain unleveraged longs.
func (p *Position) HasNoLeverage() bool {
	return p.Leverage.Equal(decimal.NewFromInt(1)) && !p.IsShort()
}

// Borrowed is the notional borrowed from the exchange for leveraged
// positions. In base currency for longs, the full amount for shorts.
func (p *Position) Borrowed() decimal.Decimal {
	if p.HasNoLeverage() {
		return decimal.Zero
	}
	if p.IsShort() {
		return p.Amount
	}
	one := decimal.NewFromInt(1)
	return p.Amount.Mul(p.OpenRate).Mul(p.Leverage.Sub(one)).Div(p.Leverage)
}

// AppendOrder attaches an order to the position. Orders are append-only.
func (p *Position) AppendOrder(o *order.Order) {
	o.PositionID = p.ID
	p.Orders = append(p.Orders, o)
}

// FindOrder returns the order matching the exchange order id, or nil.
func (p *Position) FindOrder(exchangeOrderID string) *order.Order {
	for _, o := range p.Orders {
		if o.ExchangeOrderID == exchangeOrderID {
			return o
		}
	}
	return nil
}

// FilledEntryCount returns the number of entry orders with fills.
func (p *Position) FilledEntryCount() int {
	n := 0
	for _, o := range p.Orders {
		if o.Side == order.SideEntry && o.IsFilled() {
			n++
		}
	}
	return n
}

// UpdateFee records the first observed fee for a side. Later
// observations for the same side are ignored.
func (p *Position) UpdateFee(feeCost decimal.Decimal, feeCurrency string, feeRate *decimal.Decimal, side order.Side) {
	switch {
	case side == order.SideEntry && p.FeeOpenCurrency == "":
		p.FeeOpenCurrency = feeCurrency
		if feeRate != nil {
			p.FeeOpen = *feeRate
			// Assume the close fee falls into the same category until
			// a close fill reports otherwise.
			p.FeeClose = *feeRate
		}
	case side != order.SideEntry && p.FeeCloseCurrency == "":
		p.FeeCloseCurrency = feeCurrency
		if feeRate != nil {
			p.FeeClose = *feeRate
		}
	}
}

// FeeUpdated reports whether the fee for a side has been observed.
func (p *Position) FeeUpdated(side order.Side) bool {
	if side == order.SideEntry {
		return p.FeeOpenCurrency != ""
	}
	return p.FeeCloseCurrency != ""
}

// AdjustMinMaxRates tracks the price extrema seen since open.
func (p *Position) AdjustMinMaxRates(currentPrice, currentPriceLow decimal.Decimal) {
	if p.MaxRate.IsZero() {
		p.MaxRate = p.OpenRate
	}
	if p.MinRate.IsZero() {
		p.MinRate = p.OpenRate
	}
	p.MaxRate = decimal.Max(currentPrice, p.MaxRate)
	p.MinRate = decimal.Min(currentPriceLow, p.MinRate)
}

// SetLiquidationPrice records the exchange-enforced liquidation boundary.
func (p *Position) SetLiquidationPrice(liquidationPrice decimal.Decimal) {
	lp := liquidationPrice
	p.LiquidationPrice = &lp
}

// SetFundingFees assigns the funding fees accumulated since the last
// filled order. The running part is attributed to the next closing order.
func (p *Position) SetFundingFees(fee decimal.Decimal) {
	p.FundingFeeRunning = fee

	prior := decimal.Zero
	for _, o := range p.Orders {
		if o.FundingFee != nil {
			prior = prior.Add(*o.FundingFee)
		}
	}
	p.FundingFees = prior.Add(fee)
}

// LastFillTime returns the time of the most recent fill, or the open time.
func (p *Position) LastFillTime() time.Time {
	last := p.OpenedAt
	for _, o := range p.Orders {
		if o.FilledAt != nil && o.FilledAt.After(last) {
			last = *o.FilledAt
		}
	}
	return last
}
