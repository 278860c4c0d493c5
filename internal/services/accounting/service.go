package accounting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	kafkaadapter "hermes/internal/adapters/kafka"
	"hermes/internal/domain/order"
	"hermes/internal/domain/position"
	"hermes/internal/metrics"
	"hermes/internal/registry"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// SnapshotCache caches the latest committed state of open positions.
type SnapshotCache interface {
	StoreSnapshot(ctx context.Context, p *position.Position) error
	DropSnapshot(ctx context.Context, pair string) error
}

// EventPublisher publishes accounting lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Config holds the accounting defaults applied to new positions.
type Config struct {
	// StopLossPct is the default stop distance magnitude for new positions.
	StopLossPct decimal.Decimal

	// TrailingStop enables favorable-direction stop movement on price ticks.
	TrailingStop bool

	FeeOpen  decimal.Decimal
	FeeClose decimal.Decimal

	// InterestRate is applied to margin positions.
	InterestRate decimal.Decimal
}

// Service is the accounting engine entry point. It owns the lifecycle of
// positions: fills open and extend them, exits and stop fills close them,
// price ticks move the trailing stop. All state changes go through the
// registry, which persists a position with its orders atomically.
type Service struct {
	registry  registry.Registry
	cache     SnapshotCache
	publisher EventPublisher
	cfg       Config
	log       *logger.Logger
}

// NewService creates the accounting service. Cache and publisher may be
// nil, which disables snapshotting and event publishing.
func NewService(reg registry.Registry, cache SnapshotCache, publisher EventPublisher, cfg Config, log *logger.Logger) *Service {
	return &Service{
		registry:  reg,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// FillEvent is one observed order state change from the exchange
// connectivity layer. Placed marks the first observation of an order this
// engine placed itself; only those may create order records, anything
// else referencing an unknown order is rejected.
type FillEvent struct {
	Pair        string               `json:"pair"`
	Side        order.Side           `json:"side"`
	Direction   position.Direction   `json:"direction"`
	TradingMode position.TradingMode `json:"trading_mode"`
	Leverage    decimal.Decimal      `json:"leverage"`

	// Placement details, used when the event creates the order record
	Placed bool            `json:"placed"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`

	State order.ExchangeState `json:"state"`
}

// ProcessFill applies one fill event: resolves or opens the position,
// resolves or creates the order, merges the observed state, reruns the
// accounting walk and commits the result.
func (s *Service) ProcessFill(ctx context.Context, ev FillEvent) (*position.Position, error) {
	start := time.Now()
	pos, err := s.processFill(ctx, ev)
	metrics.RecordFill(ev.Pair, ev.Side.String(), time.Since(start), err)
	return pos, err
}

func (s *Service) processFill(ctx context.Context, ev FillEvent) (*position.Position, error) {
	pos, err := s.registry.GetOpen(ctx, ev.Pair)
	if errors.Is(err, errors.ErrPositionNotFound) {
		pos, err = s.openPosition(ctx, ev)
	}
	if err != nil {
		return nil, err
	}

	o := pos.FindOrder(ev.State.OrderID)
	if o == nil {
		if !ev.Placed {
			return nil, errors.Wrapf(errors.ErrIdentityMismatch,
				"fill for unknown order %s on %s", ev.State.OrderID, ev.Pair)
		}
		o = order.New(pos.ID, ev.State.OrderID, ev.Pair, ev.Side, ev.Amount, ev.Price)
		pos.AppendOrder(o)
	}

	wasFirstEntry := pos.FilledEntryCount() == 0

	if err := o.ApplyExchangeState(ev.State); err != nil {
		return nil, err
	}

	if !o.Fee.IsZero() && !pos.FeeUpdated(o.Side) {
		pos.UpdateFee(o.Fee, o.FeeCurrency, ev.State.FeeRate, o.Side)
	}

	if o.IsFilled() {
		if err := pos.Update(o); err != nil {
			return nil, err
		}

		if pos.IsOpen && pos.InitialStopLossPct == nil && !s.cfg.StopLossPct.IsZero() {
			pos.AdjustStopLoss(pos.OpenRate, s.cfg.StopLossPct, false)
			metrics.RecordStopAdjustment(pos.Pair, "initial")
		}
	}

	if err := s.registry.Commit(ctx, pos); err != nil {
		return nil, errors.Wrap(err, "commit position")
	}

	s.afterCommit(ctx, pos, o, wasFirstEntry)
	return pos, nil
}

func (s *Service) openPosition(ctx context.Context, ev FillEvent) (*position.Position, error) {
	if ev.Side != order.SideEntry {
		return nil, errors.Wrapf(errors.ErrPositionNotFound,
			"%s fill for %s without an open position", ev.Side, ev.Pair)
	}

	params := position.Params{
		Pair:        ev.Pair,
		Direction:   ev.Direction,
		TradingMode: ev.TradingMode,
		Leverage:    ev.Leverage,
		FeeOpen:     s.cfg.FeeOpen,
		FeeClose:    s.cfg.FeeClose,
	}
	if ev.TradingMode == position.ModeMargin {
		params.InterestRate = s.cfg.InterestRate
	}

	pos, err := position.New(params)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Add(ctx, pos); err != nil {
		return nil, errors.Wrap(err, "register position")
	}

	s.log.Infow("Opened position",
		"pair", pos.Pair,
		"direction", pos.Direction,
		"trading_mode", pos.TradingMode,
		"leverage", pos.Leverage,
	)
	return pos, nil
}

// afterCommit handles the non-transactional side effects of a processed
// fill: snapshot cache, lifecycle events and metrics. Failures here are
// logged, the accounting state is already safe.
func (s *Service) afterCommit(ctx context.Context, pos *position.Position, o *order.Order, wasFirstEntry bool) {
	if pos.IsOpen {
		s.storeSnapshot(ctx, pos)
	} else {
		s.dropSnapshot(ctx, pos.Pair)
	}

	if o.IsFilled() && wasFirstEntry && o.Side == order.SideEntry {
		s.publish(ctx, kafkaadapter.TopicPositionOpened, pos)
	}
	if !pos.IsOpen {
		s.publish(ctx, kafkaadapter.TopicPositionClosed, pos)
		profit, _ := pos.RealizedProfit.Float64()
		metrics.RecordPositionClosed(pos.Pair, pos.ExitReason, profit)

		s.log.Infow("Closed position",
			"pair", pos.Pair,
			"exit_reason", pos.ExitReason,
			"realized_profit", pos.RealizedProfit,
			"close_profit", pos.CloseProfit,
		)
	}

	if n, err := s.registry.OpenCount(ctx); err == nil {
		metrics.PositionsOpen.Set(float64(n))
	}
}

// StopUpdate is a per-candle instruction from the strategy layer.
type StopUpdate struct {
	Pair         string           `json:"pair"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	CurrentLow   decimal.Decimal  `json:"current_low"`
	StopLossPct  *decimal.Decimal `json:"stop_loss_pct,omitempty"`
	Liquidation  *decimal.Decimal `json:"liquidation_price,omitempty"`
}

// AdjustStops applies a price tick to the open position of a pair:
// tracks price extrema, records the liquidation boundary and trails the
// stop-loss when trailing is enabled.
func (s *Service) AdjustStops(ctx context.Context, upd StopUpdate) error {
	pos, err := s.registry.GetOpen(ctx, upd.Pair)
	if err != nil {
		return err
	}

	low := upd.CurrentLow
	if low.IsZero() {
		low = upd.CurrentPrice
	}
	pos.AdjustMinMaxRates(upd.CurrentPrice, low)

	if upd.Liquidation != nil {
		pos.SetLiquidationPrice(*upd.Liquidation)
	}

	stopPct := s.cfg.StopLossPct
	if upd.StopLossPct != nil {
		stopPct = upd.StopLossPct.Abs()
	}

	if !stopPct.IsZero() && (s.cfg.TrailingStop || pos.InitialStopLossPct == nil) {
		before := pos.StopLoss
		pos.AdjustStopLoss(upd.CurrentPrice, stopPct, false)
		if !pos.StopLoss.Equal(before) {
			kind := "trailing"
			if before.IsZero() {
				kind = "initial"
			}
			metrics.RecordStopAdjustment(pos.Pair, kind)
			s.log.Debugw("Adjusted stop-loss",
				"pair", pos.Pair,
				"stop_loss", pos.StopLoss,
				"trailing", pos.IsStopTrailing,
			)
		}
	}

	if err := s.registry.Commit(ctx, pos); err != nil {
		return errors.Wrap(err, "commit position")
	}
	s.storeSnapshot(ctx, pos)
	return nil
}

// ApplyFunding records the funding fees accumulated since the last fill
// of a futures position.
func (s *Service) ApplyFunding(ctx context.Context, pair string, fee decimal.Decimal) error {
	pos, err := s.registry.GetOpen(ctx, pair)
	if err != nil {
		return err
	}
	if pos.TradingMode != position.ModeFutures {
		return nil
	}

	pos.SetFundingFees(fee)

	if err := s.registry.Commit(ctx, pos); err != nil {
		return errors.Wrap(err, "commit position")
	}
	s.storeSnapshot(ctx, pos)
	return nil
}

// EffectiveStop returns the stop level risk decisions should use for the
// open position of a pair, clamped to the liquidation boundary.
func (s *Service) EffectiveStop(ctx context.Context, pair string) (decimal.Decimal, error) {
	pos, err := s.registry.GetOpen(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	return pos.StopLossOrLiquidation(), nil
}

func (s *Service) storeSnapshot(ctx context.Context, pos *position.Position) {
	if s.cache == nil {
		return
	}
	if err := s.cache.StoreSnapshot(ctx, pos); err != nil {
		s.log.Warnw("Failed to store position snapshot", "pair", pos.Pair, "error", err)
	}
}

func (s *Service) dropSnapshot(ctx context.Context, pair string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DropSnapshot(ctx, pair); err != nil {
		s.log.Warnw("Failed to drop position snapshot", "pair", pair, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, topic string, pos *position.Position) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, topic, pos.Pair, pos)
	metrics.RecordKafkaMessage(topic, "produced", err)
	if err != nil {
		s.log.Warnw("Failed to publish position event", "topic", topic, "pair", pos.Pair, "error", err)
	}
}
