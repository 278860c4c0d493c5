package consumers

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	kafkaadapter "hermes/internal/adapters/kafka"
	"hermes/internal/metrics"
	"hermes/internal/services/accounting"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// StopConsumer consumes per-candle stop instructions from the strategy
// layer and applies them to open positions.
type StopConsumer struct {
	consumer *kafkaadapter.Consumer
	svc      *accounting.Service
	logger   *logger.Logger
}

// NewStopConsumer creates a new stop update consumer
func NewStopConsumer(consumer *kafkaadapter.Consumer, svc *accounting.Service, log *logger.Logger) *StopConsumer {
	return &StopConsumer{
		consumer: consumer,
		svc:      svc,
		logger:   log,
	}
}

// Start begins consuming stop updates
func (c *StopConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting stop consumer")
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close shuts down the underlying consumer
func (c *StopConsumer) Close() error {
	return c.consumer.Close()
}

func (c *StopConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	metrics.RecordKafkaMessage(kafkaadapter.TopicStopUpdates, "consumed", nil)

	var update accounting.StopUpdate
	if err := json.Unmarshal(msg.Value, &update); err != nil {
		return errors.Wrap(err, "failed to unmarshal stop update")
	}
	if update.Pair == "" || update.CurrentPrice.IsZero() {
		return errors.Wrap(errors.ErrInvalidInput, "stop update missing pair or price")
	}

	err := c.svc.AdjustStops(ctx, update)
	if errors.Is(err, errors.ErrPositionNotFound) {
		// Ticks for pairs without an open position are routine.
		c.logger.Debugw("No open position for stop update", "pair", update.Pair)
		return nil
	}
	if err != nil {
		c.logger.Errorw("Failed to adjust stops", "pair", update.Pair, "error", err)
		return err
	}
	return nil
}
