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

// FillConsumer consumes observed order states from Kafka and feeds them
// into the accounting engine.
type FillConsumer struct {
	consumer *kafkaadapter.Consumer
	svc      *accounting.Service
	logger   *logger.Logger
}

// NewFillConsumer creates a new fill event consumer
func NewFillConsumer(consumer *kafkaadapter.Consumer, svc *accounting.Service, log *logger.Logger) *FillConsumer {
	return &FillConsumer{
		consumer: consumer,
		svc:      svc,
		logger:   log,
	}
}

// Start begins consuming fill events
func (c *FillConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting fill consumer")
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close shuts down the underlying consumer
func (c *FillConsumer) Close() error {
	return c.consumer.Close()
}

func (c *FillConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	metrics.RecordKafkaMessage(kafkaadapter.TopicOrderFills, "consumed", nil)

	var event accounting.FillEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal fill event")
	}
	if event.Pair == "" || event.State.OrderID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "fill event missing pair or order id")
	}

	pos, err := c.svc.ProcessFill(ctx, event)
	if err != nil {
		c.logger.Errorw("Failed to process fill",
			"pair", event.Pair,
			"order_id", event.State.OrderID,
			"side", event.Side,
			"error", err,
		)
		return err
	}

	c.logger.Debugw("Processed fill",
		"pair", pos.Pair,
		"order_id", event.State.OrderID,
		"open", pos.IsOpen,
		"amount", pos.Amount,
	)
	return nil
}
