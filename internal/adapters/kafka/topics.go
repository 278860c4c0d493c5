package kafka

// Topic definitions for Kafka event streaming
const (
	// Inbound: normalized observed order states from the exchange
	// connectivity layer, one event per fill/placement update
	TopicOrderFills = "orders.fills"

	// Inbound: per-candle stop-loss instructions from the strategy layer
	TopicStopUpdates = "strategy.stops"

	// Outbound: accounting lifecycle events
	TopicPositionOpened = "positions.opened"
	TopicPositionClosed = "positions.closed"
)
