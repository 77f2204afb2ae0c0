package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends a keyed event to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
	Close() error
}

// NoopPublisher drops every event. Used when no Kafka brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, topic, key string, _ interface{}) error {
	util.GetLogger().Debug("Dropping event, no broker configured",
		zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (NoopPublisher) Close() error { return nil }

// EventPublisher handles publishing domain events
type EventPublisher struct {
	publisher Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(publisher Publisher) *EventPublisher {
	return &EventPublisher{publisher: publisher}
}

// PublishOrderPlaced publishes to orders.placed
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.publisher.Publish(ctx, models.TopicOrdersPlaced, event.OrderID.String(), event)
}

// PublishOrderCancelled publishes to orders.cancelled
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, orderID uuid.UUID) error {
	event := &models.OrderNoticeEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Message:   fmt.Sprintf("Order cancelled: %s", orderID),
	}
	return ep.publisher.Publish(ctx, models.TopicOrdersCancelled, orderID.String(), event)
}

// PublishOrderSettled publishes to orders.settled
func (ep *EventPublisher) PublishOrderSettled(ctx context.Context, orderID uuid.UUID) error {
	event := &models.OrderNoticeEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderSettled),
		OrderID:   orderID,
		Message:   fmt.Sprintf("Order settled: %s", orderID),
	}
	return ep.publisher.Publish(ctx, models.TopicOrdersSettled, orderID.String(), event)
}

// PublishPaymentCaptured publishes to payments.captured
func (ep *EventPublisher) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	return ep.publisher.Publish(ctx, models.TopicPaymentsCaptured, event.OrderID.String(), event)
}

// PublishPaymentFailed publishes to payments.failed
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.publisher.Publish(ctx, models.TopicPaymentsFailed, event.OrderID.String(), event)
}

// PublishPaymentRefunded publishes to payments.refunded
func (ep *EventPublisher) PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	return ep.publisher.Publish(ctx, models.TopicPaymentsRefunded, event.OrderID.String(), event)
}

// EventHandler routes incoming messages to handlers by topic
type EventHandler struct {
	onOrderPlaced     func(context.Context, *models.OrderPlacedEvent) error
	onPaymentCaptured func(context.Context, *models.PaymentCapturedEvent) error
	onPaymentFailed   func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderPlaced registers a handler for orders.placed
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnPaymentCaptured registers a handler for payments.captured
func (eh *EventHandler) OnPaymentCaptured(handler func(context.Context, *models.PaymentCapturedEvent) error) {
	eh.onPaymentCaptured = handler
}

// OnPaymentFailed registers a handler for payments.failed
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	logger := util.GetLogger()

	switch msg.Topic {
	case models.TopicOrdersPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := decode(msg, &event); err != nil {
				return err
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.TopicPaymentsCaptured:
		if eh.onPaymentCaptured != nil {
			var event models.PaymentCapturedEvent
			if err := decode(msg, &event); err != nil {
				return err
			}
			return eh.onPaymentCaptured(ctx, &event)
		}

	case models.TopicPaymentsFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := decode(msg, &event); err != nil {
				return err
			}
			return eh.onPaymentFailed(ctx, &event)
		}
	}

	logger.Debug("Unhandled topic", zap.String("topic", msg.Topic))
	return nil
}

func decode(msg kafka.Message, event interface{}) error {
	if err := json.Unmarshal(msg.Value, event); err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrMalformedEvent, msg.Topic, err)
	}
	return nil
}
