package worker

import (
	"context"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// MessageSource delivers messages to a handler until ctx is done
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentOutcomeHandler applies payment outcomes to orders
type PaymentOutcomeHandler interface {
	HandlePaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error
	HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// OrderPlacedHandler captures payment for placed orders
type OrderPlacedHandler interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// OrderWorker consumes payments.captured and payments.failed and reconciles orders
type OrderWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer MessageSource, reconciliation PaymentOutcomeHandler) *OrderWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentCaptured(reconciliation.HandlePaymentCaptured)
	eventHandler.OnPaymentFailed(reconciliation.HandlePaymentFailed)

	return &OrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming until ctx is cancelled
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}

// PaymentWorker consumes orders.placed and captures payments
type PaymentWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer MessageSource, payments OrderPlacedHandler) *PaymentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(payments.HandleOrderPlaced)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming until ctx is cancelled
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}
