package service

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the persistence the payment service needs
type PaymentStore interface {
	UnitOfWork
	PaymentRepository
}

// PaymentService captures payments for placed orders
type PaymentService struct {
	store          PaymentStore
	gateway        Gateway
	eventPublisher PaymentEventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, gateway Gateway, eventPublisher PaymentEventPublisher) *PaymentService {
	return &PaymentService{
		store:          store,
		gateway:        gateway,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// HandleOrderPlaced captures payment for a placed order and publishes the outcome.
// Safe to re-run: an order never gets a second payment, and an already decided
// payment only has its outcome published again.
func (ps *PaymentService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleOrderPlaced")
	defer span.End()

	payment, err := ps.loadOrCreatePayment(ctx, event)
	if err != nil {
		util.RecordError(ctx, err)
		return err
	}

	switch payment.Status {
	case models.PaymentStatusCaptured:
		ps.logger.Info("Payment already captured, republishing",
			zap.String("order_id", event.OrderID.String()))
		return ps.publishCaptured(ctx, payment)
	case models.PaymentStatusFailed:
		ps.logger.Info("Payment already failed, republishing",
			zap.String("order_id", event.OrderID.String()))
		return ps.publishFailed(ctx, payment, "payment previously declined")
	case models.PaymentStatusRefunded:
		return nil
	}

	return ps.capture(ctx, payment)
}

func (ps *PaymentService) loadOrCreatePayment(ctx context.Context, event *models.OrderPlacedEvent) (*models.Payment, error) {
	payment := &models.Payment{
		ID:       uuid.New(),
		OrderID:  event.OrderID,
		TenantID: event.TenantID,
		Amount:   event.Total(),
		Status:   models.PaymentStatusPending,
	}

	created, err := ps.store.CreatePayment(ctx, payment)
	if err != nil {
		return nil, err
	}
	if created {
		return payment, nil
	}

	return ps.store.GetPaymentByOrderID(ctx, event.OrderID)
}

func (ps *PaymentService) capture(ctx context.Context, payment *models.Payment) error {
	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	ps.logger.Info("Capturing payment",
		zap.String("order_id", payment.OrderID.String()),
		zap.String("amount", payment.Amount.String()))

	result, err := ps.gateway.Capture(ctx, payment.OrderID, payment.Amount)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	if result.Captured {
		payment.Status = models.PaymentStatusCaptured
		payment.ProviderTxID = result.ProviderTxID
	} else {
		payment.Status = models.PaymentStatusFailed
	}

	if err := ps.store.UpdatePaymentStatus(ctx, payment.ID, payment.Status, payment.ProviderTxID); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	util.PaymentOutcomesTotal.WithLabelValues(string(payment.Status)).Inc()

	if result.Captured {
		ps.logger.Info("Payment captured",
			zap.String("order_id", payment.OrderID.String()),
			zap.String("tx_id", payment.ProviderTxID))
		return ps.publishCaptured(ctx, payment)
	}

	ps.logger.Warn("Payment failed",
		zap.String("order_id", payment.OrderID.String()),
		zap.String("reason", result.Reason))
	return ps.publishFailed(ctx, payment, result.Reason)
}

func (ps *PaymentService) publishCaptured(ctx context.Context, payment *models.Payment) error {
	return ps.eventPublisher.PublishPaymentCaptured(ctx, &models.PaymentCapturedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentCaptured),
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount.Amount(),
		Currency:  payment.Amount.Currency(),
	})
}

func (ps *PaymentService) publishFailed(ctx context.Context, payment *models.Payment, reason string) error {
	return ps.eventPublisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentFailed),
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Reason:    reason,
	})
}

// GetPayment retrieves the payment for an order
func (ps *PaymentService) GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return ps.store.GetPaymentByOrderID(ctx, orderID)
}

// RefundPayment refunds a captured payment and publishes payments.refunded
func (ps *PaymentService) RefundPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.RefundPayment")
	defer span.End()

	var payment *models.Payment
	err := ps.store.WithTx(ctx, func(ctx context.Context) error {
		loaded, err := ps.store.GetPaymentByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if loaded.Status != models.PaymentStatusCaptured {
			return fmt.Errorf("%w: status %s", models.ErrPaymentNotRefundable, loaded.Status)
		}

		loaded.Status = models.PaymentStatusRefunded
		if err := ps.store.UpdatePaymentStatus(ctx, loaded.ID, loaded.Status, loaded.ProviderTxID); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}

		if err := ps.eventPublisher.PublishPaymentRefunded(ctx, &models.PaymentRefundedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypePaymentRefunded),
			PaymentID: loaded.ID,
			OrderID:   loaded.OrderID,
			Message:   fmt.Sprintf("Payment refunded for order: %s", orderID),
		}); err != nil {
			return err
		}
		payment = loaded
		return nil
	})
	if err != nil {
		util.RecordError(ctx, err)
		return nil, err
	}

	util.PaymentOutcomesTotal.WithLabelValues(string(models.PaymentStatusRefunded)).Inc()
	ps.logger.Info("Payment refunded", zap.String("order_id", orderID.String()))
	return payment, nil
}
