package service

import (
	"context"
	"errors"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationStore is the persistence the reconciliation service needs
type ReconciliationStore interface {
	UnitOfWork
	OrderRepository
	ProcessedEventRepository
}

// ReconciliationService applies payment outcomes to orders
type ReconciliationService struct {
	store                   ReconciliationStore
	ledger                  *InventoryLedger
	releaseOnPaymentFailure bool
	logger                  *zap.Logger
}

// NewReconciliationService creates a new reconciliation service.
// With releaseOnPaymentFailure set, units of an order cancelled by a failed payment go back to stock.
func NewReconciliationService(
	store ReconciliationStore,
	ledger *InventoryLedger,
	releaseOnPaymentFailure bool,
) *ReconciliationService {
	return &ReconciliationService{
		store:                   store,
		ledger:                  ledger,
		releaseOnPaymentFailure: releaseOnPaymentFailure,
		logger:                  util.GetLogger(),
	}
}

// HandlePaymentCaptured moves the order to PAID. Redelivered events leave it unchanged.
func (rs *ReconciliationService) HandlePaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	ctx, span := util.StartSpan(ctx, "ReconciliationService.HandlePaymentCaptured")
	defer span.End()

	rs.logger.Info("Payment captured", zap.String("order_id", event.OrderID.String()))

	return rs.apply(ctx, event.BaseEvent, event.OrderID, func(ctx context.Context, order *models.Order) error {
		if order.ConfirmPayment() {
			util.OrdersPaidTotal.Inc()
		}
		return nil
	})
}

// HandlePaymentFailed cancels the order
func (rs *ReconciliationService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "ReconciliationService.HandlePaymentFailed")
	defer span.End()

	rs.logger.Warn("Payment failed",
		zap.String("order_id", event.OrderID.String()),
		zap.String("reason", event.Reason))

	return rs.apply(ctx, event.BaseEvent, event.OrderID, func(ctx context.Context, order *models.Order) error {
		wasPlaced := order.Status == models.OrderStatusPlaced
		order.Cancel()
		util.OrdersCancelledTotal.WithLabelValues("payment_failed").Inc()

		if rs.releaseOnPaymentFailure && wasPlaced {
			for _, item := range order.Items {
				if err := rs.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("failed to release stock: %w", err)
				}
			}
		}
		return nil
	})
}

// apply runs mutate against the order in one unit of work, recording the event as processed
func (rs *ReconciliationService) apply(
	ctx context.Context,
	event models.BaseEvent,
	orderID uuid.UUID,
	mutate func(ctx context.Context, order *models.Order) error,
) error {
	err := rs.store.WithTx(ctx, func(ctx context.Context) error {
		if event.EventID != "" {
			processed, err := rs.store.IsEventProcessed(ctx, event.EventID)
			if err != nil {
				return fmt.Errorf("failed to check event processed: %w", err)
			}
			if processed {
				rs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
				return nil
			}
		}

		order, err := rs.store.GetOrderByID(ctx, orderID)
		if errors.Is(err, models.ErrOrderNotFound) {
			rs.logger.Warn("Order not found, skipping event",
				zap.String("order_id", orderID.String()),
				zap.String("event_type", event.EventType))
			return nil
		}
		if err != nil {
			return err
		}

		if err := mutate(ctx, order); err != nil {
			return err
		}
		if err := rs.store.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}

		if event.EventID != "" {
			if err := rs.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
				return fmt.Errorf("failed to mark event processed: %w", err)
			}
		}

		rs.logger.Info("Order reconciled",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(order.Status)))
		return nil
	})
	if err != nil {
		util.RecordError(ctx, err)
	}
	return err
}
