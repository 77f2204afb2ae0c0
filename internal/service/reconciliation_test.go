package service

import (
	"context"
	"testing"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedEvent(orderID uuid.UUID) *models.PaymentCapturedEvent {
	return &models.PaymentCapturedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentCaptured),
		PaymentID: uuid.New(),
		OrderID:   orderID,
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
	}
}

func failedEvent(orderID uuid.UUID) *models.PaymentFailedEvent {
	return &models.PaymentFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentFailed),
		PaymentID: uuid.New(),
		OrderID:   orderID,
		Reason:    "card_declined",
	}
}

func TestReconcilePaymentCaptured(t *testing.T) {
	f := newOrderFixture(t, false)
	rs := NewReconciliationService(f.store, NewInventoryLedger(f.store), false)
	ctx := context.Background()

	order, err := f.svc.PlaceOrder(ctx, f.request(2, ""))
	require.NoError(t, err)

	require.NoError(t, rs.HandlePaymentCaptured(ctx, capturedEvent(order.ID)))
	assert.Equal(t, models.OrderStatusPaid, f.store.order(order.ID).Status)

	// a distinct capture event for an already paid order changes nothing
	require.NoError(t, rs.HandlePaymentCaptured(ctx, capturedEvent(order.ID)))
	assert.Equal(t, models.OrderStatusPaid, f.store.order(order.ID).Status)
}

func TestReconcilePaymentFailed(t *testing.T) {
	t.Run("keeps stock by default", func(t *testing.T) {
		f := newOrderFixture(t, false)
		rs := NewReconciliationService(f.store, NewInventoryLedger(f.store), false)
		ctx := context.Background()

		order, err := f.svc.PlaceOrder(ctx, f.request(2, ""))
		require.NoError(t, err)

		require.NoError(t, rs.HandlePaymentFailed(ctx, failedEvent(order.ID)))
		assert.Equal(t, models.OrderStatusCancelled, f.store.order(order.ID).Status)
		assert.Equal(t, 8, f.store.stock(f.product))
	})

	t.Run("releases stock when configured", func(t *testing.T) {
		f := newOrderFixture(t, false)
		rs := NewReconciliationService(f.store, NewInventoryLedger(f.store), true)
		ctx := context.Background()

		order, err := f.svc.PlaceOrder(ctx, f.request(2, ""))
		require.NoError(t, err)

		event := failedEvent(order.ID)
		require.NoError(t, rs.HandlePaymentFailed(ctx, event))
		assert.Equal(t, 10, f.store.stock(f.product))

		// redelivery of the same event does not release twice
		require.NoError(t, rs.HandlePaymentFailed(ctx, event))
		assert.Equal(t, 10, f.store.stock(f.product))

		// nor does a second failure notice for an already cancelled order
		require.NoError(t, rs.HandlePaymentFailed(ctx, failedEvent(order.ID)))
		assert.Equal(t, 10, f.store.stock(f.product))
	})
}

func TestReconcileSkipsProcessedEvents(t *testing.T) {
	f := newOrderFixture(t, false)
	rs := NewReconciliationService(f.store, NewInventoryLedger(f.store), false)
	ctx := context.Background()

	order, err := f.svc.PlaceOrder(ctx, f.request(1, ""))
	require.NoError(t, err)

	failed := failedEvent(order.ID)
	require.NoError(t, rs.HandlePaymentFailed(ctx, failed))
	assert.True(t, f.store.processed[failed.EventID])

	// reset the order; replaying the processed event must not touch it
	stored := f.store.orders[order.ID]
	stored.Status = models.OrderStatusPaid
	f.store.orders[order.ID] = stored

	require.NoError(t, rs.HandlePaymentFailed(ctx, failed))
	assert.Equal(t, models.OrderStatusPaid, f.store.order(order.ID).Status)
}

func TestReconcileUnknownOrderIsSkipped(t *testing.T) {
	store := newFakeStore()
	rs := NewReconciliationService(store, NewInventoryLedger(store), true)

	assert.NoError(t, rs.HandlePaymentCaptured(context.Background(), capturedEvent(uuid.New())))
	assert.NoError(t, rs.HandlePaymentFailed(context.Background(), failedEvent(uuid.New())))
	assert.Empty(t, store.orders)
}

func TestReconcileRollsBackOnSaveFailure(t *testing.T) {
	f := newOrderFixture(t, false)
	rs := NewReconciliationService(f.store, NewInventoryLedger(f.store), true)
	ctx := context.Background()

	order, err := f.svc.PlaceOrder(ctx, f.request(2, ""))
	require.NoError(t, err)

	f.store.saveErr = assert.AnError
	event := failedEvent(order.ID)
	assert.ErrorIs(t, rs.HandlePaymentFailed(ctx, event), assert.AnError)
	assert.Equal(t, 8, f.store.stock(f.product), "release is undone with the failed save")
	assert.False(t, f.store.processed[event.EventID])

	f.store.saveErr = nil
	require.NoError(t, rs.HandlePaymentFailed(ctx, event))
	assert.Equal(t, models.OrderStatusCancelled, f.store.order(order.ID).Status)
	assert.Equal(t, 10, f.store.stock(f.product))
}
