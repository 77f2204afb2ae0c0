package service

import (
	"context"
	"testing"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineBus delivers events to the next saga step once the publishing call returns
type inlineBus struct {
	fakePublisher
	sagaServices
	pending []func(ctx context.Context) error
}

func (b *inlineBus) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if err := b.fakePublisher.PublishOrderPlaced(ctx, event); err != nil {
		return err
	}
	b.pending = append(b.pending, func(ctx context.Context) error {
		return b.payments.HandleOrderPlaced(ctx, event)
	})
	return nil
}

func (b *inlineBus) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	if err := b.fakePublisher.PublishPaymentCaptured(ctx, event); err != nil {
		return err
	}
	b.pending = append(b.pending, func(ctx context.Context) error {
		return b.reconciliation.HandlePaymentCaptured(ctx, event)
	})
	return nil
}

func (b *inlineBus) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	if err := b.fakePublisher.PublishPaymentFailed(ctx, event); err != nil {
		return err
	}
	b.pending = append(b.pending, func(ctx context.Context) error {
		return b.reconciliation.HandlePaymentFailed(ctx, event)
	})
	return nil
}

func (b *inlineBus) drain(t *testing.T) {
	t.Helper()
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		require.NoError(t, next(context.Background()))
	}
}

type sagaServices struct {
	payments       *PaymentService
	reconciliation *ReconciliationService
}

type saga struct {
	*inlineBus
	store    *fakeStore
	orders   *OrderService
	customer uuid.UUID
	product  uuid.UUID
}

func newSaga(gateway Gateway) *saga {
	store := newFakeStore()
	customer := uuid.New()
	store.customers[customer] = true
	product := store.addProduct("50.00", 10)

	bus := &inlineBus{}
	ledger := NewInventoryLedger(store)
	bus.sagaServices = sagaServices{
		payments:       NewPaymentService(store, gateway, bus),
		reconciliation: NewReconciliationService(store, ledger, false),
	}

	return &saga{
		inlineBus: bus,
		store:     store,
		orders:    NewOrderService(store, ledger, bus, false),
		customer:  customer,
		product:   product,
	}
}

func (s *saga) place(t *testing.T) *models.Order {
	t.Helper()
	order, err := s.orders.PlaceOrder(context.Background(), &PlaceOrderRequest{
		TenantID:   "tenant-1",
		CustomerID: s.customer,
		Items:      []OrderItemRequest{{ProductID: s.product, Quantity: 2}},
	})
	require.NoError(t, err)
	return order
}

func TestSagaPaymentCaptured(t *testing.T) {
	s := newSaga(&fakeGateway{})

	order := s.place(t)
	assert.Equal(t, models.OrderStatusPlaced, s.store.order(order.ID).Status)

	s.drain(t)

	assert.Equal(t, models.OrderStatusPaid, s.store.order(order.ID).Status)
	assert.Equal(t, 8, s.store.stock(s.product))
	assert.Len(t, s.placed, 1)
	assert.Len(t, s.captured, 1)

	settled, err := s.orders.SettleOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, settled.Status)
}

func TestSagaPaymentFailed(t *testing.T) {
	s := newSaga(&fakeGateway{results: []CaptureResult{{Captured: false, Reason: "card_declined"}}})

	order := s.place(t)
	s.drain(t)

	assert.Equal(t, models.OrderStatusCancelled, s.store.order(order.ID).Status)
	assert.Equal(t, 8, s.store.stock(s.product))
	assert.Len(t, s.failed, 1)
	assert.Empty(t, s.captured)
}
