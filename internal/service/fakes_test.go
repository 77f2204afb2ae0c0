package service

import (
	"context"
	"fmt"
	"sync"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

type fakeTxKey struct{}

// fakeStore is an in-memory store whose WithTx restores every map when fn fails
type fakeStore struct {
	mu        sync.Mutex
	customers map[uuid.UUID]bool
	products  map[uuid.UUID]models.Product
	coupons   map[string]models.Coupon
	orders    map[uuid.UUID]models.Order
	payments  map[uuid.UUID]models.Payment
	processed map[string]bool

	casConflicts int
	saveErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[uuid.UUID]bool{},
		products:  map[uuid.UUID]models.Product{},
		coupons:   map[string]models.Coupon{},
		orders:    map[uuid.UUID]models.Order{},
		payments:  map[uuid.UUID]models.Payment{},
		processed: map[string]bool{},
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	snapshot := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.products = snapshot.products
		s.orders = snapshot.orders
		s.payments = snapshot.payments
		s.processed = snapshot.processed
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeStore) cloneLocked() *fakeStore {
	c := newFakeStore()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.Discount != nil {
		d := *o.Discount
		o.Discount = &d
	}
	return o
}

func (s *fakeStore) CustomerExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customers[id], nil
}

func (s *fakeStore) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	return &p, nil
}

func (s *fakeStore) CompareAndSetStock(_ context.Context, productID uuid.UUID, expected, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casConflicts > 0 {
		s.casConflicts--
		return false, nil
	}
	p, ok := s.products[productID]
	if !ok {
		return false, fmt.Errorf("%w: %s", models.ErrProductNotFound, productID)
	}
	if p.AvailableCount != expected {
		return false, nil
	}
	p.AvailableCount = next
	s.products[productID] = p
	return true, nil
}

func (s *fakeStore) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *fakeStore) SaveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *fakeStore) GetPaymentByOrderID(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrPaymentNotFound, orderID)
	}
	return &p, nil
}

func (s *fakeStore) CreatePayment(_ context.Context, payment *models.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[payment.OrderID]; ok {
		return false, nil
	}
	s.payments[payment.OrderID] = *payment
	return true, nil
}

func (s *fakeStore) UpdatePaymentStatus(_ context.Context, paymentID uuid.UUID, status models.PaymentStatus, providerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for orderID, p := range s.payments {
		if p.ID == paymentID {
			p.Status = status
			p.ProviderTxID = providerTxID
			s.payments[orderID] = p
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrPaymentNotFound, paymentID)
}

func (s *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[eventID], nil
}

func (s *fakeStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}

func (s *fakeStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].AvailableCount
}

func (s *fakeStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) addProduct(price string, stock int) uuid.UUID {
	id := uuid.New()
	s.products[id] = models.Product{
		ID:             id,
		TenantID:       "tenant-1",
		SKU:            "SKU-" + id.String()[:8],
		Name:           "Widget",
		Price:          models.MustParseMoney(price, "USD"),
		AvailableCount: stock,
	}
	return id
}

// fakePublisher records published events and can be told to fail
type fakePublisher struct {
	mu        sync.Mutex
	err       error
	placed    []*models.OrderPlacedEvent
	cancelled []uuid.UUID
	settled   []uuid.UUID
	captured  []*models.PaymentCapturedEvent
	failed    []*models.PaymentFailedEvent
	refunded  []*models.PaymentRefundedEvent
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.placed = append(p.placed, event)
	return nil
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, orderID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.cancelled = append(p.cancelled, orderID)
	return nil
}

func (p *fakePublisher) PublishOrderSettled(_ context.Context, orderID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.settled = append(p.settled, orderID)
	return nil
}

func (p *fakePublisher) PublishPaymentCaptured(_ context.Context, event *models.PaymentCapturedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.captured = append(p.captured, event)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(_ context.Context, event *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.failed = append(p.failed, event)
	return nil
}

func (p *fakePublisher) PublishPaymentRefunded(_ context.Context, event *models.PaymentRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.refunded = append(p.refunded, event)
	return nil
}

// fakeGateway returns queued results, then approves
type fakeGateway struct {
	mu      sync.Mutex
	results []CaptureResult
	errs    []error
	calls   int
}

func (g *fakeGateway) Capture(_ context.Context, _ uuid.UUID, _ models.Money) (CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return CaptureResult{}, err
		}
	}
	if len(g.results) > 0 {
		r := g.results[0]
		g.results = g.results[1:]
		return r, nil
	}
	return CaptureResult{Captured: true, ProviderTxID: "TXN-test"}, nil
}
