package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence the order service needs
type OrderStore interface {
	UnitOfWork
	CustomerRepository
	CouponRepository
	OrderRepository
}

// OrderService places orders and drives customer-facing status changes
type OrderService struct {
	store           OrderStore
	ledger          *InventoryLedger
	eventPublisher  OrderEventPublisher
	releaseOnCancel bool
	now             func() time.Time
	logger          *zap.Logger
}

// NewOrderService creates a new order service. With releaseOnCancel set, a customer
// cancellation returns the order's units to stock.
func NewOrderService(
	store OrderStore,
	ledger *InventoryLedger,
	eventPublisher OrderEventPublisher,
	releaseOnCancel bool,
) *OrderService {
	return &OrderService{
		store:           store,
		ledger:          ledger,
		eventPublisher:  eventPublisher,
		releaseOnCancel: releaseOnCancel,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          util.GetLogger(),
	}
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	TenantID   string             `json:"tenant_id" binding:"required"`
	CustomerID uuid.UUID          `json:"customer_id" binding:"required"`
	Items      []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	CouponCode string             `json:"coupon_code,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// PlaceOrder reserves stock, prices the order, persists it and publishes orders.placed.
// Every step runs in one unit of work; any failure rolls back reservations and the order.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	var order *models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		placed, err := s.placeOrder(ctx, req)
		if err != nil {
			return err
		}
		order = placed
		return nil
	})
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		util.RecordError(ctx, err)
		s.logger.Warn("Order placement rolled back",
			zap.String("tenant_id", req.TenantID),
			zap.String("customer_id", req.CustomerID.String()),
			zap.Error(err))
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.String()))
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	exists, err := s.store.CustomerExists(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check customer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrCustomerNotFound, req.CustomerID)
	}

	order := models.NewOrder(req.TenantID, req.CustomerID, s.now())

	for _, item := range req.Items {
		product, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}

		if err := order.AddItem(models.OrderItem{
			ProductID: product.ID,
			SKU:       product.SKU,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		}); err != nil {
			return nil, err
		}
	}

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err := s.store.GetCouponByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to look up coupon: %w", err)
		}
		if coupon == nil {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidCoupon, code)
		}
		if !coupon.IsValid(s.now()) {
			return nil, fmt.Errorf("%w: %s", models.ErrCouponExpiredOrInactive, code)
		}
		if err := order.ApplyCoupon(coupon.Code, coupon.Discount); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount.Amount(),
		Currency:    order.TotalAmount.Currency(),
	}
	if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// CancelOrder cancels an order on behalf of the customer and publishes orders.cancelled.
// Shipped, delivered and already cancelled orders are refused.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.update(ctx, orderID, func(ctx context.Context, order *models.Order) error {
		if !order.IsCancellable() {
			return fmt.Errorf("%w: cannot cancel %s order", models.ErrInvalidOrderTransition, order.Status)
		}
		order.Cancel()

		if s.releaseOnCancel {
			for _, item := range order.Items {
				if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return nil
	}, s.eventPublisher.PublishOrderCancelled)
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.WithLabelValues("customer").Inc()
	s.logger.Info("Order cancelled by customer", zap.String("order_id", orderID.String()))
	return order, nil
}

// SettleOrder confirms a paid order and publishes orders.settled
func (s *OrderService) SettleOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SettleOrder")
	defer span.End()

	order, err := s.update(ctx, orderID, func(_ context.Context, order *models.Order) error {
		return order.Confirm()
	}, s.eventPublisher.PublishOrderSettled)
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	return order, nil
}

// ShipOrder marks a confirmed order as shipped
func (s *OrderService) ShipOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.update(ctx, orderID, func(_ context.Context, order *models.Order) error {
		return order.Ship()
	}, nil)
	if err != nil {
		return nil, err
	}
	util.OrderTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	return order, nil
}

// DeliverOrder marks a shipped order as delivered
func (s *OrderService) DeliverOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.update(ctx, orderID, func(_ context.Context, order *models.Order) error {
		return order.Deliver()
	}, nil)
	if err != nil {
		return nil, err
	}
	util.OrderTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	return order, nil
}

// update loads, mutates, saves and optionally publishes in one unit of work
func (s *OrderService) update(
	ctx context.Context,
	orderID uuid.UUID,
	mutate func(ctx context.Context, order *models.Order) error,
	publish func(ctx context.Context, orderID uuid.UUID) error,
) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		loaded, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := mutate(ctx, loaded); err != nil {
			return err
		}
		if err := s.store.SaveOrder(ctx, loaded); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		if publish != nil {
			if err := publish(ctx, loaded.ID); err != nil {
				return err
			}
		}
		order = loaded
		return nil
	})
	if err != nil {
		util.RecordError(ctx, err)
		return nil, err
	}
	return order, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, models.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, models.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, models.ErrInvalidCoupon):
		return "invalid_coupon"
	case errors.Is(err, models.ErrCouponExpiredOrInactive):
		return "coupon_expired"
	case errors.Is(err, models.ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, models.ErrEventPublish):
		return "publish_failed"
	default:
		return "error"
	}
}
