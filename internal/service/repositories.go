package service

import (
	"context"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

// UnitOfWork runs fn inside one transaction. Nested calls join the outer one.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CustomerRepository interface {
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type ProductRepository interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	CompareAndSetStock(ctx context.Context, productID uuid.UUID, expected, next int) (bool, error)
}

// CouponRepository returns a nil coupon when the code is unknown
type CouponRepository interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

type OrderRepository interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error
}

type PaymentRepository interface {
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) (bool, error)
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status models.PaymentStatus, providerTxID string) error
}

type ProcessedEventRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, orderID uuid.UUID) error
	PublishOrderSettled(ctx context.Context, orderID uuid.UUID) error
}

type PaymentEventPublisher interface {
	PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error
}
