package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics
const (
	TopicOrdersPlaced     = "orders.placed"
	TopicOrdersCancelled  = "orders.cancelled"
	TopicOrdersSettled    = "orders.settled"
	TopicPaymentsCaptured = "payments.captured"
	TopicPaymentsFailed   = "payments.failed"
	TopicPaymentsRefunded = "payments.refunded"
)

// Event types
const (
	EventTypeOrderPlaced     = "ORDER_PLACED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypeOrderSettled    = "ORDER_SETTLED"
	EventTypePaymentCaptured = "PAYMENT_CAPTURED"
	EventTypePaymentFailed   = "PAYMENT_FAILED"
	EventTypePaymentRefunded = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderPlacedEvent published when an order has been persisted
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     uuid.UUID       `json:"order_id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
}

// Total returns the event amount as Money
func (e *OrderPlacedEvent) Total() Money {
	return NewMoney(e.TotalAmount, e.Currency)
}

// OrderNoticeEvent carries the free-text payload of orders.cancelled and orders.settled
type OrderNoticeEvent struct {
	BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	Message string    `json:"message"`
}

// PaymentCapturedEvent published by the payment consumer
type PaymentCapturedEvent struct {
	BaseEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// PaymentFailedEvent published by the payment consumer
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Reason    string    `json:"reason"`
}

// PaymentRefundedEvent published when a captured payment is refunded
type PaymentRefundedEvent struct {
	BaseEvent
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Message   string    `json:"message"`
}
