package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the inventory-relevant slice of a catalog product
type Product struct {
	ID             uuid.UUID `json:"id"`
	TenantID       string    `json:"tenant_id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Price          Money     `json:"price"`
	AvailableCount int       `json:"available_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Coupon is a fixed-amount discount owned by promotions
type Coupon struct {
	Code       string     `json:"code"`
	TenantID   string     `json:"tenant_id"`
	Discount   Money      `json:"discount"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Active     bool       `json:"active"`
}

// IsValid reports whether the coupon can be redeemed at now
func (c *Coupon) IsValid(now time.Time) bool {
	return c.Active && (c.ExpiryDate == nil || c.ExpiryDate.After(now))
}

// PaymentStatus is the lifecycle state of a payment
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured   PaymentStatus = "CAPTURED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Payment represents a payment attempt for an order. There is at most one per order.
type Payment struct {
	ID           uuid.UUID     `json:"id"`
	OrderID      uuid.UUID     `json:"order_id"`
	TenantID     string        `json:"tenant_id"`
	Amount       Money         `json:"amount"`
	Status       PaymentStatus `json:"status"`
	ProviderTxID string        `json:"provider_tx_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IdempotencyState is the state of an idempotency record
type IdempotencyState string

// Idempotency states
const (
	IdempotencyProcessing IdempotencyState = "PROCESSING"
	IdempotencyProcessed  IdempotencyState = "PROCESSED"
)

// IdempotencyRecord is the completed request stored under an idempotency key
type IdempotencyRecord struct {
	State       IdempotencyState `json:"state"`
	StatusCode  int              `json:"status_code,omitempty"`
	ContentType string           `json:"content_type,omitempty"`
	Body        []byte           `json:"body,omitempty"`
}
