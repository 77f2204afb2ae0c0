package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem is a priced line of an order. The unit price is a snapshot taken at order time.
type OrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	UnitPrice Money     `json:"unit_price"`
}

// Subtotal returns unit price times quantity
func (i OrderItem) Subtotal() Money {
	return i.UnitPrice.Multiply(i.Quantity)
}

// Order is the order aggregate
type Order struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    string      `json:"tenant_id"`
	CustomerID  uuid.UUID   `json:"customer_id"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	CouponCode  string      `json:"coupon_code,omitempty"`
	Discount    *Money      `json:"discount,omitempty"`
	TotalAmount Money       `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewOrder creates an empty PLACED order
func NewOrder(tenantID string, customerID uuid.UUID, now time.Time) *Order {
	return &Order{
		ID:         uuid.New(),
		TenantID:   tenantID,
		CustomerID: customerID,
		Status:     OrderStatusPlaced,
		Items:      []OrderItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddItem appends an item and recomputes the total.
// On error the order is left unchanged.
func (o *Order) AddItem(item OrderItem) error {
	if item.Quantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, item.Quantity)
	}
	o.Items = append(o.Items, item)
	if err := o.CalculateTotal(); err != nil {
		o.Items = o.Items[:len(o.Items)-1]
		return err
	}
	return nil
}

// ApplyCoupon attaches a coupon discount. Only one coupon may be applied per order.
func (o *Order) ApplyCoupon(code string, discount Money) error {
	if o.CouponCode != "" {
		return fmt.Errorf("%w: %s", ErrCouponAlreadyApplied, o.CouponCode)
	}
	o.CouponCode = code
	o.Discount = &discount
	if err := o.CalculateTotal(); err != nil {
		o.CouponCode = ""
		o.Discount = nil
		return err
	}
	return nil
}

// CalculateTotal sets TotalAmount to the sum of item subtotals minus the discount
func (o *Order) CalculateTotal() error {
	if len(o.Items) == 0 {
		o.TotalAmount = Money{}
		return nil
	}

	var total Money
	for i, item := range o.Items {
		if item.UnitPrice.IsUnset() {
			return fmt.Errorf("%w: item %d has no unit price", ErrInvalidOrderState, i)
		}
		if i == 0 {
			total = item.Subtotal()
			continue
		}
		sum, err := total.Add(item.Subtotal())
		if err != nil {
			return err
		}
		total = sum
	}

	if o.Discount != nil {
		discounted, err := total.Subtract(*o.Discount)
		if err != nil {
			return err
		}
		total = discounted
	}

	o.TotalAmount = total
	return nil
}

// ConfirmPayment moves a PLACED order to PAID. Any other status is left as is,
// so redelivered capture events are harmless. Reports whether the status changed.
func (o *Order) ConfirmPayment() bool {
	if o.Status != OrderStatusPlaced {
		return false
	}
	o.Status = OrderStatusPaid
	return true
}

// Cancel sets the status to CANCELLED regardless of the current status.
// Customer-facing callers check IsCancellable first.
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

// Confirm moves a PAID order to CONFIRMED
func (o *Order) Confirm() error {
	return o.transition(OrderStatusPaid, OrderStatusConfirmed)
}

// Ship moves a CONFIRMED order to SHIPPED
func (o *Order) Ship() error {
	return o.transition(OrderStatusConfirmed, OrderStatusShipped)
}

// Deliver moves a SHIPPED order to DELIVERED
func (o *Order) Deliver() error {
	return o.transition(OrderStatusShipped, OrderStatusDelivered)
}

// IsTerminal reports whether no further transitions are possible
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusDelivered
}

// IsCancellable reports whether a customer may still cancel the order
func (o *Order) IsCancellable() bool {
	switch o.Status {
	case OrderStatusPlaced, OrderStatusPaid, OrderStatusConfirmed:
		return true
	}
	return false
}

func (o *Order) transition(from, to OrderStatus) error {
	if o.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, to)
	}
	o.Status = to
	return nil
}
