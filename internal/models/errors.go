package models

import "errors"

// Domain errors
var (
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrInvalidCoupon           = errors.New("invalid coupon code")
	ErrCouponExpiredOrInactive = errors.New("coupon is expired or inactive")
	ErrCouponAlreadyApplied    = errors.New("coupon already applied")
	ErrInvalidOrderState       = errors.New("invalid order state")
	ErrInvalidOrderTransition  = errors.New("invalid order status transition")
	ErrOrderNotFound           = errors.New("order not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentNotRefundable    = errors.New("payment cannot be refunded")
)

// Infrastructure errors
var (
	ErrEventPublish     = errors.New("event publish failed")
	ErrDuplicateRequest = errors.New("duplicate request")
)
