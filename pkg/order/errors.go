package order

import "errors"

var (
	ErrNoItems              = errors.New("order has no items")
	ErrInvalidItem          = errors.New("invalid order item")
	ErrMissingContact       = errors.New("contact name and phone are required")
	ErrMissingAddress       = errors.New("delivery address is required")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrTotalsMismatch       = errors.New("order totals do not match items")
)
