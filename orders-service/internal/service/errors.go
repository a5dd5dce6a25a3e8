package service

import "errors"

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrTotalsMismatch = errors.New("order totals do not match items")
	ErrInvalidOrderID = errors.New("invalid order id")
)
