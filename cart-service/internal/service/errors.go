package service

import "errors"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidCheckout  = errors.New("invalid checkout form")
	ErrInvalidQuantity  = errors.New("quantity delta must not be zero")
	ErrCartBusy         = errors.New("cart is being modified, try again")
	ErrProductNotInCart = errors.New("product not in cart")
)
