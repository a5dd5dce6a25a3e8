package client

import (
	"errors"
	"fmt"
)

var (
	ErrCatalogUnavailable      = errors.New("catalog unavailable")
	ErrMalformedProduct        = errors.New("malformed product")
	ErrNotFound                = errors.New("not found")
	ErrOrderRejected           = errors.New("order rejected")
	ErrOrderServiceUnavailable = errors.New("order service unavailable")
)

// RejectedError carries the order service's explanation for a refused order.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected (%d %s): %s", e.Status, e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}
