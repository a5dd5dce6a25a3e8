package cart

import (
	"errors"

	"github.com/donpico/tienda/pkg/catalog"
)

var (
	// ErrMalformedPrice marks product or line item data whose price cannot
	// take part in totals.
	ErrMalformedPrice = catalog.ErrMalformedPrice
	ErrInvalidItem    = errors.New("invalid line item")
)
