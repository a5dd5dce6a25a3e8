package storefront

import (
	"errors"
	"fmt"

	"github.com/donpico/tienda/pkg/catalog"
)

var (
	ErrSubmitInFlight    = errors.New("order submission already in flight")
	ErrInvalidTransition = errors.New("invalid view transition")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrUnknownProduct    = errors.New("product is not in the current listing")
	ErrStaleResponse     = errors.New("catalog response superseded by a newer request")
	ErrOrderSubmission   = errors.New("order submission failed")
)

// CatalogError is the visible state left behind by a failed catalog load.
// Calling Reload retries the same query.
type CatalogError struct {
	Query catalog.Query
	Err   error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("load catalog (categoria=%q busqueda=%q): %v", e.Query.Category, e.Query.Search, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}
