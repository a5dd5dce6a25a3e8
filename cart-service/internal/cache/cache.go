package cache

import (
	"context"
	"errors"

	"github.com/donpico/tienda/cart-service/internal/domain"
)

// CartCache is a read-through copy of the stored carts. Entries are
// dropped on every write, never updated in place.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	// Set stores cart unless a newer version was invalidated after it was
	// read, in which case it returns ErrStaleEntry and stores nothing.
	Set(ctx context.Context, sessionID string, cart *domain.Cart) error
	// Invalidate drops the entry and refuses Sets of carts older than
	// version for a while.
	Invalidate(ctx context.Context, sessionID string, version int64) error
}

var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrStaleEntry = errors.New("cart is older than the last invalidated version")
)
