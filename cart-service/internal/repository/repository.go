package repository

import (
	"context"
	"errors"

	"github.com/donpico/tienda/cart-service/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	// SaveCart writes the cart if its Version still matches the stored one
	// and bumps Version. A cart with Version 0 is inserted.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
	CreateIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
}
