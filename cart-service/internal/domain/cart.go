package domain

import (
	"fmt"
	"time"

	"github.com/donpico/tienda/pkg/cart"
	"github.com/shopspring/decimal"
)

// Cart is the stored form of a session cart. Prices are kept as decimal
// strings so neither BSON nor the JSON cache round-trips them through float.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	SessionID string     `bson:"session_id" json:"session_id"`
	Items     []CartItem `bson:"items" json:"items"`
	Version   int64      `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	UnitPrice string    `bson:"unit_price" json:"unit_price"`
	Image     string    `bson:"image" json:"image"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

func NewCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID}
}

// Engine rebuilds the pricing engine's cart from the stored items.
func (c *Cart) Engine() (*cart.Cart, error) {
	items := make([]cart.LineItem, len(c.Items))
	for i, it := range c.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: item %q price %q", cart.ErrMalformedPrice, it.ProductID, it.UnitPrice)
		}
		items[i] = cart.LineItem{
			ID:        it.ProductID,
			Name:      it.Name,
			UnitPrice: price,
			Image:     it.Image,
			Quantity:  it.Quantity,
		}
	}
	return cart.FromItems(items)
}

// SetItems replaces the stored items with the engine's line items, keeping
// AddedAt for items that were already present.
func (c *Cart) SetItems(items []cart.LineItem, now time.Time) {
	added := make(map[string]time.Time, len(c.Items))
	for _, it := range c.Items {
		added[it.ProductID] = it.AddedAt
	}
	out := make([]CartItem, len(items))
	for i, it := range items {
		at, ok := added[it.ID]
		if !ok {
			at = now
		}
		out[i] = CartItem{
			ProductID: it.ID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.String(),
			Image:     it.Image,
			Quantity:  it.Quantity,
			AddedAt:   at,
		}
	}
	c.Items = out
}
