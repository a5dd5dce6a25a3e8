package cart

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/money"
	"github.com/shopspring/decimal"
)

// LineItem is a product/quantity pairing with the price captured when the
// product was first added.
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"nombre"`
	UnitPrice decimal.Decimal `json:"precio"`
	Image     string          `json:"imagen"`
	Quantity  int             `json:"cantidad"`
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	type alias LineItem
	return json.Marshal(struct {
		alias
		UnitPrice json.Number `json:"precio"`
	}{alias(li), money.Number(li.UnitPrice)})
}

// LineTotal is UnitPrice × Quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is an insertion-ordered set of line items, unique by ID.
// A Cart is owned by a single session and is not safe for concurrent use.
type Cart struct {
	items []LineItem
}

func New() *Cart {
	return &Cart{}
}

// FromItems rebuilds a cart from stored line items, enforcing the cart
// invariants on the way in.
func FromItems(items []LineItem) (*Cart, error) {
	c := &Cart{items: make([]LineItem, 0, len(items))}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidItem)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidItem, it.ID)
		}
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %q has quantity %d", ErrInvalidItem, it.ID, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %q has price %s", ErrMalformedPrice, it.ID, it.UnitPrice)
		}
		seen[it.ID] = struct{}{}
		c.items = append(c.items, it)
	}
	return c, nil
}

// AddItem increments the quantity of an existing line item or appends a new
// one with quantity 1. The price is snapshotted now and never refreshed.
func (c *Cart) AddItem(p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	if i := c.indexOf(p.ID); i >= 0 {
		c.items[i].Quantity++
		return nil
	}
	c.items = append(c.items, LineItem{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Image:     p.Image,
		Quantity:  1,
	})
	return nil
}

// ChangeQuantity adds delta to the item's quantity, clamping at zero and
// saturating at math.MaxInt. An item that reaches zero is removed. Unknown
// ids are ignored.
func (c *Cart) ChangeQuantity(id string, delta int) {
	i := c.indexOf(id)
	if i < 0 {
		return
	}
	cur := c.items[i].Quantity
	switch {
	case delta <= -cur:
		c.removeAt(i)
	case delta > math.MaxInt-cur:
		c.items[i].Quantity = math.MaxInt
	default:
		c.items[i].Quantity = cur + delta
	}
}

func (c *Cart) RemoveItem(id string) {
	if i := c.indexOf(id); i >= 0 {
		c.removeAt(i)
	}
}

// Clear empties the cart. Only a confirmed order should trigger it.
func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Item returns the line item with the given id.
func (c *Cart) Item(id string) (LineItem, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

// Len is the number of distinct line items.
func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// ItemCount is the number of units across all line items.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Snapshot returns an independent copy of the cart.
func (c *Cart) Snapshot() *Cart {
	return &Cart{items: c.Items()}
}

// Totals computes subtotal, shipping and total under the given policy.
func (c *Cart) Totals(policy PricingPolicy) Totals {
	return ComputeTotals(c.items, policy)
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	rebuilt, err := FromItems(items)
	if err != nil {
		return err
	}
	c.items = rebuilt.items
	return nil
}

func (c *Cart) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.items = append(c.items[:i:i], c.items[i+1:]...)
}
