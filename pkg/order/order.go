package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/money"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "tarjeta"
	PaymentCash PaymentMethod = "efectivo"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCash
}

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusPrepared  Status = "PREPARED"
)

type Item struct {
	ProductID string          `json:"productoId"`
	Name      string          `json:"nombre"`
	Quantity  int             `json:"cantidad"`
	Price     decimal.Decimal `json:"precio"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	type alias Item
	return json.Marshal(struct {
		alias
		Price json.Number `json:"precio"`
	}{alias(it), money.Number(it.Price)})
}

type Address struct {
	Street       string `json:"calle"`
	Number       string `json:"numero"`
	Neighborhood string `json:"colonia"`
	City         string `json:"ciudad"`
	PostalCode   string `json:"codigoPostal"`
	References   string `json:"referencias"`
}

type Contact struct {
	Name  string `json:"nombre"`
	Phone string `json:"telefono"`
}

// Totals is the totals block of an order payload.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"envio"`
	Total    decimal.Decimal `json:"total"`
}

func (t Totals) MarshalJSON() ([]byte, error) {
	type alias Totals
	return json.Marshal(struct {
		alias
		Subtotal json.Number `json:"subtotal"`
		Shipping json.Number `json:"envio"`
		Total    json.Number `json:"total"`
	}{alias(t), money.Number(t.Subtotal), money.Number(t.Shipping), money.Number(t.Total)})
}

func TotalsFrom(t cart.Totals) Totals {
	return Totals{Subtotal: t.Subtotal, Shipping: t.ShippingFee, Total: t.Total}
}

func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) && t.Shipping.Equal(o.Shipping) && t.Total.Equal(o.Total)
}

// CurrencyPlaces is the precision totals are compared at. Browsers sum
// prices as doubles, so a payload may carry noise below the cent.
const CurrencyPlaces = 2

// mismatch names the first field that differs from o at currency
// precision, or "" when both agree.
func (t Totals) mismatch(o Totals) (field string, want, got decimal.Decimal) {
	fields := []struct {
		name string
		a, b decimal.Decimal
	}{
		{"subtotal", t.Subtotal, o.Subtotal},
		{"envio", t.Shipping, o.Shipping},
		{"total", t.Total, o.Total},
	}
	for _, f := range fields {
		if !f.a.Round(CurrencyPlaces).Equal(f.b.Round(CurrencyPlaces)) {
			return f.name, f.a, f.b
		}
	}
	return "", decimal.Zero, decimal.Zero
}

// CheckoutForm is what the shopper fills in at checkout.
type CheckoutForm struct {
	Name          string        `json:"nombre"`
	Phone         string        `json:"telefono"`
	Address       string        `json:"direccion"`
	Instructions  string        `json:"instrucciones"`
	PaymentMethod PaymentMethod `json:"metodoPago"`
}

// CreateRequest is the order creation payload.
type CreateRequest struct {
	Items         []Item        `json:"items"`
	Address       Address       `json:"direccionEntrega"`
	Contact       Contact       `json:"contacto"`
	PaymentMethod PaymentMethod `json:"metodoPago"`
	Totals        Totals        `json:"totales"`
	Instructions  string        `json:"instrucciones"`
}

// NewCreateRequest builds an order payload from a cart snapshot, the totals
// computed for it and the checkout form.
func NewCreateRequest(items []cart.LineItem, totals cart.Totals, form CheckoutForm) CreateRequest {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{
			ProductID: it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		}
	}
	return CreateRequest{
		Items: out,
		Address: Address{
			Street:     strings.TrimSpace(form.Address),
			References: form.Instructions,
		},
		Contact: Contact{
			Name:  strings.TrimSpace(form.Name),
			Phone: strings.TrimSpace(form.Phone),
		},
		PaymentMethod: form.PaymentMethod,
		Totals:        TotalsFrom(totals),
		Instructions:  form.Instructions,
	}
}

// Validate checks the payload shape. It does not check the totals, see
// VerifyTotals.
func (r CreateRequest) Validate() error {
	if len(r.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidItem, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrInvalidItem, it.ProductID, it.Quantity)
		}
		if it.Price.IsNegative() {
			return fmt.Errorf("%w: item %q has price %s", ErrInvalidItem, it.ProductID, it.Price)
		}
	}
	if strings.TrimSpace(r.Contact.Name) == "" || strings.TrimSpace(r.Contact.Phone) == "" {
		return ErrMissingContact
	}
	if strings.TrimSpace(r.Address.Street) == "" {
		return ErrMissingAddress
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, r.PaymentMethod)
	}
	return nil
}

// LineItems converts the payload items back into cart line items.
func (r CreateRequest) LineItems() []cart.LineItem {
	out := make([]cart.LineItem, len(r.Items))
	for i, it := range r.Items {
		out[i] = cart.LineItem{
			ID:        it.ProductID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
		}
	}
	return out
}

// VerifyTotals recomputes the totals under policy and returns them, or
// ErrTotalsMismatch when the payload disagrees at currency precision.
func (r CreateRequest) VerifyTotals(policy cart.PricingPolicy) (Totals, error) {
	c, err := cart.FromItems(r.LineItems())
	if err != nil {
		return Totals{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	computed := TotalsFrom(c.Totals(policy))
	if field, want, got := computed.mismatch(r.Totals); field != "" {
		return computed, fmt.Errorf("%w: expected %s %s, got %s", ErrTotalsMismatch, field, want, got)
	}
	return computed, nil
}

// Order is a confirmed order as returned by the order service.
type Order struct {
	ID            string          `json:"id"`
	Number        int64           `json:"numeroOrden"`
	Items         []Item          `json:"items"`
	Address       Address         `json:"direccionEntrega"`
	Contact       Contact         `json:"contacto"`
	PaymentMethod PaymentMethod   `json:"metodoPago"`
	Totals        Totals          `json:"totales"`
	Total         decimal.Decimal `json:"total"`
	Instructions  string          `json:"instrucciones"`
	Status        Status          `json:"estado"`
	Seen          bool            `json:"visto"`
	CreatedAt     time.Time       `json:"timestamp"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		Total json.Number `json:"total"`
	}{alias(o), money.Number(o.Total)})
}

// CreateResponse is the order creation response envelope.
type CreateResponse struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Notifications is the admin poll response.
type Notifications struct {
	NewOrders int     `json:"nuevosPedidos"`
	Orders    []Order `json:"pedidos"`
}
