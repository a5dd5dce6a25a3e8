package domain

import (
	"encoding/json"
	"time"

	"github.com/donpico/tienda/pkg/money"
	"github.com/donpico/tienda/pkg/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus = order.Status

const (
	OrderStatusConfirmed = order.StatusConfirmed
	OrderStatusPrepared  = order.StatusPrepared
)

const EventOrderCreated = "order.created"

type Order struct {
	ID            uuid.UUID
	Number        int64
	Items         []order.Item
	Address       order.Address
	Contact       order.Contact
	PaymentMethod order.PaymentMethod
	Subtotal      decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	Instructions  string
	Status        OrderStatus
	Seen          bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder builds an unsaved order from a validated request and the totals
// computed for it. Number and timestamps are assigned on insert.
func NewOrder(req order.CreateRequest, totals order.Totals) *Order {
	items := make([]order.Item, len(req.Items))
	copy(items, req.Items)
	return &Order{
		ID:            uuid.New(),
		Items:         items,
		Address:       req.Address,
		Contact:       req.Contact,
		PaymentMethod: req.PaymentMethod,
		Subtotal:      totals.Subtotal,
		Shipping:      totals.Shipping,
		Total:         totals.Total,
		Instructions:  req.Instructions,
		Status:        OrderStatusConfirmed,
	}
}

func (o *Order) Totals() order.Totals {
	return order.Totals{Subtotal: o.Subtotal, Shipping: o.Shipping, Total: o.Total}
}

func (o *Order) ToWire() order.Order {
	return order.Order{
		ID:            o.ID.String(),
		Number:        o.Number,
		Items:         o.Items,
		Address:       o.Address,
		Contact:       o.Contact,
		PaymentMethod: o.PaymentMethod,
		Totals:        o.Totals(),
		Total:         o.Total,
		Instructions:  o.Instructions,
		Status:        o.Status,
		Seen:          o.Seen,
		CreatedAt:     o.CreatedAt,
	}
}

// OutboxEvent is a row of the outbox table waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderCreatedEvent is the payload published when an order is placed.
type OrderCreatedEvent struct {
	OrderID       string              `json:"order_id"`
	Number        int64               `json:"numero_orden"`
	Items         []order.Item        `json:"items"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod order.PaymentMethod `json:"metodo_pago"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (e OrderCreatedEvent) MarshalJSON() ([]byte, error) {
	type alias OrderCreatedEvent
	return json.Marshal(struct {
		alias
		Total json.Number `json:"total"`
	}{alias(e), money.Number(e.Total)})
}

func (o *Order) CreatedEvent() OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:       o.ID.String(),
		Number:        o.Number,
		Items:         o.Items,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
}
