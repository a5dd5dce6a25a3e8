package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/donpico/tienda/orders-service/internal/export"
	"github.com/donpico/tienda/orders-service/internal/repository"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/order"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	notificationLimit = 50
	exportLimit       = 10000
)

// Broadcaster receives every newly placed order.
type Broadcaster interface {
	Broadcast(o order.Order)
}

type OrderService struct {
	repo   repository.OrderRepository
	policy cart.PricingPolicy
	notify Broadcaster
	log    zerolog.Logger
}

func NewOrderService(repo repository.OrderRepository, policy cart.PricingPolicy, notify Broadcaster, log zerolog.Logger) *OrderService {
	return &OrderService{repo: repo, policy: policy, notify: notify, log: log}
}

// PlaceOrder validates req, checks its totals against the pricing policy and
// stores it. The stored totals are the recomputed ones.
func (s *OrderService) PlaceOrder(ctx context.Context, req order.CreateRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	totals, err := req.VerifyTotals(s.policy)
	if errors.Is(err, order.ErrTotalsMismatch) {
		return nil, fmt.Errorf("%w: %w", ErrTotalsMismatch, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	o := domain.NewOrder(req, totals)
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info().
		Str("order_id", o.ID.String()).
		Int64("numero_orden", o.Number).
		Str("total", o.Total.String()).
		Msg("order placed")
	if s.notify != nil {
		s.notify.Broadcast(o.ToWire())
	}
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderID, id)
	}
	return s.repo.GetOrderByID(ctx, orderID)
}

// Notifications counts the orders the admin has not acknowledged yet and
// lists the newest of them.
func (s *OrderService) Notifications(ctx context.Context) (order.Notifications, error) {
	count, err := s.repo.CountUnseen(ctx)
	if err != nil {
		return order.Notifications{}, err
	}
	orders, err := s.repo.ListUnseen(ctx, notificationLimit)
	if err != nil {
		return order.Notifications{}, fmt.Errorf("list unseen orders: %w", err)
	}
	out := order.Notifications{
		// an order placed between the two queries
		NewOrders: max(count, len(orders)),
		Orders:    make([]order.Order, len(orders)),
	}
	for i, o := range orders {
		out.Orders[i] = o.ToWire()
	}
	return out, nil
}

func (s *OrderService) MarkSeen(ctx context.Context, id string) error {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidOrderID, id)
	}
	return s.repo.MarkSeen(ctx, orderID)
}

// ExportOrders writes the orders created since the given time as xlsx.
func (s *OrderService) ExportOrders(ctx context.Context, w io.Writer, since time.Time) error {
	orders, err := s.repo.ListSince(ctx, since, exportLimit)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	return export.WriteOrders(w, orders)
}
