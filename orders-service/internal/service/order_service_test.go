package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/donpico/tienda/orders-service/internal/repository"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/order"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu        sync.Mutex
	orders    []*domain.Order
	createErr error
	next      int64
}

func (m *mockRepo) CreateOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.next++
	o.Number = 1000 + m.next
	o.CreatedAt = time.Now()
	m.orders = append(m.orders, o)
	return nil
}

func (m *mockRepo) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockRepo) ListUnseen(_ context.Context, limit int) ([]*domain.Order, error) {
	var out []*domain.Order
	for i := len(m.orders) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.orders[i].Seen {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

func (m *mockRepo) CountUnseen(context.Context) (int, error) {
	n := 0
	for _, o := range m.orders {
		if !o.Seen {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListSince(_ context.Context, since time.Time, limit int) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range m.orders {
		if !o.CreatedAt.Before(since) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockRepo) MarkSeen(_ context.Context, id uuid.UUID) error {
	for _, o := range m.orders {
		if o.ID == id {
			o.Seen = true
			o.Status = domain.OrderStatusPrepared
			return nil
		}
	}
	return repository.ErrOrderNotFound
}

func (m *mockRepo) Ping(context.Context) error { return nil }
func (m *mockRepo) RunMigrations() error       { return nil }
func (m *mockRepo) Close() error               { return nil }

type mockBroadcaster struct {
	sent []order.Order
}

func (b *mockBroadcaster) Broadcast(o order.Order) { b.sent = append(b.sent, o) }

func newRequest() order.CreateRequest {
	items := []cart.LineItem{
		{ID: "A", Name: "Arroz", UnitPrice: decimal.NewFromInt(10000), Quantity: 2},
	}
	return order.NewCreateRequest(items, cart.ComputeTotals(items, cart.DefaultPolicy()), order.CheckoutForm{
		Name: "Ana", Phone: "300", Address: "Calle 10", PaymentMethod: order.PaymentCash,
	})
}

func newService() (*OrderService, *mockRepo, *mockBroadcaster) {
	repo := &mockRepo{}
	b := &mockBroadcaster{}
	return NewOrderService(repo, cart.DefaultPolicy(), b, zerolog.Nop()), repo, b
}

func TestPlaceOrder_Success(t *testing.T) {
	svc, repo, b := newService()

	o, err := svc.PlaceOrder(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1001), o.Number)
	assert.True(t, decimal.NewFromInt(26000).Equal(o.Total))
	assert.Len(t, repo.orders, 1)
	require.Len(t, b.sent, 1)
	assert.Equal(t, o.ID.String(), b.sent[0].ID)
}

func TestPlaceOrder_Invalid(t *testing.T) {
	svc, repo, b := newService()

	req := newRequest()
	req.Items = nil
	_, err := svc.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.ErrorIs(t, err, order.ErrNoItems)

	req = newRequest()
	req.PaymentMethod = "cheque"
	_, err = svc.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	assert.Empty(t, repo.orders)
	assert.Empty(t, b.sent)
}

func TestPlaceOrder_TotalsMismatch(t *testing.T) {
	svc, repo, _ := newService()

	req := newRequest()
	req.Totals.Shipping = decimal.Zero
	req.Totals.Total = req.Totals.Subtotal
	_, err := svc.PlaceOrder(context.Background(), req)

	assert.ErrorIs(t, err, ErrTotalsMismatch)
	assert.Empty(t, repo.orders)
}

func TestPlaceOrder_RepoError(t *testing.T) {
	svc, repo, b := newService()
	repo.createErr = errors.New("connection reset")

	_, err := svc.PlaceOrder(context.Background(), newRequest())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidOrder)
	assert.Empty(t, b.sent)
}

func TestNotifications_AndMarkSeen(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, newRequest())
	require.NoError(t, err)
	second, err := svc.PlaceOrder(ctx, newRequest())
	require.NoError(t, err)

	n, err := svc.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n.NewOrders)
	assert.Equal(t, second.ID.String(), n.Orders[0].ID)

	require.NoError(t, svc.MarkSeen(ctx, first.ID.String()))
	require.NoError(t, svc.MarkSeen(ctx, first.ID.String()))

	n, err = svc.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n.NewOrders)

	assert.ErrorIs(t, svc.MarkSeen(ctx, "not-a-uuid"), ErrInvalidOrderID)
	assert.ErrorIs(t, svc.MarkSeen(ctx, uuid.NewString()), repository.ErrOrderNotFound)
}

func TestNotifications_CountsBeyondListLimit(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	for i := 0; i < notificationLimit+5; i++ {
		_, err := svc.PlaceOrder(ctx, newRequest())
		require.NoError(t, err)
	}

	n, err := svc.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, notificationLimit+5, n.NewOrders)
	assert.Len(t, n.Orders, notificationLimit)
}

func TestGetOrder(t *testing.T) {
	svc, _, _ := newService()
	placed, err := svc.PlaceOrder(context.Background(), newRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), placed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, placed.Number, got.Number)

	_, err = svc.GetOrder(context.Background(), "123")
	assert.ErrorIs(t, err, ErrInvalidOrderID)
}

func TestExportOrders(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.PlaceOrder(context.Background(), newRequest())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportOrders(context.Background(), &buf, time.Now().Add(-time.Hour)))
	assert.NotZero(t, buf.Len())
}
