package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/donpico/tienda/pkg/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	repo, err := NewRepository(&Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)

	require.NoError(t, repo.RunMigrations())

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newTestOrder() *domain.Order {
	req := order.CreateRequest{
		Items: []order.Item{
			{ProductID: "des-001", Name: "Arroz Blanco", Quantity: 2, Price: decimal.NewFromInt(20000)},
			{ProductID: "lac-001", Name: "Leche Entera", Quantity: 1, Price: decimal.RequireFromString("4500.50")},
		},
		Address:       order.Address{Street: "Calle 10 # 5-20", References: "Portón verde"},
		Contact:       order.Contact{Name: "Ana", Phone: "3001234567"},
		PaymentMethod: order.PaymentCash,
		Instructions:  "Portón verde",
	}
	totals := order.Totals{
		Subtotal: decimal.RequireFromString("44500.50"),
		Shipping: decimal.NewFromInt(6000),
		Total:    decimal.RequireFromString("50500.50"),
	}
	return domain.NewOrder(req, totals)
}

func TestCreateOrder_Success(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	o := newTestOrder()

	require.NoError(t, repo.CreateOrder(ctx, o))
	assert.Equal(t, int64(1001), o.Number)
	assert.False(t, o.CreatedAt.IsZero())

	fetched, err := repo.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, fetched.ID)
	assert.Equal(t, o.Number, fetched.Number)
	assert.Equal(t, o.Contact, fetched.Contact)
	assert.Equal(t, o.Address, fetched.Address)
	assert.Equal(t, order.PaymentCash, fetched.PaymentMethod)
	assert.Equal(t, domain.OrderStatusConfirmed, fetched.Status)
	assert.True(t, o.Total.Equal(fetched.Total))
	require.Len(t, fetched.Items, 2)
	assert.True(t, decimal.RequireFromString("4500.5").Equal(fetched.Items[1].Price))
}

func TestCreateOrder_NumbersAreSequential(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	numbers := make(chan int64, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := newTestOrder()
			if assert.NoError(t, repo.CreateOrder(ctx, o)) {
				numbers <- o.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate order number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, 10)
}

func TestCreateOrder_WritesOutboxEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	o := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, o))

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, o.ID.String(), events[0].AggregateID)
	assert.Equal(t, domain.EventOrderCreated, events[0].EventType)

	var payload domain.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, o.Number, payload.Number)
	assert.True(t, o.Total.Equal(payload.Total))

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGetOrderByID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListUnseen_AndMarkSeen(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, first))
	second := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, second))

	unseen, err := repo.ListUnseen(ctx, 50)
	require.NoError(t, err)
	require.Len(t, unseen, 2)
	assert.Equal(t, second.ID, unseen[0].ID, "newest first")

	require.NoError(t, repo.MarkSeen(ctx, first.ID))
	require.NoError(t, repo.MarkSeen(ctx, first.ID), "marking twice is harmless")

	unseen, err = repo.ListUnseen(ctx, 50)
	require.NoError(t, err)
	require.Len(t, unseen, 1)

	count, err := repo.CountUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, second.ID, unseen[0].ID)

	fetched, err := repo.GetOrderByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Seen)
	assert.Equal(t, domain.OrderStatusPrepared, fetched.Status)

	assert.ErrorIs(t, repo.MarkSeen(ctx, uuid.New()), ErrOrderNotFound)
}

func TestCountUnseen_NotCappedByListLimit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder()))
	}

	unseen, err := repo.ListUnseen(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, unseen, 2)

	count, err := repo.CountUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListSince(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder()))
	}

	orders, err := repo.ListSince(ctx, time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Less(t, orders[0].Number, orders[2].Number)

	orders, err = repo.ListSince(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
