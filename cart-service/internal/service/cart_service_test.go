package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/donpico/tienda/cart-service/internal/cache"
	"github.com/donpico/tienda/cart-service/internal/domain"
	"github.com/donpico/tienda/cart-service/internal/repository"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/client"
	"github.com/donpico/tienda/pkg/order"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	m         sync.Mutex
	carts     map[string]*domain.Cart
	err       error
	conflicts int
	gets      int
	deletes   int

	// hold, when set, parks the next GetCart after it has read the cart
	hold    chan struct{}
	holding chan struct{}
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: make(map[string]*domain.Cart)}
}

func clone(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem(nil), c.Items...)
	return &out
}

func (m *mockRepository) GetCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.m.Lock()
	m.gets++
	hold := m.hold
	m.hold = nil
	if m.err != nil {
		m.m.Unlock()
		return nil, m.err
	}
	c, ok := m.carts[sessionID]
	var out *domain.Cart
	if ok {
		out = clone(c)
	}
	m.m.Unlock()

	if hold != nil {
		close(m.holding)
		<-hold
	}
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return out, nil
}

func (m *mockRepository) SaveCart(_ context.Context, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	current, ok := m.carts[c.SessionID]
	if (ok && current.Version != c.Version) || (!ok && c.Version != 0) {
		return repository.ErrVersionConflict
	}
	c.Version++
	m.carts[c.SessionID] = clone(c)
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[sessionID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, sessionID)
	return nil
}

func (m *mockRepository) CreateIndexes(context.Context) error { return nil }
func (m *mockRepository) Ping(context.Context) error          { return nil }

func (m *mockRepository) put(c *domain.Cart) {
	m.m.Lock()
	defer m.m.Unlock()
	if c.Version == 0 {
		c.Version = 1
	}
	m.carts[c.SessionID] = clone(c)
}

func (m *mockRepository) stored(sessionID string) *domain.Cart {
	m.m.Lock()
	defer m.m.Unlock()
	return m.carts[sessionID]
}

type mockCache struct {
	m     sync.RWMutex
	cart  *domain.Cart
	err   error
	floor int64
	sets  int
}

func (m *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCache) Set(_ context.Context, _ string, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	if c.Version < m.floor {
		return cache.ErrStaleEntry
	}
	m.cart = c
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, _ string, version int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	m.floor = max(m.floor, version)
	return nil
}

func (m *mockCache) setCalls() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.sets
}

func (m *mockCache) getCart() *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

type mockProducts map[string]catalog.Product

func (m mockProducts) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := m[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: %s", client.ErrNotFound, id)
	}
	return p, nil
}

type mockOrders struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	got     order.CreateRequest
}

func (m *mockOrders) CreateOrder(_ context.Context, req order.CreateRequest) (*order.Order, error) {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	m.got = req
	return &order.Order{ID: "o-1", Number: 1001, Totals: req.Totals, Total: req.Totals.Total}, nil
}

var products = mockProducts{
	"arroz": {ID: "arroz", Name: "Arroz", Category: "Despensa", Price: decimal.NewFromInt(10000), Image: "🍚"},
	"queso": {ID: "queso", Name: "Queso", Category: "Lácteos", Price: decimal.NewFromInt(35000), Image: "🧀"},
}

var form = order.CheckoutForm{
	Name:          "Ana",
	Phone:         "3001234567",
	Address:       "Calle 10 # 5-20",
	PaymentMethod: order.PaymentCard,
}

func newService(repo *mockRepository, c *mockCache, orders *mockOrders) *CartService {
	return NewCartService(repo, c, products, orders, cart.DefaultPolicy(), zerolog.Nop())
}

func storedCart(sessionID string, items ...domain.CartItem) *domain.Cart {
	return &domain.Cart{SessionID: sessionID, Items: items}
}

func TestGetCart_NotFoundIsEmpty(t *testing.T) {
	sut := newService(newMockRepository(), &mockCache{}, &mockOrders{})

	v, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", v.SessionID)
	assert.Empty(t, v.Items)
	assert.True(t, v.Totals.Empty)
	assert.True(t, decimal.NewFromInt(6000).Equal(v.Totals.Total))
}

func TestGetCart_FillsCache(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", Name: "Arroz", UnitPrice: "10000", Quantity: 2}))
	c := &mockCache{}

	v, err := newService(repo, c, &mockOrders{}).GetCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, v.ItemCount)
	assert.True(t, decimal.NewFromInt(26000).Equal(v.Totals.Total))

	require.Eventually(t, func() bool {
		return c.getCart() != nil
	}, 100*time.Millisecond, 10*time.Millisecond, "cart was not set in cache")
}

func TestGetCart_WriteDuringReadDoesNotCacheOldCart(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", Name: "Arroz", UnitPrice: "10000", Quantity: 1}))
	repo.hold = make(chan struct{})
	repo.holding = make(chan struct{})
	c := &mockCache{}
	sut := newService(repo, c, &mockOrders{})
	ctx := context.Background()

	read := make(chan View, 1)
	go func() {
		v, err := sut.GetCart(ctx, "s1")
		assert.NoError(t, err)
		read <- v
	}()
	<-repo.holding

	_, err := sut.AddItem(ctx, "s1", "queso")
	require.NoError(t, err)

	close(repo.hold)
	assert.Len(t, (<-read).Items, 1)
	require.Eventually(t, func() bool { return c.setCalls() == 1 }, time.Second, 5*time.Millisecond)

	v, err := sut.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, v.Items, 2)
	assert.Len(t, repo.stored("s1").Items, 2)
}

func TestCheckout_RefusesFillOfClearedCart(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", Name: "Arroz", UnitPrice: "10000", Quantity: 1}))
	c := &mockCache{}
	sut := newService(repo, c, &mockOrders{})

	_, err := sut.Checkout(context.Background(), "s1", form)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Set(context.Background(), "s1", storedCart("s1")), cache.ErrStaleEntry)
	assert.Equal(t, int64(2), c.floor)
}

func TestGetCart_CacheHit(t *testing.T) {
	repo := newMockRepository()
	c := &mockCache{cart: storedCart("s1", domain.CartItem{ProductID: "queso", UnitPrice: "35000", Quantity: 2})}

	v, err := newService(repo, c, &mockOrders{}).GetCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, v.Totals.FreeShipping)
	assert.Equal(t, 0, repo.gets)
}

func TestGetCart_RepoError(t *testing.T) {
	repo := newMockRepository()
	repo.err = fmt.Errorf("database error")

	_, err := newService(repo, &mockCache{}, &mockOrders{}).GetCart(context.Background(), "s1")
	require.ErrorContains(t, err, "database error")
}

func TestGetCart_MalformedStoredPrice(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "x", UnitPrice: "n/a", Quantity: 1}))

	_, err := newService(repo, &mockCache{}, &mockOrders{}).GetCart(context.Background(), "s1")
	assert.ErrorIs(t, err, cart.ErrMalformedPrice)
}

func TestAddItem_MergesAndInvalidates(t *testing.T) {
	repo := newMockRepository()
	c := &mockCache{cart: storedCart("s1")}
	sut := newService(repo, c, &mockOrders{})
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", "arroz")
	require.NoError(t, err)
	v, err := sut.AddItem(ctx, "s1", "arroz")
	require.NoError(t, err)

	require.Len(t, v.Items, 1)
	assert.Equal(t, 2, v.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(20000).Equal(v.Totals.Subtotal))
	assert.True(t, decimal.NewFromInt(6000).Equal(v.Totals.ShippingFee))

	stored := repo.stored("s1")
	require.NotNil(t, stored)
	assert.Equal(t, "10000", stored.Items[0].UnitPrice)
	assert.Equal(t, int64(2), stored.Version)
	assert.Nil(t, c.getCart())
}

func TestAddItem_UnknownProduct(t *testing.T) {
	repo := newMockRepository()
	_, err := newService(repo, &mockCache{}, &mockOrders{}).AddItem(context.Background(), "s1", "nope")

	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Nil(t, repo.stored("s1"))
}

func TestAddItem_RetriesOnConflict(t *testing.T) {
	repo := newMockRepository()
	repo.conflicts = 2

	v, err := newService(repo, &mockCache{}, &mockOrders{}).AddItem(context.Background(), "s1", "queso")
	require.NoError(t, err)
	assert.Equal(t, 1, v.ItemCount)
}

func TestAddItem_GivesUpAfterConflicts(t *testing.T) {
	repo := newMockRepository()
	repo.conflicts = maxSaveAttempts

	_, err := newService(repo, &mockCache{}, &mockOrders{}).AddItem(context.Background(), "s1", "queso")
	assert.ErrorIs(t, err, ErrCartBusy)
}

func TestAddItem_ConcurrentAddsAllCount(t *testing.T) {
	repo := newMockRepository()
	sut := newService(repo, &mockCache{}, &mockOrders{})

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sut.AddItem(context.Background(), "s1", "arroz"); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	stored := repo.stored("s1")
	require.NotNil(t, stored)
	assert.Equal(t, 2-int(failed.Load()), stored.Items[0].Quantity)
}

func TestChangeQuantity(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1",
		domain.CartItem{ProductID: "arroz", UnitPrice: "10000", Quantity: 2},
		domain.CartItem{ProductID: "queso", UnitPrice: "35000", Quantity: 1},
	))
	sut := newService(repo, &mockCache{}, &mockOrders{})
	ctx := context.Background()

	v, err := sut.ChangeQuantity(ctx, "s1", "arroz", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Items[0].Quantity)

	v, err = sut.ChangeQuantity(ctx, "s1", "queso", -10)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "arroz", v.Items[0].ID)

	_, err = sut.ChangeQuantity(ctx, "s1", "queso", 1)
	assert.ErrorIs(t, err, ErrProductNotInCart)

	_, err = sut.ChangeQuantity(ctx, "s1", "arroz", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRemoveItem(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1",
		domain.CartItem{ProductID: "arroz", UnitPrice: "10000", Quantity: 2},
		domain.CartItem{ProductID: "queso", UnitPrice: "35000", Quantity: 1},
	))
	sut := newService(repo, &mockCache{}, &mockOrders{})

	v, err := sut.RemoveItem(context.Background(), "s1", "arroz")
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "queso", v.Items[0].ID)

	v, err = sut.RemoveItem(context.Background(), "s1", "missing")
	require.NoError(t, err)
	assert.Len(t, v.Items, 1)
}

func TestCheckout_Success(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1",
		domain.CartItem{ProductID: "arroz", Name: "Arroz", UnitPrice: "10000", Quantity: 2},
	))
	c := &mockCache{cart: repo.stored("s1")}
	orders := &mockOrders{}

	placed, err := newService(repo, c, orders).Checkout(context.Background(), "s1", form)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), placed.Number)
	assert.True(t, decimal.NewFromInt(26000).Equal(placed.Total))

	require.Len(t, orders.got.Items, 1)
	assert.Equal(t, 2, orders.got.Items[0].Quantity)
	assert.Equal(t, order.PaymentCard, orders.got.PaymentMethod)
	assert.True(t, decimal.NewFromInt(26000).Equal(orders.got.Totals.Total))

	assert.Nil(t, repo.stored("s1"))
	assert.Nil(t, c.getCart())
}

func TestCheckout_FailureKeepsCart(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", UnitPrice: "10000", Quantity: 1}))
	orders := &mockOrders{err: fmt.Errorf("%w: status 503", client.ErrOrderServiceUnavailable)}

	_, err := newService(repo, &mockCache{}, orders).Checkout(context.Background(), "s1", form)
	assert.ErrorIs(t, err, client.ErrOrderServiceUnavailable)
	require.NotNil(t, repo.stored("s1"))
	assert.Equal(t, 1, repo.stored("s1").Items[0].Quantity)
	assert.Equal(t, 0, repo.deletes)
}

func TestCheckout_EmptyCart(t *testing.T) {
	orders := &mockOrders{}
	_, err := newService(newMockRepository(), &mockCache{}, orders).Checkout(context.Background(), "s1", form)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, int32(0), orders.calls.Load())
}

func TestCheckout_InvalidForm(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", UnitPrice: "10000", Quantity: 1}))
	orders := &mockOrders{}
	bad := form
	bad.Phone = ""

	_, err := newService(repo, &mockCache{}, orders).Checkout(context.Background(), "s1", bad)
	assert.ErrorIs(t, err, ErrInvalidCheckout)
	assert.ErrorIs(t, err, order.ErrMissingContact)
	assert.Equal(t, int32(0), orders.calls.Load())
}

func TestCheckout_ConcurrentCallsSubmitOnce(t *testing.T) {
	repo := newMockRepository()
	repo.put(storedCart("s1", domain.CartItem{ProductID: "arroz", UnitPrice: "10000", Quantity: 1}))
	orders := &mockOrders{release: make(chan struct{})}
	sut := newService(repo, &mockCache{}, orders)

	type result struct {
		o   *order.Order
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			o, err := sut.Checkout(context.Background(), "s1", form)
			results <- result{o, err}
		}()
	}
	require.Eventually(t, func() bool { return orders.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(orders.release)

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			// a caller that arrived after the cart was cleared
			assert.ErrorIs(t, r.err, ErrEmptyCart)
			continue
		}
		assert.Equal(t, int64(1001), r.o.Number)
	}
	assert.Equal(t, int32(1), orders.calls.Load())
}
