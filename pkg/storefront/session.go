package storefront

import (
	"context"
	"fmt"
	"sync"

	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/order"
	"github.com/rs/zerolog"
)

type CatalogSource interface {
	ListProducts(ctx context.Context, q catalog.Query) ([]catalog.Product, error)
}

type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
}

// CatalogState is what the storefront currently shows for the catalog.
type CatalogState struct {
	Query    catalog.Query
	Products []catalog.Product
	Loading  bool
	Err      *CatalogError
}

// Confirmation is shown after a successful checkout. Total is the amount
// that was submitted, not a recomputation.
type Confirmation struct {
	Order order.Order
	Total order.Totals
}

// Session is one shopper's storefront: the view, the catalog listing and
// the cart. All methods are safe for concurrent use.
type Session struct {
	catalog CatalogSource
	orders  OrderSubmitter
	policy  cart.PricingPolicy
	log     zerolog.Logger

	mu           sync.Mutex
	view         View
	cart         *cart.Cart
	query        catalog.Query
	products     []catalog.Product
	loading      bool
	catalogErr   *CatalogError
	seq          uint64
	submitting   bool
	confirmation *Confirmation
}

func NewSession(src CatalogSource, orders OrderSubmitter, policy cart.PricingPolicy, log zerolog.Logger) *Session {
	return &Session{
		catalog: src,
		orders:  orders,
		policy:  policy,
		log:     log,
		view:    ViewBrowsing,
		cart:    cart.New(),
	}
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) OpenCart() error {
	return s.transition(ViewBrowsing, ViewCartReview)
}

func (s *Session) BackToStore() error {
	return s.transition(ViewCartReview, ViewBrowsing)
}

func (s *Session) ProceedToCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != ViewCartReview {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.view, ViewCheckout)
	}
	if s.cart.IsEmpty() {
		return ErrEmptyCart
	}
	s.view = ViewCheckout
	return nil
}

func (s *Session) BackToCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInFlight
	}
	if s.view != ViewCheckout {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.view, ViewCartReview)
	}
	s.view = ViewCartReview
	return nil
}

// StartNewOrder leaves the confirmation screen and forgets the confirmation.
func (s *Session) StartNewOrder() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != ViewConfirmed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.view, ViewBrowsing)
	}
	s.confirmation = nil
	s.view = ViewBrowsing
	return nil
}

func (s *Session) transition(from, to View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.view, to)
	}
	s.view = to
	return nil
}

// SetCategory changes the category filter and reloads the listing.
func (s *Session) SetCategory(ctx context.Context, category string) error {
	s.mu.Lock()
	s.query.Category = category
	s.mu.Unlock()
	return s.Reload(ctx)
}

// SetSearch changes the search term and reloads the listing.
func (s *Session) SetSearch(ctx context.Context, term string) error {
	s.mu.Lock()
	s.query.Search = term
	s.mu.Unlock()
	return s.Reload(ctx)
}

// Reload fetches the listing for the current query. Only the most recent
// reload may update the listing; an older one that finishes later returns
// ErrStaleResponse and changes nothing. A failure keeps the previous
// products and records a CatalogError until the next successful load.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	q := s.query
	s.loading = true
	s.mu.Unlock()

	products, err := s.catalog.ListProducts(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.log.Debug().Uint64("seq", seq).Uint64("latest", s.seq).Msg("discarding stale catalog response")
		return ErrStaleResponse
	}
	s.loading = false
	if err != nil {
		s.catalogErr = &CatalogError{Query: q, Err: err}
		s.log.Warn().Err(err).Str("categoria", q.Category).Str("busqueda", q.Search).Msg("catalog load failed")
		return s.catalogErr
	}
	s.catalogErr = nil
	s.products = products
	return nil
}

func (s *Session) Catalog() CatalogState {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]catalog.Product, len(s.products))
	copy(products, s.products)
	return CatalogState{
		Query:    s.query,
		Products: products,
		Loading:  s.loading,
		Err:      s.catalogErr,
	}
}

// AddToCart adds one unit of a product from the current listing.
func (s *Session) AddToCart(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInFlight
	}
	for _, p := range s.products {
		if p.ID == productID {
			return s.cart.AddItem(p)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
}

func (s *Session) ChangeQuantity(productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInFlight
	}
	s.cart.ChangeQuantity(productID, delta)
	return nil
}

func (s *Session) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInFlight
	}
	s.cart.RemoveItem(productID)
	return nil
}

func (s *Session) Items() []cart.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Items()
}

func (s *Session) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.ItemCount()
}

func (s *Session) Totals() cart.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Totals(s.policy)
}

func (s *Session) Confirmation() (Confirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmation == nil {
		return Confirmation{}, false
	}
	return *s.confirmation, true
}

// Submit places the order for the current cart. Only one submission may be
// in flight; the cart cannot change meanwhile. On success the cart is
// cleared and the view moves to confirmed. On failure the cart is kept and
// the returned error wraps ErrOrderSubmission.
func (s *Session) Submit(ctx context.Context, form order.CheckoutForm) (Confirmation, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return Confirmation{}, ErrSubmitInFlight
	}
	if s.view != ViewCheckout {
		view := s.view
		s.mu.Unlock()
		return Confirmation{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, view)
	}
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return Confirmation{}, ErrEmptyCart
	}
	snap := s.cart.Snapshot()
	req := order.NewCreateRequest(snap.Items(), snap.Totals(s.policy), form)
	if err := req.Validate(); err != nil {
		s.mu.Unlock()
		return Confirmation{}, err
	}
	s.submitting = true
	s.mu.Unlock()

	placed, err := s.orders.CreateOrder(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.log.Error().Err(err).Str("total", req.Totals.Total.String()).Msg("order submission failed")
		return Confirmation{}, fmt.Errorf("%w: %w", ErrOrderSubmission, err)
	}

	s.cart.Clear()
	s.confirmation = &Confirmation{Order: *placed, Total: req.Totals}
	s.view = ViewConfirmed
	s.log.Info().Str("order_id", placed.ID).Int64("numero_orden", placed.Number).Msg("order confirmed")
	return *s.confirmation, nil
}
