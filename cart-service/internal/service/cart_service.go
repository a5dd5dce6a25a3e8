package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/donpico/tienda/cart-service/internal/cache"
	"github.com/donpico/tienda/cart-service/internal/domain"
	"github.com/donpico/tienda/cart-service/internal/repository"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/order"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const maxSaveAttempts = 3

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type OrderPlacer interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
}

// View is a cart as shown to the shopper, totals included.
type View struct {
	SessionID string
	Items     []cart.LineItem
	ItemCount int
	Totals    cart.Totals
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products ProductLookup
	orders   OrderPlacer
	policy   cart.PricingPolicy
	log      zerolog.Logger

	reads     singleflight.Group
	checkouts singleflight.Group
}

func NewCartService(
	repo repository.CartRepository,
	cache cache.CartCache,
	products ProductLookup,
	orders OrderPlacer,
	policy cart.PricingPolicy,
	log zerolog.Logger,
) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cache,
		products: products,
		orders:   orders,
		policy:   policy,
		log:      log,
	}
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (View, error) {
	stored, err := s.load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	engine, err := stored.Engine()
	if err != nil {
		return View{}, fmt.Errorf("stored cart %s: %w", sessionID, err)
	}
	return s.view(sessionID, engine), nil
}

// AddItem looks the product up in the catalog and adds one unit at the
// current catalog price.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string) (View, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return View{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		return c.AddItem(p)
	})
}

func (s *CartService) ChangeQuantity(ctx context.Context, sessionID, productID string, delta int) (View, error) {
	if delta == 0 {
		return View{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		if _, ok := c.Item(productID); !ok {
			return fmt.Errorf("%w: %s", ErrProductNotInCart, productID)
		}
		c.ChangeQuantity(productID, delta)
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (View, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

// Checkout submits the cart as an order and deletes the cart once the order
// service confirmed it. Concurrent checkouts of one session share a single
// submission.
func (s *CartService) Checkout(ctx context.Context, sessionID string, form order.CheckoutForm) (*order.Order, error) {
	v, err, shared := s.checkouts.Do(sessionID, func() (any, error) {
		return s.checkout(ctx, sessionID, form)
	})
	if shared {
		s.log.Warn().Str("session_id", sessionID).Msg("concurrent checkout joined in-flight submission")
	}
	if err != nil {
		return nil, err
	}
	return v.(*order.Order), nil
}

func (s *CartService) checkout(ctx context.Context, sessionID string, form order.CheckoutForm) (*order.Order, error) {
	stored, err := s.fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	engine, err := stored.Engine()
	if err != nil {
		return nil, fmt.Errorf("stored cart %s: %w", sessionID, err)
	}
	if engine.IsEmpty() {
		return nil, ErrEmptyCart
	}

	snapshot := engine.Snapshot()
	req := order.NewCreateRequest(snapshot.Items(), snapshot.Totals(s.policy), form)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCheckout, err)
	}

	placed, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("order submission failed, cart kept")
		return nil, fmt.Errorf("submit order: %w", err)
	}

	if err := s.repo.DeleteCart(context.WithoutCancel(ctx), sessionID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.Error().Err(err).
			Str("session_id", sessionID).
			Int64("numero_orden", placed.Number).
			Msg("order placed but cart not cleared")
	}
	// the deleted cart's successor starts again at version 1; fills of
	// anything read before the delete stay refused
	s.invalidate(sessionID, stored.Version+1)

	s.log.Info().
		Str("session_id", sessionID).
		Str("order_id", placed.ID).
		Int64("numero_orden", placed.Number).
		Msg("checkout completed")
	return placed, nil
}

// mutate applies fn to the stored cart and saves it, retrying when another
// request saved the same cart in between.
func (s *CartService) mutate(ctx context.Context, sessionID string, fn func(*cart.Cart) error) (View, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		stored, err := s.fetch(ctx, sessionID)
		if err != nil {
			return View{}, err
		}
		engine, err := stored.Engine()
		if err != nil {
			return View{}, fmt.Errorf("stored cart %s: %w", sessionID, err)
		}
		if err := fn(engine); err != nil {
			return View{}, err
		}

		stored.SetItems(engine.Items(), time.Now().UTC())
		err = s.repo.SaveCart(ctx, stored)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.log.Debug().Str("session_id", sessionID).Int("attempt", attempt).Msg("cart version conflict")
			continue
		}
		if err != nil {
			return View{}, err
		}
		s.invalidate(sessionID, stored.Version)
		return s.view(sessionID, engine), nil
	}
	return View{}, ErrCartBusy
}

// load reads through the cache. Concurrent misses for one session share a
// single repository read. The fill is refused by the cache when a write
// invalidated a newer version while the read was in flight.
func (s *CartService) load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	v, err, _ := s.reads.Do(sessionID, func() (any, error) {
		c, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Msg("cache get failed")
		}

		c, err = s.fetch(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if c.Version > 0 {
			go func(c *domain.Cart) {
				setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				err := s.cache.Set(setCtx, sessionID, c)
				switch {
				case errors.Is(err, cache.ErrStaleEntry):
					s.log.Debug().Str("session_id", sessionID).Int64("version", c.Version).Msg("skipped stale cache fill")
				case err != nil:
					s.log.Warn().Err(err).Msg("cache set failed")
				}
			}(c)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// fetch reads the repository directly. A missing cart is a new empty one.
func (s *CartService) fetch(ctx context.Context, sessionID string) (*domain.Cart, error) {
	c, err := s.repo.GetCart(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CartService) invalidate(sessionID string, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, sessionID, version); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("cache invalidate failed")
	}
}

func (s *CartService) view(sessionID string, c *cart.Cart) View {
	return View{
		SessionID: sessionID,
		Items:     c.Items(),
		ItemCount: c.ItemCount(),
		Totals:    c.Totals(s.policy),
	}
}
