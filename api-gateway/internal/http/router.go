package http

import (
	"net/http"
	"time"

	"github.com/donpico/tienda/pkg/circuitbreaker"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Products       Upstream
	Orders         Upstream
	Carts          Upstream
	Origins        *httpx.OriginPolicy
	RequestTimeout time.Duration
	Breaker        circuitbreaker.Settings
}

// NewRouter builds the public API: CORS, request ids and access logging in
// front of one reverse proxy per backend.
func NewRouter(cfg RouterConfig, log zerolog.Logger) (http.Handler, error) {
	products, err := NewProxy(cfg.Products, cfg.Breaker, log)
	if err != nil {
		return nil, err
	}
	orders, err := NewProxy(cfg.Orders, cfg.Breaker, log)
	if err != nil {
		return nil, err
	}
	carts, err := NewProxy(cfg.Carts, cfg.Breaker, log)
	if err != nil {
		return nil, err
	}

	c := cors.New(cors.Options{
		AllowOriginFunc:  cfg.Origins.Allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", httpx.RequestIDHeader, "X-Session-ID"},
		ExposedHeaders:   []string{httpx.RequestIDHeader, "X-Session-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(log))
	r.Use(c.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The admin websocket lives as long as the browser tab, so it skips the
	// request timeout and compression.
	r.Handle("/api/admin/ws", orders)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.Compress(5))

		r.Handle("/api/products", products)
		r.Handle("/api/products/*", products)
		r.Handle("/api/categories", products)
		r.Handle("/api/orders", orders)
		r.Handle("/api/orders/*", orders)
		r.Handle("/api/admin/*", orders)
		r.Handle("/api/cart", carts)
		r.Handle("/api/cart/*", carts)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r, nil
}
