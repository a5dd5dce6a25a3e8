package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	h "github.com/donpico/tienda/api-gateway/internal/http"
	"github.com/donpico/tienda/pkg/circuitbreaker"
	"github.com/donpico/tienda/pkg/config"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort          string        `mapstructure:"HTTP_PORT"`
	ProductServiceURL string        `mapstructure:"PRODUCT_SERVICE_URL"`
	OrdersServiceURL  string        `mapstructure:"ORDERS_SERVICE_URL"`
	CartServiceURL    string        `mapstructure:"CART_SERVICE_URL"`
	AllowedOrigins    string        `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogPretty         bool          `mapstructure:"LOG_PRETTY"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	err := config.Load(cfg, map[string]any{
		"HTTP_PORT":           "8080",
		"PRODUCT_SERVICE_URL": "http://localhost:8081",
		"ORDERS_SERVICE_URL":  "http://localhost:8082",
		"CART_SERVICE_URL":    "http://localhost:8083",
		"ALLOWED_ORIGINS":     "",
		"LOG_LEVEL":           "info",
		"LOG_PRETTY":          false,
		"REQUEST_TIMEOUT":     "30s",
		"SHUTDOWN_TIMEOUT":    "10s",
	})
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("api-gateway", cfg.LogLevel, cfg.LogPretty)

	router, err := h.NewRouter(h.RouterConfig{
		Products:       h.Upstream{Name: "product-service", URL: cfg.ProductServiceURL},
		Orders:         h.Upstream{Name: "orders-service", URL: cfg.OrdersServiceURL},
		Carts:          h.Upstream{Name: "cart-service", URL: cfg.CartServiceURL},
		Origins:        httpx.NewOriginPolicy(strings.Split(cfg.AllowedOrigins, ",")...),
		RequestTimeout: cfg.RequestTimeout,
		Breaker:        circuitbreaker.DefaultSettings(),
	}, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("invalid upstream config")
	}

	// No WriteTimeout: the admin websocket is proxied through here. Other
	// routes are bounded by REQUEST_TIMEOUT.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(router, "api-gateway"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("API gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	lg.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
	}
	lg.Info().Msg("server exited")
}
