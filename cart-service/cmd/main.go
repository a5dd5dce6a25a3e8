package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/donpico/tienda/cart-service/internal/cache"
	h "github.com/donpico/tienda/cart-service/internal/http"
	"github.com/donpico/tienda/cart-service/internal/repository"
	"github.com/donpico/tienda/cart-service/internal/service"
	"github.com/donpico/tienda/pkg/client"
	"github.com/donpico/tienda/pkg/config"
	"github.com/donpico/tienda/pkg/grpchealth"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	GRPCPort        string        `mapstructure:"GRPC_PORT"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDBName     string        `mapstructure:"MONGO_DB_NAME"`
	CartTTL         time.Duration `mapstructure:"CART_TTL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	ProductService  string        `mapstructure:"PRODUCT_SERVICE_URL"`
	OrdersService   string        `mapstructure:"ORDERS_SERVICE_URL"`
	ClientTimeout   time.Duration `mapstructure:"CLIENT_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Pricing config.Pricing `mapstructure:",squash"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	err := config.Load(cfg, config.Merge(map[string]any{
		"HTTP_PORT":           "8083",
		"GRPC_PORT":           ":50053",
		"MONGO_URI":           "mongodb://localhost:27017",
		"MONGO_DB_NAME":       "cartdb",
		"CART_TTL":            "720h",
		"REDIS_ADDR":          "localhost:6379",
		"REDIS_PASSWORD":      "",
		"CACHE_TTL":           "15m",
		"PRODUCT_SERVICE_URL": "http://localhost:8081",
		"ORDERS_SERVICE_URL":  "http://localhost:8082",
		"CLIENT_TIMEOUT":      "5s",
		"LOG_LEVEL":           "info",
		"LOG_PRETTY":          false,
		"REQUEST_TIMEOUT":     "10s",
		"SHUTDOWN_TIMEOUT":    "10s",
	}, config.PricingDefaults()))
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("cart-service", cfg.LogLevel, cfg.LogPretty)

	policy, err := cfg.Pricing.Policy()
	if err != nil {
		lg.Fatal().Err(err).Msg("invalid pricing config")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	mongoDB, err := repository.ConnectMongoDB(startCtx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer mongoDB.Client().Disconnect(context.Background())

	repo := repository.NewMongoRepository(mongoDB, cfg.CartTTL)
	if err := repo.CreateIndexes(startCtx); err != nil {
		lg.Fatal().Err(err).Msg("failed to create indexes")
	}
	lg.Info().Str("database", cfg.MongoDBName).Msg("connected to MongoDB")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startCtx).Err(); err != nil {
		lg.Fatal().Err(err).Msg("redis connection failed")
	}

	catalogClient := client.NewCatalogClient(cfg.ProductService, client.NewHTTPClient("catalog", cfg.ClientTimeout, lg), lg)
	orderClient := client.NewOrderClient(cfg.OrdersService, client.NewHTTPClient("orders", cfg.ClientTimeout, lg))

	svc := service.NewCartService(repo, cache.NewRedisCache(redisClient, cfg.CacheTTL), catalogClient, orderClient, policy, lg)
	cartHandler := h.NewCartHandler(svc, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(lg))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", cartHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cart-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := grpchealth.New("cart-service")
	go func() {
		if err := health.Serve(ctx, cfg.GRPCPort, lg); err != nil {
			lg.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("cart service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server error")
		}
	}()
	health.SetServing(true)

	<-ctx.Done()
	health.SetServing(false)
	lg.Info().Msg("shutting down cart service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
	}
	lg.Info().Msg("cart service stopped")
}
