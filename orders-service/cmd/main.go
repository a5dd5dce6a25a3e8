package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	h "github.com/donpico/tienda/orders-service/internal/http"
	"github.com/donpico/tienda/orders-service/internal/notify"
	"github.com/donpico/tienda/orders-service/internal/publisher"
	"github.com/donpico/tienda/orders-service/internal/repository"
	"github.com/donpico/tienda/orders-service/internal/service"
	"github.com/donpico/tienda/pkg/config"
	"github.com/donpico/tienda/pkg/grpchealth"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	GRPCPort        string        `mapstructure:"GRPC_PORT"`
	DBHost          string        `mapstructure:"DB_HOST"`
	DBPort          int           `mapstructure:"DB_PORT"`
	DBUser          string        `mapstructure:"DB_USER"`
	DBPassword      string        `mapstructure:"DB_PASSWORD"`
	DBName          string        `mapstructure:"DB_NAME"`
	KafkaBrokers    string        `mapstructure:"KAFKA_BROKERS"`
	AllowedOrigins  string        `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Pricing config.Pricing `mapstructure:",squash"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	err := config.Load(cfg, config.Merge(map[string]any{
		"HTTP_PORT":        "8082",
		"GRPC_PORT":        ":50052",
		"DB_HOST":          "localhost",
		"DB_PORT":          5432,
		"DB_USER":          "postgres",
		"DB_PASSWORD":      "postgres",
		"DB_NAME":          "donpico",
		"KAFKA_BROKERS":    "localhost:9092",
		"ALLOWED_ORIGINS":  "",
		"LOG_LEVEL":        "info",
		"LOG_PRETTY":       false,
		"REQUEST_TIMEOUT":  "5s",
		"SHUTDOWN_TIMEOUT": "10s",
	}, config.PricingDefaults()))
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("orders-service", cfg.LogLevel, cfg.LogPretty)

	policy, err := cfg.Pricing.Policy()
	if err != nil {
		lg.Fatal().Err(err).Msg("invalid pricing config")
	}

	repo, err := repository.NewRepository(&repository.Credentials{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		lg.Fatal().Err(err).Msg("failed to run migrations")
	}
	lg.Info().Msg("database migrations completed")

	origins := httpx.NewOriginPolicy(strings.Split(cfg.AllowedOrigins, ",")...)
	hub := notify.NewHub(origins.CheckRequest, lg)
	defer hub.Close()

	svc := service.NewOrderService(repo, policy, hub, lg)
	orderHandler := h.NewOrderHandler(svc, hub, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(lg))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", orderHandler.Routes)

	// No WriteTimeout: admin websockets are long lived. Handlers bound their
	// own work with REQUEST_TIMEOUT.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(r, "orders-service"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	poller := publisher.NewOutboxPoller(repo, lg, strings.Split(cfg.KafkaBrokers, ",")...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	health := grpchealth.New("orders-service")
	go func() {
		if err := health.Serve(ctx, cfg.GRPCPort, lg); err != nil {
			lg.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("orders service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server error")
		}
	}()
	health.SetServing(true)

	<-ctx.Done()
	health.SetServing(false)
	lg.Info().Msg("shutting down orders service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		lg.Info().Msg("outbox poller stopped cleanly")
	case <-shutdownCtx.Done():
		lg.Warn().Msg("outbox poller didn't stop in time")
	}

	if err := poller.Close(); err != nil {
		lg.Error().Err(err).Msg("failed to close kafka writer")
	}
	lg.Info().Msg("orders service stopped")
}
