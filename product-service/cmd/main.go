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

	"github.com/donpico/tienda/pkg/config"
	"github.com/donpico/tienda/pkg/grpchealth"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	h "github.com/donpico/tienda/product-service/internal/http"
	"github.com/donpico/tienda/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	GRPCPort        string        `mapstructure:"GRPC_PORT"`
	DBPath          string        `mapstructure:"DB_PATH"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	err := config.Load(cfg, map[string]any{
		"HTTP_PORT":        "8081",
		"GRPC_PORT":        ":50051",
		"DB_PATH":          "./products.db",
		"LOG_LEVEL":        "info",
		"LOG_PRETTY":       false,
		"REQUEST_TIMEOUT":  "5s",
		"SHUTDOWN_TIMEOUT": "10s",
	})
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("product-service", cfg.LogLevel, cfg.LogPretty)

	repo, err := repository.NewRepository(cfg.DBPath, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to open product database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		lg.Fatal().Err(err).Msg("failed to run migrations")
	}
	lg.Info().Msg("migrations completed successfully")

	productHandler := h.NewProductHandler(repo, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(lg))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", productHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "product-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := grpchealth.New("product-service")
	go func() {
		if err := health.Serve(ctx, cfg.GRPCPort, lg); err != nil {
			lg.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("product service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server error")
		}
	}()
	health.SetServing(true)

	<-ctx.Done()
	health.SetServing(false)
	lg.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
	}
	lg.Info().Msg("server exited")
}
