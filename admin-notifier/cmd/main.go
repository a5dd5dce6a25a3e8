package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/donpico/tienda/admin-notifier/internal/notifier"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/client"
	"github.com/donpico/tienda/pkg/config"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/donpico/tienda/pkg/order"
)

type Config struct {
	OrdersServiceURL string        `mapstructure:"ORDERS_SERVICE_URL"`
	PollInterval     time.Duration `mapstructure:"POLL_INTERVAL"`
	ClientTimeout    time.Duration `mapstructure:"CLIENT_TIMEOUT"`
	// MarkAllSeen acknowledges every pending order once and exits.
	MarkAllSeen bool   `mapstructure:"MARK_ALL_SEEN"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	err := config.Load(cfg, map[string]any{
		"ORDERS_SERVICE_URL": "http://localhost:8080",
		"POLL_INTERVAL":      notifier.DefaultInterval.String(),
		"CLIENT_TIMEOUT":     "5s",
		"MARK_ALL_SEEN":      false,
		"LOG_LEVEL":          "info",
		"LOG_PRETTY":         true,
	})
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("admin-notifier", cfg.LogLevel, cfg.LogPretty)

	orders := client.NewOrderClient(cfg.OrdersServiceURL, client.NewHTTPClient("orders", cfg.ClientTimeout, lg))
	n := notifier.New(orders, cfg.PollInterval, func(data order.Notifications) {
		if len(data.Orders) == 0 {
			return
		}
		newest := data.Orders[0]
		lg.Info().
			Int("nuevos_pedidos", data.NewOrders).
			Int64("numero_orden", newest.Number).
			Str("total", cart.FormatPrice(newest.Total)).
			Str("cliente", newest.Contact.Name).
			Msg("¡Nuevo pedido en Don Pico!")
	}, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MarkAllSeen {
		if err := n.Poll(ctx); err != nil {
			lg.Fatal().Err(err).Msg("failed to load pending orders")
		}
		pending := len(n.Pending())
		if err := n.MarkAllSeen(ctx); err != nil {
			lg.Fatal().Err(err).Msg("some orders could not be marked as prepared")
		}
		lg.Info().Int("pedidos", pending).Msg("all orders marked as prepared")
		return
	}

	lg.Info().Dur("interval", cfg.PollInterval).Str("orders_service", cfg.OrdersServiceURL).Msg("polling for new orders")
	n.Run(ctx)
	lg.Info().Msg("admin notifier stopped")
}
