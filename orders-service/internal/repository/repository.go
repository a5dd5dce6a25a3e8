package repository

import (
	"context"
	"errors"
	"time"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/google/uuid"
)

var ErrOrderNotFound = errors.New("order not found")

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type OrderRepository interface {
	// CreateOrder inserts the order and its order.created outbox event in one
	// transaction, filling in Number and the timestamps.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListUnseen(ctx context.Context, limit int) ([]*domain.Order, error)
	CountUnseen(ctx context.Context) (int, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error)
	MarkSeen(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
	RunMigrations() error
	Close() error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
