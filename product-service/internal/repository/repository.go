package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/product-service/internal/db"
	"github.com/donpico/tienda/product-service/internal/domain"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("product not found")

type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

type RepoInterface interface {
	ListProducts(ctx context.Context, q catalog.Query) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	Ping(ctx context.Context) error
	Close() error
}

func NewRepository(dbPath string, log zerolog.Logger) (*Repository, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: conn, log: log}, nil
}

func (r *Repository) RunMigrations() error {
	return db.RunMigrations(r.db)
}

const productColumns = `id, name, category, description, price, image, created_at`

// ListProducts returns the products matching q in catalog order. Rows with
// an unusable price are logged and left out of the listing.
func (r *Repository) ListProducts(ctx context.Context, q catalog.Query) ([]catalog.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]catalog.Product, 0)
	for rows.Next() {
		row, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		p, err := row.ToCatalog()
		if err != nil {
			r.log.Warn().Err(err).Str("product_id", row.ID).Msg("skipping product with malformed data")
			continue
		}
		// filtering happens in Go so category and search fold case the same
		// way everywhere; SQLite only folds ASCII
		if q.Matches(p) {
			products = append(products, p)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, err
	}
	out, err := p.ToCatalog()
	if err != nil {
		r.log.Warn().Err(err).Str("product_id", id).Msg("product has malformed data")
		return catalog.Product{}, err
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Description,
		&p.Price,
		&p.Image,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}
