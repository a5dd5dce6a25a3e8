package domain

import (
	"fmt"
	"time"

	"github.com/donpico/tienda/pkg/catalog"
	"github.com/shopspring/decimal"
)

// Product is a row of the products table. Price is kept as stored so that
// bad data can be detected instead of silently becoming zero.
type Product struct {
	ID          string
	Name        string
	Category    string
	Description string
	Price       *string
	Image       string
	CreatedAt   time.Time
}

// ToCatalog converts the row into the API representation.
func (p *Product) ToCatalog() (catalog.Product, error) {
	if p.Price == nil {
		return catalog.Product{}, fmt.Errorf("%w: product %q has no price", catalog.ErrMalformedPrice, p.ID)
	}
	price, err := decimal.NewFromString(*p.Price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("%w: product %q: %v", catalog.ErrMalformedPrice, p.ID, err)
	}
	out := catalog.Product{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       price,
		Description: p.Description,
		Image:       p.Image,
	}
	if err := out.Validate(); err != nil {
		return catalog.Product{}, err
	}
	return out, nil
}
