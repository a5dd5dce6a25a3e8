package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/donpico/tienda/pkg/money"
	"github.com/shopspring/decimal"
)

// AllCategories is the category sentinel meaning "no filter".
const AllCategories = "Todos"

// Categories lists the storefront categories in display order.
var Categories = []string{
	AllCategories,
	"Lácteos",
	"Panadería",
	"Despensa",
	"Carnes",
	"Frutas",
	"Bebidas",
	"Higiene",
}

var (
	ErrMalformedPrice = errors.New("malformed product price")
	ErrMissingID      = errors.New("product id is required")
)

// Product is the catalog record shared by the catalog API and its clients.
type Product struct {
	ID          string          `json:"_id"`
	Name        string          `json:"nombre"`
	Category    string          `json:"categoria"`
	Price       decimal.Decimal `json:"precio"`
	Description string          `json:"descripcion"`
	Image       string          `json:"imagen"`
}

// MarshalJSON writes the price as a JSON number.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return json.Marshal(struct {
		alias
		Price json.Number `json:"precio"`
	}{alias(p), money.Number(p.Price)})
}

// UnmarshalJSON rejects products whose price is missing, null or not a number.
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	aux := struct {
		*alias
		Price json.RawMessage `json:"precio"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := strings.TrimSpace(string(aux.Price))
	if raw == "" || raw == "null" {
		return fmt.Errorf("%w: product %q has no price", ErrMalformedPrice, p.ID)
	}
	var price decimal.Decimal
	if err := price.UnmarshalJSON(aux.Price); err != nil {
		return fmt.Errorf("%w: product %q: %v", ErrMalformedPrice, p.ID, err)
	}
	p.Price = price
	return nil
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingID
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: product %q has negative price %s", ErrMalformedPrice, p.ID, p.Price)
	}
	return nil
}

// IsAllCategories reports whether category means no category filter.
func IsAllCategories(category string) bool {
	c := strings.TrimSpace(category)
	return c == "" || strings.EqualFold(c, AllCategories) || strings.EqualFold(c, "all")
}

// Query is a catalog listing request.
type Query struct {
	Category string
	Search   string
}

// Values encodes the query the way the catalog API expects it.
func (q Query) Values() url.Values {
	v := url.Values{}
	if !IsAllCategories(q.Category) {
		v.Set("categoria", strings.TrimSpace(q.Category))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("busqueda", s)
	}
	return v
}

// QueryFromValues is the inverse of Query.Values.
func QueryFromValues(v url.Values) Query {
	q := Query{
		Category: strings.TrimSpace(v.Get("categoria")),
		Search:   strings.TrimSpace(v.Get("busqueda")),
	}
	if IsAllCategories(q.Category) {
		q.Category = ""
	}
	return q
}

// Matches reports whether p belongs in the listing for q. The search term
// matches case-insensitively in the name, description or category.
func (q Query) Matches(p Product) bool {
	if !IsAllCategories(q.Category) && !strings.EqualFold(p.Category, strings.TrimSpace(q.Category)) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}
