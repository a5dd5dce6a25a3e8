package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/donpico/tienda/pkg/catalog"
	"github.com/rs/zerolog"
)

// CatalogClient talks to the product service.
type CatalogClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewCatalogClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *CatalogClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CatalogClient{baseURL: baseURL, http: httpClient, log: log}
}

// ListProducts fetches the listing for q. Entries that fail validation are
// logged and left out; the rest of the listing is still returned.
func (c *CatalogClient) ListProducts(ctx context.Context, q catalog.Query) ([]catalog.Product, error) {
	u := joinURL(c.baseURL, "/api/products")
	if v := q.Values(); len(v) > 0 {
		u += "?" + v.Encode()
	}

	var raw []json.RawMessage
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}

	products := make([]catalog.Product, 0, len(raw))
	for i, msg := range raw {
		p, err := decodeProduct(msg)
		if err != nil {
			c.log.Warn().Err(err).Int("index", i).Msg("skipping malformed product")
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (c *CatalogClient) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, joinURL(c.baseURL, "/api/products/"+url.PathEscape(id)), &raw); err != nil {
		return catalog.Product{}, err
	}
	return decodeProduct(raw)
}

func (c *CatalogClient) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	if err := c.getJSON(ctx, joinURL(c.baseURL, "/api/categories"), &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, readError(resp).Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrCatalogUnavailable, resp.StatusCode, readError(resp).Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCatalogUnavailable, err)
	}
	return nil
}

func decodeProduct(data []byte) (catalog.Product, error) {
	var p catalog.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return catalog.Product{}, fmt.Errorf("%w: %w", ErrMalformedProduct, err)
	}
	if err := p.Validate(); err != nil {
		return catalog.Product{}, fmt.Errorf("%w: %w", ErrMalformedProduct, err)
	}
	return p, nil
}
