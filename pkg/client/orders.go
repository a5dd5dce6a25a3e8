package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/donpico/tienda/pkg/order"
)

// OrderClient submits orders and serves the admin notification endpoints.
type OrderClient struct {
	baseURL string
	http    *http.Client
}

func NewOrderClient(baseURL string, httpClient *http.Client) *OrderClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OrderClient{baseURL: baseURL, http: httpClient}
}

// CreateOrder submits req once. It never retries: a retry after a timeout
// could place the order twice.
func (c *OrderClient) CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.baseURL, "/api/orders"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d: %s", ErrOrderServiceUnavailable, resp.StatusCode, readError(resp).Error)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		e := readError(resp)
		return nil, &RejectedError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}

	var out order.CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrOrderServiceUnavailable, err)
	}
	if !out.Success || out.Order == nil {
		return nil, &RejectedError{Status: resp.StatusCode, Code: out.Code, Message: out.Error}
	}
	return out.Order, nil
}

func (c *OrderClient) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Notifications returns the unseen orders, newest first.
func (c *OrderClient) Notifications(ctx context.Context) (order.Notifications, error) {
	var n order.Notifications
	err := c.do(ctx, http.MethodGet, "/api/admin/notificaciones", &n)
	return n, err
}

// MarkSeen acknowledges one order. Acknowledging twice is harmless.
func (c *OrderClient) MarkSeen(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/notificaciones/visto/"+url.PathEscape(id), nil)
}

func (c *OrderClient) do(ctx context.Context, method, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, joinURL(c.baseURL, path), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, readError(resp).Error)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", ErrOrderServiceUnavailable, resp.StatusCode, readError(resp).Error)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrOrderServiceUnavailable, err)
	}
	return nil
}
