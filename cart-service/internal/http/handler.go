package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/donpico/tienda/cart-service/internal/service"
	"github.com/donpico/tienda/pkg/cart"
	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/client"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/donpico/tienda/pkg/order"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	SessionHeader   = "X-Session-ID"
	maxSessionIDLen = 128
)

type CartService interface {
	GetCart(ctx context.Context, sessionID string) (service.View, error)
	AddItem(ctx context.Context, sessionID, productID string) (service.View, error)
	ChangeQuantity(ctx context.Context, sessionID, productID string, delta int) (service.View, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (service.View, error)
	Checkout(ctx context.Context, sessionID string, form order.CheckoutForm) (*order.Order, error)
}

type CartResponse struct {
	SessionID      string          `json:"sessionId"`
	Items          []cart.LineItem `json:"items"`
	ItemCount      int             `json:"cantidad"`
	Totals         cart.Totals     `json:"totales"`
	FormattedTotal string          `json:"totalFormateado"`
}

type AddItemRequest struct {
	ProductID string `json:"productoId"`
}

type ChangeQuantityRequest struct {
	Delta int `json:"delta"`
}

type CartHandler struct {
	svc     CartService
	timeout time.Duration
}

func NewCartHandler(svc CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{svc: svc, timeout: timeout}
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(session)
		r.Get("/", h.Get)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{id}", h.ChangeQuantity)
		r.Delete("/items/{id}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
	})
}

type sessionKey struct{}

// session takes the cart session from X-Session-ID, starting a new one when
// the header is absent. The id is echoed so clients can keep it.
func session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(SessionHeader))
		if id == "" {
			id = uuid.NewString()
		}
		if len(id) > maxSessionIDLen {
			httpx.RespondError(w, http.StatusBadRequest, "invalid_session", "session id too long")
			return
		}
		w.Header().Set(SessionHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	v, err := h.svc.GetCart(ctx, sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, toResponse(v))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request", "productoId is required")
		return
	}

	v, err := h.svc.AddItem(ctx, sessionID(r), req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, toResponse(v))
}

func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ChangeQuantityRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	v, err := h.svc.ChangeQuantity(ctx, sessionID(r), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, toResponse(v))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	v, err := h.svc.RemoveItem(ctx, sessionID(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, toResponse(v))
}

// Checkout answers in the order service's envelope so the frontend handles
// both the same way.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var form order.CheckoutForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		respondCheckoutError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	placed, err := h.svc.Checkout(ctx, sessionID(r), form)
	var rejected *client.RejectedError
	switch {
	case err == nil:
		httpx.RespondJSON(w, http.StatusCreated, order.CreateResponse{Success: true, Order: placed})
	case errors.Is(err, service.ErrEmptyCart):
		respondCheckoutError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, service.ErrInvalidCheckout):
		respondCheckoutError(w, http.StatusBadRequest, "invalid_order", err.Error())
	case errors.As(err, &rejected):
		respondCheckoutError(w, http.StatusUnprocessableEntity, rejected.Code, rejected.Message)
	case errors.Is(err, client.ErrOrderServiceUnavailable):
		respondCheckoutError(w, http.StatusServiceUnavailable, "order_service_unavailable", "order could not be placed, try again")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("checkout")
		respondCheckoutError(w, http.StatusInternalServerError, "internal_error", "checkout failed")
	}
}

func toResponse(v service.View) CartResponse {
	return CartResponse{
		SessionID:      v.SessionID,
		Items:          v.Items,
		ItemCount:      v.ItemCount,
		Totals:         v.Totals,
		FormattedTotal: cart.FormatPrice(v.Totals.Total),
	}
}

func respondCheckoutError(w http.ResponseWriter, status int, code, message string) {
	httpx.RespondJSON(w, status, order.CreateResponse{Success: false, Error: message, Code: code})
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, client.ErrNotFound):
		httpx.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, service.ErrProductNotInCart):
		httpx.RespondError(w, http.StatusNotFound, "not_in_cart", err.Error())
	case errors.Is(err, service.ErrInvalidQuantity):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, client.ErrMalformedProduct), errors.Is(err, catalog.ErrMalformedPrice):
		httpx.RespondError(w, http.StatusUnprocessableEntity, "malformed_product", "product data is malformed")
	case errors.Is(err, service.ErrCartBusy):
		httpx.RespondError(w, http.StatusConflict, "cart_busy", err.Error())
	case errors.Is(err, client.ErrCatalogUnavailable):
		httpx.RespondError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog is unavailable, try again")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("cart request failed")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
