package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/donpico/tienda/orders-service/internal/export"
	"github.com/donpico/tienda/orders-service/internal/repository"
	"github.com/donpico/tienda/orders-service/internal/service"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/donpico/tienda/pkg/order"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req order.CreateRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	Notifications(ctx context.Context) (order.Notifications, error)
	MarkSeen(ctx context.Context, id string) error
	ExportOrders(ctx context.Context, w io.Writer, since time.Time) error
}

type OrderHandler struct {
	svc       OrderService
	timeout   time.Duration
	websocket http.Handler
}

func NewOrderHandler(svc OrderService, websocket http.Handler, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		svc:       svc,
		timeout:   timeout,
		websocket: websocket,
	}
}

func (h *OrderHandler) Routes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Get)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/notificaciones", h.Notifications)
		r.Post("/notificaciones/visto/{id}", h.MarkSeen)
		r.Get("/orders/export", h.Export)
		if h.websocket != nil {
			r.Get("/ws", h.websocket.ServeHTTP)
		}
	})
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req order.CreateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		respondCreateError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	placed, err := h.svc.PlaceOrder(ctx, req)
	switch {
	case errors.Is(err, service.ErrTotalsMismatch):
		respondCreateError(w, http.StatusUnprocessableEntity, "totals_mismatch", err.Error())
		return
	case errors.Is(err, service.ErrInvalidOrder):
		respondCreateError(w, http.StatusBadRequest, "invalid_order", err.Error())
		return
	case err != nil:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("place order")
		respondCreateError(w, http.StatusInternalServerError, "internal_error", "failed to place order")
		return
	}

	wire := placed.ToWire()
	httpx.RespondJSON(w, http.StatusCreated, order.CreateResponse{Success: true, Order: &wire})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o.ToWire())
}

func (h *OrderHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.svc.Notifications(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, n)
}

func (h *OrderHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.svc.MarkSeen(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export streams an xlsx of the orders placed in the last "days" days
// (default 30).
func (h *OrderHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpx.RespondError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}
		days = n
	}
	since := time.Now().AddDate(0, 0, -days)

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=pedidos-%s.xlsx", time.Now().Format("20060102")))
	if err := h.svc.ExportOrders(ctx, w, since); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("export orders")
		w.Header().Del("Content-Disposition")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to export orders")
	}
}

func respondCreateError(w http.ResponseWriter, status int, code, message string) {
	httpx.RespondJSON(w, status, order.CreateResponse{Success: false, Error: message, Code: code})
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrderID):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		httpx.RespondError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("order request failed")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
