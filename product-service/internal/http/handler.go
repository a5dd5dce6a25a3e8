package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/donpico/tienda/pkg/catalog"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/donpico/tienda/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	repo    repository.RepoInterface
	timeout time.Duration
}

func NewProductHandler(repo repository.RepoInterface, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
	}
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Get)
	r.Get("/categories", h.Categories)
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := catalog.QueryFromValues(r.URL.Query())
	products, err := h.repo.ListProducts(ctx, q)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("list products")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load products")
		return
	}

	httpx.RespondJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if id == "" {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return
	}

	p, err := h.repo.GetProduct(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httpx.RespondError(w, http.StatusNotFound, "not_found", "product not found")
		return
	case errors.Is(err, catalog.ErrMalformedPrice):
		httpx.RespondError(w, http.StatusUnprocessableEntity, "malformed_product", "product data is malformed")
		return
	case err != nil:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("product_id", id).Msg("get product")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load product")
		return
	}

	httpx.RespondJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, catalog.Categories)
}
