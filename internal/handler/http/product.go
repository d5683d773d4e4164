package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/orderreview/internal/service"
	"github.com/storefront/orderreview/pkg/httputil"
)

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	products *service.ProductService
	ratings  *service.RatingAggregator
	logger   *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(products *service.ProductService, ratings *service.RatingAggregator, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, ratings: ratings, logger: logger}
}

// GetProduct handles GET /products/{id}. The product is the whole body.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), service.CreateProductInput{
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, productResponse{Message: "Product created successfully", Product: product})
}

// RecomputeRating handles POST /products/{id}/rating/recompute
func (h *ProductHandler) RecomputeRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.ratings.Recompute(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, productResponse{Product: product})
}
