package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/orderreview/internal/service"
	"github.com/storefront/orderreview/pkg/httputil"
	"github.com/storefront/orderreview/pkg/middleware"
	"github.com/storefront/orderreview/pkg/pagination"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// SubmitReview handles POST /reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	review, err := h.service.SubmitReview(r.Context(), service.SubmitReviewInput{
		ProductID:  req.ProductID,
		OrderID:    req.OrderID,
		ReviewerID: middleware.ActorIDFromContext(r.Context()),
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, reviewResponse{Message: "Review submitted successfully", Review: review})
}

// DeleteReview handles DELETE /reviews/{reviewId}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "reviewId"))
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), id, middleware.ActorIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Review deleted successfully"})
}

// ListProductReviews handles GET /products/{id}/reviews
func (h *ReviewHandler) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	page := pagination.FromRequest(r)

	reviews, total, err := h.service.ListProductReviews(r.Context(), productID, page.Page, page.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(reviews, total, page))
}
