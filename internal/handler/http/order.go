package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/service"
	"github.com/storefront/orderreview/pkg/httputil"
	"github.com/storefront/orderreview/pkg/middleware"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]domain.LineRequest, len(req.OrderItems))
	for i, item := range req.OrderItems {
		items[i] = domain.LineRequest{ProductID: item.Product, Quantity: item.Quantity}
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		BuyerID:         middleware.ActorIDFromContext(r.Context()),
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentResult:   req.PaymentResult,
		ClientTotal:     req.TotalPrice,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, orderResponse{Message: "Order created successfully", Order: order})
}

// ListOrders handles GET /orders for the calling buyer.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrdersForUser(r.Context(), middleware.ActorIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if orders == nil {
		orders = []domain.OrderWithReview{}
	}

	httputil.WriteJSON(w, http.StatusOK, ordersResponse{Orders: orders})
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

// UpdateOrderStatus handles PUT /orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, orderResponse{Message: "Order status updated", Order: order})
}

// DeleteOrder handles DELETE /orders/{id}
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Order deleted"})
}
