package http

import (
	"net/http"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/pkg/httputil"
	"github.com/storefront/orderreview/pkg/validator"
)

const maxBodyBytes = 1 << 20

// --- Request DTOs ---

// OrderItemRequest is one requested line of an order.
type OrderItemRequest struct {
	Product  string `json:"product" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=10000"`
}

// CreateOrderRequest is the JSON request body for creating an order.
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest    `json:"orderItems" validate:"required,min=1,dive"`
	ShippingAddress *domain.Address       `json:"shippingAddress"`
	PaymentResult   *domain.PaymentResult `json:"paymentResult"`
	TotalPrice      *int64                `json:"totalPrice" validate:"omitempty,gte=0"`
}

// UpdateStatusRequest is the JSON request body for moving an order along
// fulfillment.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending shipped delivered"`
}

// SubmitReviewRequest is the JSON request body for reviewing a product.
// Rating bounds are enforced by the review ledger so that ownership is
// checked first.
type SubmitReviewRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	OrderID   string `json:"orderId" validate:"required,uuid"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment" validate:"max=2000"`
}

// CreateProductRequest is the JSON request body for adding a product.
type CreateProductRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Price int64  `json:"price" validate:"gte=0"`
	Stock int    `json:"stock" validate:"gte=0"`
}

// --- Response bodies ---

type messageResponse struct {
	Message string `json:"message"`
}

type orderResponse struct {
	Message string        `json:"message,omitempty"`
	Order   *domain.Order `json:"order"`
}

type ordersResponse struct {
	Orders []domain.OrderWithReview `json:"orders"`
}

type reviewResponse struct {
	Message string         `json:"message"`
	Review  *domain.Review `json:"review"`
}

type productResponse struct {
	Message string          `json:"message,omitempty"`
	Product *domain.Product `json:"product"`
}

// decodeBody limits, decodes and validates the request body. On failure it
// writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}

// pathID reads a UUID path parameter. On failure it writes a 400 and
// returns false.
func pathID(w http.ResponseWriter, raw string) (string, bool) {
	id, ok := httputil.ParseUUID(w, raw)
	if !ok {
		return "", false
	}
	return id.String(), true
}
