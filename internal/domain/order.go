package domain

import "time"

// Order status constants. Fulfillment moves an order forward only.
const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// Order is a recorded purchase. Items never change after creation.
type Order struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Items           []OrderItem    `json:"orderItems"`
	Status          string         `json:"status"`
	TotalPrice      int64          `json:"totalPrice"`
	ShippingAddress *Address       `json:"shippingAddress,omitempty"`
	PaymentResult   *PaymentResult `json:"paymentResult,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Address is where an order ships to.
type Address struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// PaymentResult is the payment provider's receipt, stored as given.
type PaymentResult struct {
	ID           string `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`
	UpdateTime   string `json:"updateTime,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// OrderWithReview is an order annotated with whether its buyer has reviewed
// anything against it.
type OrderWithReview struct {
	Order
	HasReviewed bool `json:"hasReviewed"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{OrderStatusPending, OrderStatusShipped, OrderStatusDelivered}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedTransitions is the linear fulfillment path.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:   {OrderStatusShipped},
		OrderStatusShipped:   {OrderStatusDelivered},
		OrderStatusDelivered: {},
	}
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	for _, s := range AllowedTransitions()[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsDelivered reports whether the order has reached its buyer.
func (o *Order) IsDelivered() bool {
	return o.Status == OrderStatusDelivered
}

// ContainsProduct reports whether productID is one of the order's line items.
func (o *Order) ContainsProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
