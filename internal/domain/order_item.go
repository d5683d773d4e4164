package domain

import (
	"errors"
	"fmt"
	"math"
)

// MaxLineQuantity bounds the quantity of a single order line.
const MaxLineQuantity = 10000

// OrderItem is one line of an order. Name and Price are snapshots of the
// product at checkout, Price in minor units.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	ProductID string `json:"product"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal is Price × Quantity.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// LineRequest is a requested product and quantity before pricing.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// ValidateLines rejects an empty order or a quantity outside
// 1..MaxLineQuantity.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return errors.New("order must contain at least one item")
	}
	for i, l := range lines {
		if l.ProductID == "" {
			return fmt.Errorf("item %d: product is required", i)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("item %d: quantity must be at least 1", i)
		}
		if l.Quantity > MaxLineQuantity {
			return fmt.Errorf("item %d: quantity must be at most %d", i, MaxLineQuantity)
		}
	}
	return nil
}

// MergeQuantities sums quantities per product, preserving first-seen order.
// Two lines for the same product are checked against stock as one. Sums
// saturate at math.MaxInt, so they never wrap below any stock level.
func MergeQuantities(lines []LineRequest) []LineRequest {
	idx := make(map[string]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			merged[i].Quantity = addQuantity(merged[i].Quantity, l.Quantity)
			continue
		}
		idx[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

func addQuantity(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// CalculateTotal sums the subtotals of items.
func CalculateTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}
