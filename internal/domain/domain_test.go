package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Order status machine
// ============================================================================

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusShipped, false},
		{OrderStatusDelivered, OrderStatusDelivered, false},
		{"canceled", OrderStatusShipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			o := &Order{Status: tt.from}
			assert.Equal(t, tt.want, o.CanTransitionTo(tt.to))
		})
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("refunded"))
	assert.False(t, IsValidStatus(""))
}

func TestOrder_ContainsProduct(t *testing.T) {
	o := &Order{Items: []OrderItem{{ProductID: "p1"}, {ProductID: "p2"}}}
	assert.True(t, o.ContainsProduct("p2"))
	assert.False(t, o.ContainsProduct("p3"))
}

// ============================================================================
// Line items
// ============================================================================

func TestOrderItem_Subtotal(t *testing.T) {
	assert.Equal(t, int64(5997), OrderItem{Price: 1999, Quantity: 3}.Subtotal())
	assert.Equal(t, int64(99999999000), OrderItem{Price: 99999999, Quantity: 1000}.Subtotal())
}

func TestCalculateTotal(t *testing.T) {
	items := []OrderItem{{Price: 1000, Quantity: 2}, {Price: 250, Quantity: 4}}
	assert.Equal(t, int64(3000), CalculateTotal(items))
	assert.Zero(t, CalculateTotal(nil))
}

func TestValidateLines(t *testing.T) {
	assert.Error(t, ValidateLines(nil))
	assert.Error(t, ValidateLines([]LineRequest{{ProductID: "p", Quantity: 0}}))
	assert.Error(t, ValidateLines([]LineRequest{{Quantity: 1}}))
	assert.NoError(t, ValidateLines([]LineRequest{{ProductID: "p", Quantity: 1}}))
	assert.NoError(t, ValidateLines([]LineRequest{{ProductID: "p", Quantity: MaxLineQuantity}}))
	assert.Error(t, ValidateLines([]LineRequest{{ProductID: "p", Quantity: MaxLineQuantity + 1}}))
	assert.Error(t, ValidateLines([]LineRequest{{ProductID: "p", Quantity: math.MaxInt}}))
}

func TestMergeQuantities(t *testing.T) {
	merged := MergeQuantities([]LineRequest{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 2},
		{ProductID: "a", Quantity: 3},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, LineRequest{ProductID: "a", Quantity: 4}, merged[0])
	assert.Equal(t, LineRequest{ProductID: "b", Quantity: 2}, merged[1])
}

func TestMergeQuantities_SaturatesInsteadOfWrapping(t *testing.T) {
	merged := MergeQuantities([]LineRequest{
		{ProductID: "a", Quantity: math.MaxInt},
		{ProductID: "a", Quantity: math.MaxInt},
		{ProductID: "a", Quantity: 1},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, math.MaxInt, merged[0].Quantity)
}

// ============================================================================
// Ratings
// ============================================================================

func TestValidRating(t *testing.T) {
	assert.False(t, ValidRating(0))
	assert.False(t, ValidRating(6))
	for r := 1; r <= 5; r++ {
		assert.True(t, ValidRating(r))
	}
}

func TestSummarizeRatings(t *testing.T) {
	assert.Equal(t, RatingSummary{}, SummarizeRatings(nil))

	s := SummarizeRatings([]int{5, 3, 4})
	assert.Equal(t, 3, s.TotalReviews)
	assert.InDelta(t, 4.0, s.AverageRating, 1e-9)

	assert.Equal(t, s, SummarizeRatings([]int{5, 3, 4}))
}
