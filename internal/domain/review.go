package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a user's rating of a product, justified by a delivered order.
// There is at most one per (ProductID, UserID).
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidRating reports whether r is within MinRating..MaxRating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
