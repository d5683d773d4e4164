package domain

import "time"

// Product is a catalog entry. AverageRating and TotalReviews are derived
// from the product's reviews and are only written by the rating aggregator.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	Stock         int       `json:"stock"`
	AverageRating float64   `json:"averageRating"`
	TotalReviews  int       `json:"totalReviews"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RatingSummary is the derived rating state of a product.
type RatingSummary struct {
	AverageRating float64
	TotalReviews  int
}

// SummarizeRatings computes the mean and count of ratings. No ratings
// yields a zero summary.
func SummarizeRatings(ratings []int) RatingSummary {
	if len(ratings) == 0 {
		return RatingSummary{}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return RatingSummary{
		AverageRating: float64(sum) / float64(len(ratings)),
		TotalReviews:  len(ratings),
	}
}
