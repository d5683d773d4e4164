// Package pagination reads page/per_page query parameters and shapes
// paginated list responses.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a resolved page window.
type Params struct {
	Page    int
	PerPage int
}

// Offset is the number of rows to skip.
func (p Params) Offset() int { return (p.Page - 1) * p.PerPage }

// FromRequest parses page and per_page, clamping invalid values to defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return Params{
		Page:    positiveInt(q.Get("page"), 1, 0),
		PerPage: positiveInt(q.Get("per_page"), DefaultPerPage, MaxPerPage),
	}
}

func positiveInt(raw string, def, max int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || (max > 0 && v > max) {
		return def
	}
	return v
}

// Result is a page of T plus totals.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"totalCount"`
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// NewResult builds a Result. A nil slice is rendered as [].
func NewResult[T any](data []T, totalCount int, p Params) Result[T] {
	totalPages := (totalCount + p.PerPage - 1) / p.PerPage
	if data == nil {
		data = []T{}
	}
	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
	}
}
