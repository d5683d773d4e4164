package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query   string
		page    int
		perPage int
		offset  int
	}{
		{"", 1, DefaultPerPage, 0},
		{"?page=3&per_page=10", 3, 10, 20},
		{"?page=0&per_page=-5", 1, DefaultPerPage, 0},
		{"?page=abc&per_page=500", 1, DefaultPerPage, 0},
		{"?per_page=100", 1, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := FromRequest(httptest.NewRequest(http.MethodGet, "/products/x/reviews"+tt.query, nil))
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
			assert.Equal(t, tt.offset, p.Offset())
		})
	}
}

func TestNewResult(t *testing.T) {
	r := NewResult([]int{1, 2}, 5, Params{Page: 2, PerPage: 2})
	assert.Equal(t, 3, r.TotalPages)
	assert.True(t, r.HasNext)

	last := NewResult([]int{5}, 5, Params{Page: 3, PerPage: 2})
	assert.False(t, last.HasNext)

	exact := NewResult([]int{3, 4}, 4, Params{Page: 2, PerPage: 2})
	assert.Equal(t, 2, exact.TotalPages)
	assert.False(t, exact.HasNext)
}

func TestNewResult_NilDataRendersEmptyArray(t *testing.T) {
	r := NewResult[string](nil, 0, Params{Page: 1, PerPage: 20})

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":[]`)
	assert.Equal(t, 0, r.TotalPages)
}
