package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReclaim_API_ParsePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		expected PaginationParams
	}{
		{name: "defaults", query: "", expected: PaginationParams{Limit: 25, Offset: 0}},
		{name: "explicit", query: "?limit=10&offset=5", expected: PaginationParams{Limit: 10, Offset: 5}},
		{name: "capped", query: "?limit=5000", expected: PaginationParams{Limit: MaxLimit}},
		{name: "invalid ignored", query: "?limit=-1&offset=abc", expected: PaginationParams{Limit: 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/x"+tt.query, nil)
			require.Equal(t, tt.expected, ParsePagination(r, 25))
		})
	}

	r := httptest.NewRequest("GET", "/x", nil)
	require.Equal(t, DefaultLimit, ParsePagination(r, 0).Limit)
}

func TestReclaim_API_Paginate(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5}

	page := Paginate(items, PaginationParams{Limit: 2, Offset: 1})
	require.Equal(t, []int{2, 3}, page.Items)
	require.Equal(t, 5, page.Total)

	page = Paginate(items, PaginationParams{Limit: 10, Offset: 4})
	require.Equal(t, []int{5}, page.Items)

	page = Paginate(items, PaginationParams{Limit: 10, Offset: 9})
	require.NotNil(t, page.Items)
	require.Empty(t, page.Items)

	page = Paginate([]int(nil), PaginationParams{Limit: 10})
	require.NotNil(t, page.Items)
	require.Zero(t, page.Total)
}
