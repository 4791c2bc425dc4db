package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 25
	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 100
)

// OffsetParams holds the parsed query parameters for offset-based pagination,
// used by /projects/{id}/memories and /admin/invites (§4.10).
type OffsetParams struct {
	Limit  int
	Offset int
}

// ParseOffsetParams extracts limit/offset pagination parameters from the
// request's query string, defaulting and clamping as needed.
func ParseOffsetParams(r *http.Request) (OffsetParams, error) {
	p := OffsetParams{Limit: DefaultPageSize}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		p.Limit = n
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("offset must be a non-negative integer")
		}
		p.Offset = n
	}

	return p, nil
}

// OffsetPage is the response envelope for offset-paginated results.
type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	TotalItems int `json:"total_items"`
}

// NewOffsetPage builds an OffsetPage from a result set and total count.
func NewOffsetPage[T any](items []T, params OffsetParams, totalItems int) OffsetPage[T] {
	return OffsetPage[T]{
		Items:      items,
		Limit:      params.Limit,
		Offset:     params.Offset,
		TotalItems: totalItems,
	}
}
