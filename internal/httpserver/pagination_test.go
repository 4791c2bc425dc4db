package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseOffsetParams(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{
			name:       "defaults",
			query:      "",
			wantLimit:  DefaultPageSize,
			wantOffset: 0,
		},
		{
			name:       "custom limit and offset",
			query:      "limit=10&offset=20",
			wantLimit:  10,
			wantOffset: 20,
		},
		{
			name:      "limit capped at max",
			query:     "limit=500",
			wantLimit: MaxPageSize,
		},
		{
			name:    "negative limit",
			query:   "limit=-1",
			wantErr: true,
		},
		{
			name:    "zero limit",
			query:   "limit=0",
			wantErr: true,
		},
		{
			name:    "negative offset",
			query:   "offset=-1",
			wantErr: true,
		},
		{
			name:    "non-numeric limit",
			query:   "limit=abc",
			wantErr: true,
		},
		{
			name:    "non-numeric offset",
			query:   "offset=abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p, err := ParseOffsetParams(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseOffsetParams() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewOffsetPage(t *testing.T) {
	type item struct{ Name string }

	tests := []struct {
		name       string
		itemCount  int
		params     OffsetParams
		totalItems int
	}{
		{
			name:       "first of multiple pages",
			itemCount:  10,
			params:     OffsetParams{Limit: 10, Offset: 0},
			totalItems: 25,
		},
		{
			name:       "single page",
			itemCount:  3,
			params:     OffsetParams{Limit: 10, Offset: 0},
			totalItems: 3,
		},
		{
			name:       "empty",
			itemCount:  0,
			params:     OffsetParams{Limit: 10, Offset: 0},
			totalItems: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]item, tt.itemCount)
			page := NewOffsetPage(items, tt.params, tt.totalItems)

			if len(page.Items) != tt.itemCount {
				t.Errorf("Items length = %d, want %d", len(page.Items), tt.itemCount)
			}
			if page.Limit != tt.params.Limit {
				t.Errorf("Limit = %d, want %d", page.Limit, tt.params.Limit)
			}
			if page.Offset != tt.params.Offset {
				t.Errorf("Offset = %d, want %d", page.Offset, tt.params.Offset)
			}
			if page.TotalItems != tt.totalItems {
				t.Errorf("TotalItems = %d, want %d", page.TotalItems, tt.totalItems)
			}
		})
	}
}
