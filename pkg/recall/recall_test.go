package recall

import (
	"testing"
	"time"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, MinLimit},
		{-5, MinLimit},
		{MinLimit, MinLimit},
		{DefaultLimit, DefaultLimit},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
		{1000, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n\r", true},
		{"hello", false},
		{"  hello  ", false},
		{" \t x", false},
	}
	for _, tt := range tests {
		if got := isBlank(tt.query); got != tt.want {
			t.Errorf("isBlank(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestDayStamp(t *testing.T) {
	ts := time.Date(2026, 3, 5, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*60*60))
	got := dayStamp(ts)
	want := "2026-03-06" // converted to UTC before formatting
	if got != want {
		t.Errorf("dayStamp(%v) = %q, want %q", ts, got, want)
	}
}
