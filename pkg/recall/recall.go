// Package recall implements FTS-with-recency-fallback ranking over project
// memories (§4.5).
package recall

import (
	"time"

	"github.com/thecontextcache/contextcache-sub001/pkg/memory"
)

const (
	// MinLimit and MaxLimit bound the requested result count; the recall
	// handler rejects a limit below MinLimit as a ValidationError and clamps
	// one above MaxLimit down to it.
	MinLimit = 1
	MaxLimit = 50

	// DefaultLimit is used when the caller omits the limit parameter.
	DefaultLimit = 10
)

// Item is a single ranked recall result. RankScore is nil for rows reached
// via the recency top-up rather than full-text ranking (§4.5 step 1, 4).
type Item struct {
	Memory    memory.Row
	RankScore *float64
}

// Result is the outcome of a recall query: the ranked items plus whether
// the Store's full-text search path was actually invoked, a flag that a spy
// on the Store can check for the empty-query boundary case (§8 "no FTS
// invocation observed by a spy on the Store").
type Result struct {
	Items   []Item
	UsedFTS bool
}

// ClampLimit coerces a requested limit into [MinLimit, MaxLimit]. The caller
// is expected to have already rejected limits <= 0 as ValidationError; this
// caps values above MaxLimit and raises values below MinLimit, mirroring
// httpserver's ParseOffsetParams split between "reject" and "clamp".
func ClampLimit(n int) int {
	if n > MaxLimit {
		return MaxLimit
	}
	if n < MinLimit {
		return MinLimit
	}
	return n
}

// isBlank reports whether query is empty or only whitespace, the condition
// that routes a recall to the recency-only path (§4.5 step 1).
func isBlank(query string) bool {
	for _, r := range query {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// dayStamp renders t as its UTC "YYYY-MM-DD" day.
func dayStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
