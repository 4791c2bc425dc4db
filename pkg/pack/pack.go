// Package pack assembles a ranked recall result into a paste-ready memory
// pack, in two formats (§4.6).
package pack

import (
	"fmt"
	"strings"

	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
	"github.com/thecontextcache/contextcache-sub001/pkg/memory"
	"github.com/thecontextcache/contextcache-sub001/pkg/recall"
)

// Format selects the pack's output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatTOON Format = "toon"
)

// DefaultByteBudget is the default total-bytes cap before items are dropped
// from the end of the pack.
const DefaultByteBudget = 32 * 1024

// typeTitles gives the §4.6 "## <TypeTitle>s" header for each memory type,
// in canonical group order.
var typeTitles = map[memory.Type]string{
	memory.TypeDecision:   "Decision",
	memory.TypeFinding:    "Finding",
	memory.TypeDefinition: "Definition",
	memory.TypeNote:       "Note",
	memory.TypeLink:       "Link",
	memory.TypeTodo:       "Todo",
	memory.TypeChat:       "Chat",
	memory.TypeDoc:        "Doc",
	memory.TypeCode:       "Code",
}

// Assembled is the rendered pack plus whether items were dropped to stay
// under the byte budget.
type Assembled struct {
	Text      string
	Truncated bool
}

// Render builds the pack text for items in the given format, dropping
// trailing items if needed to stay within byteBudget. items must already be
// in ranked order; Render never reorders them except to group by type for
// FormatText.
func Render(items []recall.Item, format Format, byteBudget int) Assembled {
	if byteBudget <= 0 {
		byteBudget = DefaultByteBudget
	}

	n := len(items)
	for {
		var text string
		switch format {
		case FormatTOON:
			text = renderTOON(items[:n])
		default:
			text = renderText(items[:n])
		}
		if len(text) <= byteBudget || n == 0 {
			truncated := n < len(items)
			if truncated {
				telemetry.PackTruncatedTotal.WithLabelValues(string(format)).Inc()
			}
			return Assembled{Text: text, Truncated: truncated}
		}
		n--
	}
}

// renderText implements the grouped, human-readable format (§4.6 "text").
// Deterministic: it walks the canonical type order, then the already-ranked
// item order within each group — never a map, so output is byte-identical
// for identical inputs.
func renderText(items []recall.Item) string {
	var b strings.Builder
	first := true
	for _, t := range memory.Types {
		title, ok := typeTitles[t]
		if !ok {
			continue
		}
		var group []recall.Item
		for _, it := range items {
			if memory.Type(it.Memory.Type) == t {
				group = append(group, it)
			}
		}
		if len(group) == 0 {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		first = false

		fmt.Fprintf(&b, "## %ss\n", title)
		for _, it := range group {
			b.WriteString(bulletLine(it.Memory))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func bulletLine(m memory.Row) string {
	label := m.Title
	if label == "" {
		label = firstNChars(m.Content, 80)
	}
	return fmt.Sprintf("- [%s] %s: %s", m.CreatedAt.UTC().Format("2006-01-02"), label, m.Content)
}

func firstNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// renderTOON implements the compact key=value format (§4.6 "toon").
func renderTOON(items []recall.Item) string {
	var b strings.Builder
	for _, it := range items {
		m := it.Memory
		fmt.Fprintf(&b, "T=%s;D=%s;C=%s\n", m.Type, m.CreatedAt.UTC().Format("2006-01-02"), escapeTOON(m.Content))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// escapeTOON escapes ';' and newlines so the single-line key=value encoding
// stays unambiguous (§4.6).
func escapeTOON(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
