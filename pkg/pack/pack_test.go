package pack

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/pkg/memory"
	"github.com/thecontextcache/contextcache-sub001/pkg/recall"
)

func item(typ memory.Type, title, content string, createdAt time.Time) recall.Item {
	return recall.Item{
		Memory: memory.Row{
			ID:        uuid.New(),
			Type:      string(typ),
			Title:     title,
			Content:   content,
			CreatedAt: createdAt,
		},
	}
}

func TestRender_TextGroupsByTypeInCanonicalOrder(t *testing.T) {
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	items := []recall.Item{
		item(memory.TypeNote, "", "Coffee break.", day),
		item(memory.TypeDecision, "", "We use Postgres, not MySQL.", day),
	}

	got := Render(items, FormatText, DefaultByteBudget)

	if !strings.HasPrefix(got.Text, "## Decisions\n") {
		t.Fatalf("expected text to begin with Decisions group, got:\n%s", got.Text)
	}
	if strings.Index(got.Text, "## Decisions") > strings.Index(got.Text, "## Notes") {
		t.Errorf("decisions group should precede notes group (canonical type order)")
	}
	if got.Truncated {
		t.Error("Truncated = true for a pack well under budget")
	}
}

func TestRender_TOONFormat(t *testing.T) {
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	items := []recall.Item{item(memory.TypeNote, "", "line one; line two\nline three", day)}

	got := Render(items, FormatTOON, DefaultByteBudget)

	want := "T=note;D=2026-01-15;C=line one\\; line two\\nline three"
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestRender_Deterministic(t *testing.T) {
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	items := []recall.Item{
		item(memory.TypeDecision, "", "A", day),
		item(memory.TypeFinding, "", "B", day),
	}

	a := Render(items, FormatText, DefaultByteBudget)
	b := Render(items, FormatText, DefaultByteBudget)
	if a.Text != b.Text {
		t.Error("Render produced different output for identical input across two calls")
	}
}

func TestRender_TruncatesToFitByteBudget(t *testing.T) {
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	var items []recall.Item
	for i := 0; i < 20; i++ {
		items = append(items, item(memory.TypeNote, "", strings.Repeat("x", 50), day))
	}

	got := Render(items, FormatTOON, 200)

	if !got.Truncated {
		t.Fatal("expected Truncated = true when items exceed the byte budget")
	}
	if len(got.Text) > 200 {
		t.Errorf("rendered text length %d exceeds byte budget 200", len(got.Text))
	}
}

func TestRender_EmptyItems(t *testing.T) {
	got := Render(nil, FormatText, DefaultByteBudget)
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
	if got.Truncated {
		t.Error("Truncated = true for an empty item list")
	}
}
