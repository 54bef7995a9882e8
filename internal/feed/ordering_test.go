package feed

import (
	"testing"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func item(id string, minute int) domain.FeedItem {
	return domain.FeedItem{
		ID:         id,
		Cursor:     "cur_" + id,
		InsertedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(items []domain.FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(t *testing.T, got []domain.FeedItem, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestSortItems(t *testing.T) {
	tests := []struct {
		name  string
		input []domain.FeedItem
		want  []string
	}{
		{name: "empty", input: nil, want: []string{}},
		{name: "newest first", input: []domain.FeedItem{item("a", 1), item("b", 3), item("c", 2)}, want: []string{"b", "c", "a"}},
		{name: "ties keep input order", input: []domain.FeedItem{item("x", 1), item("y", 1), item("z", 2)}, want: []string{"z", "x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalIDs(t, SortItems(tt.input), tt.want...)
		})
	}
}

func TestSortItemsDoesNotMutateInput(t *testing.T) {
	input := []domain.FeedItem{item("a", 1), item("b", 2)}
	SortItems(input)
	equalIDs(t, input, "a", "b")
}

func TestDedupeItems(t *testing.T) {
	a1 := item("a", 1)
	a2 := item("a", 1)
	a2.Cursor = "second"

	got := DedupeItems([]domain.FeedItem{a1, item("b", 2), a2})
	equalIDs(t, got, "b", "a")
	if got[1].Cursor != "second" {
		t.Errorf("last occurrence should win, got cursor %q", got[1].Cursor)
	}

	if len(DedupeItems(nil)) != 0 {
		t.Error("empty input should give empty output")
	}
}

func TestMergeItemsIncomingWins(t *testing.T) {
	existing := []domain.FeedItem{item("b", 2), item("a", 1)}
	updated := item("a", 1)
	now := baseTime
	updated.ReadAt = &now

	got := mergeItems(existing, []domain.FeedItem{item("c", 3), updated})
	equalIDs(t, got, "c", "b", "a")
	if !got[2].IsRead() {
		t.Error("incoming copy should replace the stored one")
	}
}
