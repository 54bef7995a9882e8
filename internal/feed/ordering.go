package feed

import (
	"slices"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// SortItems returns the items ordered newest first by insertion time. Ties
// keep their input order.
func SortItems(items []domain.FeedItem) []domain.FeedItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b domain.FeedItem) int {
		return b.InsertedAt.Compare(a.InsertedAt)
	})
	return out
}

// DedupeItems keeps one entry per id. The last occurrence wins and takes the
// position it had in the input.
func DedupeItems(items []domain.FeedItem) []domain.FeedItem {
	last := make(map[string]int, len(items))
	for i, item := range items {
		last[item.ID] = i
	}

	out := make([]domain.FeedItem, 0, len(last))
	for i, item := range items {
		if last[item.ID] == i {
			out = append(out, item)
		}
	}
	return out
}

// mergeItems appends incoming after existing so incoming wins on conflicts,
// then dedupes and sorts
func mergeItems(existing, incoming []domain.FeedItem) []domain.FeedItem {
	combined := make([]domain.FeedItem, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)
	return SortItems(DedupeItems(combined))
}
