// Package feed orders, threads and pages content for read paths. Everything
// here works on in-memory slices; no function touches storage.
package feed

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"agora/internal/models"
)

// View names a ranking order.
type View string

const (
	ViewLatest         View = "latest"
	ViewTopRated       View = "top_rated"
	ViewMostDownloaded View = "most_downloaded"
	ViewMostEngaged    View = "most_engaged"
)

// ParseView maps a query value to a View. The empty string means latest.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewLatest, nil
	case ViewLatest, ViewTopRated, ViewMostDownloaded, ViewMostEngaged:
		return v, nil
	default:
		return "", models.NewValidationError("Unknown view: " + s)
	}
}

// Keys are the sort keys an item exposes to Rank.
type Keys struct {
	ID        string
	CreatedAt time.Time
	Rating    float64
	Count     int64
}

// PostKeys ranks posts by like count, with likes plus comments as the
// engagement count.
func PostKeys(p *models.Post) Keys {
	likes := int64(p.Likes.Len())
	return Keys{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		Rating:    float64(likes),
		Count:     likes + int64(p.CommentCount),
	}
}

// Rank returns a sorted copy of items. Every view breaks remaining ties by
// ascending id so the order is total.
func Rank[T any](items []T, view View, keys func(T) Keys) []T {
	type keyed struct {
		item T
		keys Keys
	}
	tmp := make([]keyed, len(items))
	for i, it := range items {
		tmp[i] = keyed{item: it, keys: keys(it)}
	}

	compare := compareFor(view)
	slices.SortStableFunc(tmp, func(a, b keyed) int {
		return compare(a.keys, b.keys)
	})

	ranked := make([]T, len(tmp))
	for i := range tmp {
		ranked[i] = tmp[i].item
	}
	return ranked
}

func compareFor(view View) func(a, b Keys) int {
	switch view {
	case ViewTopRated:
		return func(a, b Keys) int {
			return cmp.Or(
				cmp.Compare(b.Rating, a.Rating),
				strings.Compare(a.ID, b.ID),
			)
		}
	case ViewMostDownloaded, ViewMostEngaged:
		return func(a, b Keys) int {
			return cmp.Or(
				cmp.Compare(b.Count, a.Count),
				cmp.Compare(b.Rating, a.Rating),
				strings.Compare(a.ID, b.ID),
			)
		}
	default:
		return func(a, b Keys) int {
			return cmp.Or(
				b.CreatedAt.Compare(a.CreatedAt),
				strings.Compare(a.ID, b.ID),
			)
		}
	}
}
