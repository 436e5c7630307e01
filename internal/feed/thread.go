package feed

import (
	"slices"
	"strings"

	"agora/internal/models"
)

// SortComments returns comments newest first, ties broken by id.
func SortComments(comments []*models.Comment) []*models.Comment {
	out := slices.Clone(comments)
	slices.SortStableFunc(out, func(a, b *models.Comment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Thread is a one-level comment tree.
type Thread struct {
	roots   []models.Root
	replies map[string][]models.Reply
	orphans []*models.Comment
}

// BuildThread partitions comments into roots and replies, keeping the input
// order within each group. A reply whose parent is not among the roots is
// reported by Orphans.
func BuildThread(comments []*models.Comment) Thread {
	t := Thread{replies: make(map[string][]models.Reply)}
	rootIDs := make(map[string]struct{})

	var pending []models.Reply
	for _, c := range comments {
		switch v := c.Variant().(type) {
		case models.Root:
			t.roots = append(t.roots, v)
			rootIDs[c.ID] = struct{}{}
		case models.Reply:
			pending = append(pending, v)
		}
	}

	for _, r := range pending {
		parent := r.Parent.String()
		if _, ok := rootIDs[parent]; !ok {
			t.orphans = append(t.orphans, r.Comment())
			continue
		}
		t.replies[parent] = append(t.replies[parent], r)
	}
	return t
}

// Roots returns the top-level comments.
func (t Thread) Roots() []models.Root { return t.roots }

// RepliesOf returns the replies attached to root.
func (t Thread) RepliesOf(root models.RootID) []models.Reply {
	return t.replies[root.String()]
}

// Orphans returns replies whose parent is missing.
func (t Thread) Orphans() []*models.Comment { return t.orphans }
