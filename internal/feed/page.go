package feed

import (
	"strconv"

	"agora/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one slice of a ranked listing. NextCursor is empty on the last
// page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Paginate returns the page of items starting at cursor. The cursor is an
// opaque offset produced by a previous call; the empty cursor is the start.
func Paginate[T any](items []T, cursor string, limit int) (Page[T], error) {
	offset, err := decodeCursor(cursor)
	if err != nil {
		return Page[T]{}, err
	}
	limit = clampLimit(limit)

	if offset >= len(items) {
		return Page[T]{Items: []T{}}, nil
	}
	end := min(offset+limit, len(items))

	page := Page[T]{Items: items[offset:end]}
	if end < len(items) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, models.NewValidationError("Invalid cursor")
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}

// CommentThread is a root comment with its replies, oldest reply last.
type CommentThread struct {
	Comment *models.Comment   `json:"comment"`
	Replies []*models.Comment `json:"replies"`
}

// CommentPage is the response shape for a post's comments.
type CommentPage struct {
	Threads    []CommentThread   `json:"threads"`
	Orphans    []*models.Comment `json:"orphans"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// PageComments sorts comments, keeps the most recent fetchCap of them,
// threads them and returns one page of threads. A kept reply whose root
// still exists but fell outside the window is left out; only replies whose
// root is gone are orphans. Orphans are only included on the first page.
func PageComments(comments []*models.Comment, fetchCap int, cursor string, limit int) (CommentPage, error) {
	live := make(map[string]struct{})
	for _, c := range comments {
		if c.ParentID == nil {
			live[c.ID] = struct{}{}
		}
	}

	sorted := SortComments(comments)
	if fetchCap > 0 && len(sorted) > fetchCap {
		sorted = sorted[:fetchCap]
	}
	thread := BuildThread(sorted)

	threads := make([]CommentThread, 0, len(thread.Roots()))
	for _, root := range thread.Roots() {
		replies := thread.RepliesOf(root.ID())
		ct := CommentThread{Comment: root.Comment(), Replies: make([]*models.Comment, 0, len(replies))}
		// Replies read top to bottom in the order they were written.
		for i := len(replies) - 1; i >= 0; i-- {
			ct.Replies = append(ct.Replies, replies[i].Comment())
		}
		threads = append(threads, ct)
	}

	page, err := Paginate(threads, cursor, limit)
	if err != nil {
		return CommentPage{}, err
	}

	out := CommentPage{Threads: page.Items, Orphans: []*models.Comment{}, NextCursor: page.NextCursor}
	if cursor == "" || cursor == "0" {
		for _, c := range thread.Orphans() {
			if _, ok := live[*c.ParentID]; !ok {
				out.Orphans = append(out.Orphans, c)
			}
		}
	}
	return out, nil
}
