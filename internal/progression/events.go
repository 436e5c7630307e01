package progression

import (
	"context"
	"time"
)

// Source says why XP was awarded.
type Source string

const (
	SourcePostCreated    Source = "post_created"
	SourceCommentCreated Source = "comment_created"
	SourceLikeReceived   Source = "like_received"
	SourceManual         Source = "manual"
)

// ParseSource validates a source name from an API request.
func ParseSource(s string) (Source, bool) {
	switch src := Source(s); src {
	case SourcePostCreated, SourceCommentCreated, SourceLikeReceived, SourceManual:
		return src, true
	}
	return "", false
}

// EventType names a published progression event.
type EventType string

const (
	EventXPAwarded EventType = "xp.awarded"
	EventLevelUp   EventType = "level.up"
)

// Event is published after an award commits.
type Event struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	Source        Source    `json:"source"`
	Amount        int64     `json:"amount"`
	XP            int64     `json:"xp"`
	Level         int       `json:"level"`
	PreviousLevel int       `json:"previous_level"`
	At            time.Time `json:"at"`
}

// Publisher delivers progression events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Rewards is the XP granted per automatic source.
type Rewards struct {
	Post    int64
	Comment int64
	Like    int64
}

// For returns the reward configured for source. Manual awards have none.
func (r Rewards) For(source Source) int64 {
	switch source {
	case SourcePostCreated:
		return r.Post
	case SourceCommentCreated:
		return r.Comment
	case SourceLikeReceived:
		return r.Like
	}
	return 0
}
