package clientsync

import (
	"context"

	"agora/internal/models"
)

// LikeStatus is what the client shows for one likeable entity.
type LikeStatus struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}

// LikeClient is the server API the toggler talks to.
type LikeClient interface {
	ToggleLike(ctx context.Context, ref models.EntityRef) (LikeStatus, error)
	LikeStatus(ctx context.Context, ref models.EntityRef) (LikeStatus, error)
}

// LikeToggler flips like buttons optimistically. Toggles on the same entity
// are serialized so two quick taps always end where the user expects.
type LikeToggler struct {
	client LikeClient
	serial *Serializer
}

func NewLikeToggler(client LikeClient) *LikeToggler {
	return &LikeToggler{client: client, serial: NewSerializer()}
}

// Cell returns a cell for ref that refetches through the client.
func (t *LikeToggler) Cell(ref models.EntityRef, initial LikeStatus) *Cell[LikeStatus] {
	return NewCell(initial, func(ctx context.Context) (LikeStatus, error) {
		return t.client.LikeStatus(ctx, ref)
	})
}

// Toggle flips cell's value and commits the toggle for ref.
func (t *LikeToggler) Toggle(ctx context.Context, ref models.EntityRef, cell *Cell[LikeStatus]) error {
	return t.serial.Do(ctx, ref.String(), func(ctx context.Context) error {
		_, err := cell.Apply(ctx, flip, func(ctx context.Context) (LikeStatus, error) {
			return t.client.ToggleLike(ctx, ref)
		})
		return err
	})
}

func flip(s LikeStatus) LikeStatus {
	if s.Liked {
		return LikeStatus{Liked: false, Count: max(s.Count-1, 0)}
	}
	return LikeStatus{Liked: true, Count: s.Count + 1}
}
