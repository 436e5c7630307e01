package service

import (
	"context"
	"errors"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/store"
)

// LikeState is the like status of an entity after a toggle.
type LikeState struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
	// AuthorID is the owner of the liked entity.
	AuthorID string `json:"-"`
	// FirstLike is set when this toggle is the user's first-ever like of the
	// entity. Unlike and re-like does not set it again.
	FirstLike bool `json:"-"`
}

type LikeService struct {
	store *store.Store
	cache *cache.Cache
}

func NewLikeService(s *store.Store, c *cache.Cache) *LikeService {
	return &LikeService{store: s, cache: c}
}

// ToggleLike adds userID to the entity's like set, or removes it if it is
// already there.
func (s *LikeService) ToggleLike(ctx context.Context, ref models.EntityRef, userID string) (LikeState, error) {
	return s.toggle(ctx, ref, userID, "")
}

// ToggleLikePost toggles userID's like on a post.
func (s *LikeService) ToggleLikePost(ctx context.Context, postID, userID string) (LikeState, error) {
	return s.toggle(ctx, models.PostRef(postID), userID, "")
}

// ToggleLikeComment toggles userID's like on a comment of postID.
func (s *LikeService) ToggleLikeComment(ctx context.Context, postID, commentID, userID string) (LikeState, error) {
	return s.toggle(ctx, models.CommentRef(commentID), userID, postID)
}

func (s *LikeService) toggle(ctx context.Context, ref models.EntityRef, userID, onPost string) (LikeState, error) {
	if userID == "" {
		return LikeState{}, models.NewUnauthorizedError("User is required")
	}

	var state LikeState
	var postID string
	err := s.store.RunTransaction(ctx, "like.toggle", []models.EntityRef{ref}, func(tx *store.Tx) error {
		target, err := newLikeTarget(ref)
		if err != nil {
			return err
		}
		if err := tx.Get(ref, target.entity); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.NewNotFoundError(target.resource, ref.ID)
			}
			return err
		}
		if onPost != "" && *target.postID != onPost {
			return models.NewNotFoundError(target.resource, ref.ID)
		}

		next, liked := target.likes.Normalize().Toggle(userID)
		*target.likes = next
		state = LikeState{Liked: liked, Count: next.Len(), AuthorID: *target.authorID}
		if rewarded := target.rewarded.Normalize(); liked && !rewarded.Has(userID) {
			*target.rewarded, _ = rewarded.Toggle(userID)
			state.FirstLike = true
		}
		postID = *target.postID
		return tx.Put(target.entity)
	})
	if err != nil {
		return LikeState{}, err
	}

	s.cache.Invalidate(ctx, cache.PostKey(postID))
	return state, nil
}

type likeTarget struct {
	entity   store.Entity
	likes    *models.LikeSet
	rewarded *models.LikeSet
	authorID *string
	postID   *string
	resource string
}

func newLikeTarget(ref models.EntityRef) (likeTarget, error) {
	switch ref.Kind {
	case models.KindPost:
		p := &models.Post{}
		return likeTarget{entity: p, likes: &p.Likes, rewarded: &p.LikeRewarded, authorID: &p.AuthorID, postID: &p.ID, resource: "Post"}, nil
	case models.KindComment:
		c := &models.Comment{}
		return likeTarget{entity: c, likes: &c.Likes, rewarded: &c.LikeRewarded, authorID: &c.AuthorID, postID: &c.PostID, resource: "Comment"}, nil
	default:
		return likeTarget{}, models.NewValidationError("Entity cannot be liked")
	}
}
