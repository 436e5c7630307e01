package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/store"
	"agora/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	alice = models.Author{ID: "alice", Name: "Alice"}
	bob   = models.Author{ID: "bob", Name: "Bob"}
)

type fixture struct {
	db       *gorm.DB
	store    *store.Store
	posts    repository.PostRepository
	comments repository.CommentRepository
	content  *ContentService
	likes    *LikeService
	repair   *RepairService
}

func newFixture(t *testing.T, c *cache.Cache) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewTestDB(t), c)
}

func newFixtureOn(t *testing.T, db *gorm.DB, c *cache.Cache) *fixture {
	t.Helper()
	s := store.New(db, store.Options{MaxAttempts: 20, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{
		db:       db,
		store:    s,
		posts:    posts,
		comments: comments,
		content:  NewContentService(s, posts, comments, c, ContentOptions{Now: now}),
		likes:    NewLikeService(s, c),
		repair:   NewRepairService(s, posts, comments, 2),
	}
}

func (f *fixture) post(t *testing.T, author models.Author) *models.Post {
	t.Helper()
	p, err := f.content.CreatePost(context.Background(), CreatePostInput{Author: author, Content: "hello world"})
	require.NoError(t, err)
	return p
}

func (f *fixture) comment(t *testing.T, postID string, parent *string) *models.Comment {
	t.Helper()
	c, err := f.content.CreateComment(context.Background(), CreateCommentInput{
		Author: bob, PostID: postID, ParentID: parent, Content: "nice",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) storedCount(t *testing.T, postID string) int {
	t.Helper()
	var p models.Post
	require.NoError(t, f.db.First(&p, "id = ?", postID).Error)
	return p.CommentCount
}

func TestCreatePost_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	long := make([]byte, maxContentLen+1)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name string
		in   CreatePostInput
		code string
	}{
		{"blank content", CreatePostInput{Author: alice, Content: "   "}, models.CodeValidation},
		{"too long", CreatePostInput{Author: alice, Content: string(long)}, models.CodeValidation},
		{"empty image ref", CreatePostInput{Author: alice, Content: "x", ImageRefs: []string{" "}}, models.CodeValidation},
		{"no author", CreatePostInput{Content: "x"}, models.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.content.CreatePost(ctx, tt.in)
			assert.True(t, models.IsCode(err, tt.code), "got %v", err)
		})
	}

	p, err := f.content.CreatePost(ctx, CreatePostInput{Author: alice, Content: "  trimmed  ", ImageRefs: []string{"https://cdn/x.png"}})
	require.NoError(t, err)
	assert.Equal(t, "trimmed", p.Content)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, "Alice", p.AuthorName)
}

func TestCommentCountScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.post(t, alice)
	root := f.comment(t, p.ID, nil)
	f.comment(t, p.ID, nil)
	rootID := root.ID
	reply := f.comment(t, p.ID, &rootID)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	assert.Equal(t, 3, f.storedCount(t, p.ID))

	require.NoError(t, f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: reply.ID}))
	assert.Equal(t, 2, f.storedCount(t, p.ID))

	report, err := f.repair.Run(ctx, RepairScope{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Corrected)
	assert.Zero(t, report.Failed)
}

func TestCreateComment_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.post(t, alice)
	other := f.post(t, alice)
	root := f.comment(t, p.ID, nil)
	rootID := root.ID
	reply := f.comment(t, p.ID, &rootID)
	replyID := reply.ID
	missing := "missing"

	tests := []struct {
		name string
		in   CreateCommentInput
		code string
	}{
		{"reply to reply", CreateCommentInput{Author: bob, PostID: p.ID, ParentID: &replyID, Content: "x"}, models.CodeValidation},
		{"parent on another post", CreateCommentInput{Author: bob, PostID: other.ID, ParentID: &rootID, Content: "x"}, models.CodeValidation},
		{"missing parent", CreateCommentInput{Author: bob, PostID: p.ID, ParentID: &missing, Content: "x"}, models.CodeNotFound},
		{"missing post", CreateCommentInput{Author: bob, PostID: "nope", Content: "x"}, models.CodeNotFound},
		{"empty content", CreateCommentInput{Author: bob, PostID: p.ID, Content: "\n"}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.content.CreateComment(ctx, tt.in)
			assert.True(t, models.IsCode(err, tt.code), "got %v", err)
		})
	}

	// None of the rejected writes touched the counters.
	assert.Equal(t, 2, f.storedCount(t, p.ID))
	assert.Equal(t, 0, f.storedCount(t, other.ID))
}

func TestDeleteComment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.post(t, alice)
	other := f.post(t, alice)
	c := f.comment(t, p.ID, nil)

	err := f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: alice.ID, PostID: p.ID, CommentID: c.ID})
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	err = f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: other.ID, CommentID: c.ID})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	err = f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: "gone"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	// With the post already deleted only the comment goes.
	require.NoError(t, f.content.DeletePost(ctx, DeletePostInput{CallerID: alice.ID, PostID: p.ID}))
	require.NoError(t, f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: c.ID}))
	n, err := f.comments.CountByPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteComment_ClampsAtZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.post(t, alice)
	c := f.comment(t, p.ID, nil)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", p.ID).Update("comment_count", 0).Error)

	require.NoError(t, f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: c.ID}))
	assert.Equal(t, 0, f.storedCount(t, p.ID))
}

func TestDeletedRootLeavesOrphans(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.post(t, alice)
	root := f.comment(t, p.ID, nil)
	rootID := root.ID
	f.comment(t, p.ID, &rootID)

	require.NoError(t, f.content.DeleteComment(ctx, DeleteCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: root.ID}))
	assert.Equal(t, 1, f.storedCount(t, p.ID))

	page, err := f.content.GetPostComments(ctx, p.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Threads)
	require.Len(t, page.Orphans, 1)
}

func TestUpdateAndDeletePost_Authorization(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)

	_, err := f.content.UpdatePost(ctx, UpdatePostInput{CallerID: bob.ID, PostID: p.ID, Content: "mine now"})
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	updated, err := f.content.UpdatePost(ctx, UpdatePostInput{CallerID: alice.ID, PostID: p.ID, Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.content.UpdatePost(ctx, UpdatePostInput{CallerID: alice.ID, PostID: "nope", Content: "x"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	err = f.content.DeletePost(ctx, DeletePostInput{CallerID: bob.ID, PostID: p.ID})
	assert.True(t, models.IsCode(err, models.CodeForbidden))
	require.NoError(t, f.content.DeletePost(ctx, DeletePostInput{CallerID: alice.ID, PostID: p.ID}))

	_, err = f.content.GetPost(ctx, p.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUpdateComment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)
	c := f.comment(t, p.ID, nil)

	_, err := f.content.UpdateComment(ctx, UpdateCommentInput{CallerID: alice.ID, PostID: p.ID, CommentID: c.ID, Content: "x"})
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	_, err = f.content.UpdateComment(ctx, UpdateCommentInput{CallerID: bob.ID, PostID: "other", CommentID: c.ID, Content: "x"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	got, err := f.content.UpdateComment(ctx, UpdateCommentInput{CallerID: bob.ID, PostID: p.ID, CommentID: c.ID, Content: "better"})
	require.NoError(t, err)
	assert.Equal(t, "better", got.Content)
}

func TestToggleLike_Involution(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)

	state, err := f.likes.ToggleLikePost(ctx, p.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, Count: 1, AuthorID: alice.ID, FirstLike: true}, state)

	state, err = f.likes.ToggleLikePost(ctx, p.ID, "carol")
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Zero(t, state.Count)
	assert.False(t, state.FirstLike)

	got, err := f.content.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes)

	_, err = f.likes.ToggleLikePost(ctx, "missing", "carol")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	_, err = f.likes.ToggleLike(ctx, models.ProgressionRef("carol"), "carol")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestToggleLike_ReLikeIsNotFirstLike(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)

	var firsts []bool
	for range 4 {
		state, err := f.likes.ToggleLikePost(ctx, p.ID, "carol")
		require.NoError(t, err)
		firsts = append(firsts, state.FirstLike)
	}
	assert.Equal(t, []bool{true, false, false, false}, firsts)

	state, err := f.likes.ToggleLikePost(ctx, p.ID, "dave")
	require.NoError(t, err)
	assert.True(t, state.FirstLike)
	assert.Equal(t, 1, state.Count)
}

func TestToggleLike_ConcurrentUsers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := f.likes.ToggleLikePost(ctx, p.ID, u)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	got, err := f.content.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeSet(users), got.Likes)
}

func TestToggleLikeComment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.post(t, alice)
	other := f.post(t, alice)
	c := f.comment(t, p.ID, nil)

	state, err := f.likes.ToggleLikeComment(ctx, p.ID, c.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, bob.ID, state.AuthorID)

	_, err = f.likes.ToggleLikeComment(ctx, other.ID, c.ID, alice.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestRepair_CorrectsDrift(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		p := f.post(t, alice)
		for j := 0; j < i; j++ {
			f.comment(t, p.ID, nil)
		}
		ids = append(ids, p.ID)
	}
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", ids[1]).Update("comment_count", 9).Error)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", ids[4]).Update("comment_count", 0).Error)

	dry, err := f.repair.Run(ctx, RepairScope{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Corrected)
	assert.Equal(t, 9, f.storedCount(t, ids[1]))

	report, err := f.repair.Run(ctx, RepairScope{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.Corrected)
	for i, id := range ids {
		assert.Equal(t, i, f.storedCount(t, id))
	}

	again, err := f.repair.Run(ctx, RepairScope{})
	require.NoError(t, err)
	assert.Zero(t, again.Corrected)

	scoped, err := f.repair.Run(ctx, RepairScope{PostIDs: []string{ids[2], "deleted"}})
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.Scanned)
	assert.Zero(t, scoped.Failed)
}

type failingCounter struct {
	repository.CommentRepository
	failFor string
}

func (f failingCounter) CountByPost(ctx context.Context, postID string) (int64, error) {
	if postID == f.failFor {
		return 0, fmt.Errorf("count %s: %w", postID, assert.AnError)
	}
	return f.CommentRepository.CountByPost(ctx, postID)
}

func TestRepair_ContinuesPastFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.post(t, alice)
	b := f.post(t, alice)
	f.comment(t, b.ID, nil)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id <> ?", "").Update("comment_count", 4).Error)

	repair := NewRepairService(f.store, f.posts, failingCounter{CommentRepository: f.comments, failFor: a.ID}, 1)
	report, err := repair.Run(ctx, RepairScope{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Corrected)
	assert.Equal(t, 1, f.storedCount(t, b.ID))
}

func TestListPosts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.post(t, alice)
	second := f.post(t, alice)
	third := f.post(t, alice)
	_, err := f.likes.ToggleLikePost(ctx, first.ID, "u1")
	require.NoError(t, err)
	_, err = f.likes.ToggleLikePost(ctx, first.ID, "u2")
	require.NoError(t, err)
	f.comment(t, second.ID, nil)
	f.comment(t, second.ID, nil)
	f.comment(t, second.ID, nil)

	page, err := f.content.ListPosts(ctx, ListPostsInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, third.ID, page.Items[0].ID)
	assert.Equal(t, "2", page.NextCursor)

	page, err = f.content.ListPosts(ctx, ListPostsInput{View: "top_rated"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, page.Items[0].ID)

	page, err = f.content.ListPosts(ctx, ListPostsInput{View: "most_engaged"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, page.Items[0].ID)

	_, err = f.content.ListPosts(ctx, ListPostsInput{View: "bogus"})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestGetPost_CacheInvalidatedOnWrite(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	f := newFixture(t, cache.New(rdb))
	ctx := context.Background()
	p := f.post(t, alice)

	_, err = f.content.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.PostKey(p.ID)))

	f.comment(t, p.ID, nil)
	assert.False(t, mr.Exists(cache.PostKey(p.ID)))

	got, err := f.content.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentCount)
}
