package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agora/internal/models"
	"agora/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, attempts int) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	return New(db, Options{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}), db
}

func seedPost(t *testing.T, db *gorm.DB, id string) *models.Post {
	t.Helper()
	p := &models.Post{ID: id, AuthorID: "author", Content: "hello", CreatedAt: time.Now().UTC()}
	p.Version = 1
	require.NoError(t, db.Create(p).Error)
	return p
}

func loadPost(t *testing.T, db *gorm.DB, id string) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func TestRunTransaction_CommitBumpsVersion(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")

	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		var p models.Post
		if err := tx.Get(models.PostRef("p1"), &p); err != nil {
			return err
		}
		p.CommentCount++
		return tx.Put(&p)
	})
	require.NoError(t, err)

	got := loadPost(t, db, "p1")
	assert.Equal(t, 1, got.CommentCount)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "hello", got.Content)
}

func TestRunTransaction_ReadSetEnforcement(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")
	seedPost(t, db, "p2")

	t.Run("undeclared read", func(t *testing.T) {
		err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
			var p models.Post
			return tx.Get(models.PostRef("p2"), &p)
		})
		assert.ErrorIs(t, err, ErrUndeclaredRead)
	})

	t.Run("write without read", func(t *testing.T) {
		err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
			return tx.Put(&models.Post{ID: "p1"})
		})
		assert.ErrorIs(t, err, ErrNotRead)
	})

	t.Run("missing entity", func(t *testing.T) {
		err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("nope")}, func(tx *Tx) error {
			var p models.Post
			return tx.Get(models.PostRef("nope"), &p)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRunTransaction_RepeatedGetReturnsSnapshot(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")

	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		var first, second models.Post
		require.NoError(t, tx.Get(models.PostRef("p1"), &first))
		require.NoError(t, db.Exec("UPDATE posts SET content = 'changed' WHERE id = 'p1'").Error)
		require.NoError(t, tx.Get(models.PostRef("p1"), &second))
		assert.Equal(t, "hello", second.Content)
		return nil
	})
	require.NoError(t, err)
}

func TestRunTransaction_RetriesStaleSnapshot(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")

	attempts := 0
	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		attempts++
		var p models.Post
		if err := tx.Get(models.PostRef("p1"), &p); err != nil {
			return err
		}
		if attempts == 1 {
			// A concurrent writer commits between our read and our commit.
			require.NoError(t, db.Exec("UPDATE posts SET comment_count = comment_count + 5, version = version + 1 WHERE id = 'p1'").Error)
		}
		p.CommentCount++
		return tx.Put(&p)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	got := loadPost(t, db, "p1")
	assert.Equal(t, 6, got.CommentCount, "the retried attempt must see the concurrent write")
	assert.Equal(t, int64(3), got.Version)
}

func TestRunTransaction_ExhaustedRetriesSurfaceConflict(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")

	attempts := 0
	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		attempts++
		var p models.Post
		if err := tx.Get(models.PostRef("p1"), &p); err != nil {
			return err
		}
		require.NoError(t, db.Exec("UPDATE posts SET version = version + 1 WHERE id = 'p1'").Error)
		p.CommentCount++
		return tx.Put(&p)
	})

	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 0, loadPost(t, db, "p1").CommentCount)
}

func TestRunTransaction_BodyErrorIsTerminal(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 5)
	seedPost(t, db, "p1")

	wantErr := models.NewValidationError("Content is required")
	attempts := 0
	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		attempts++
		return wantErr
	})

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Same(t, wantErr, appErr)
	assert.Equal(t, 1, attempts)
}

func TestRunTransaction_ReadOnlyEntityIsValidated(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 2)
	seedPost(t, db, "parent")
	seedPost(t, db, "target")

	attempts := 0
	refs := []models.EntityRef{models.PostRef("parent"), models.PostRef("target")}
	err := s.RunTransaction(context.Background(), "test", refs, func(tx *Tx) error {
		attempts++
		var parent, target models.Post
		if err := tx.Get(models.PostRef("parent"), &parent); err != nil {
			return err
		}
		if err := tx.Get(models.PostRef("target"), &target); err != nil {
			return err
		}
		if attempts == 1 {
			require.NoError(t, db.Exec("UPDATE posts SET version = version + 1 WHERE id = 'parent'").Error)
		}
		target.CommentCount = 9
		return tx.Put(&target)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "a change to an entity that was only read must still invalidate the attempt")
	assert.Equal(t, int64(2), loadPost(t, db, "parent").Version, "read-only entities keep their version")
}

func TestRunTransaction_DeleteAndInsert(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "old")

	refs := []models.EntityRef{models.PostRef("old")}
	err := s.RunTransaction(context.Background(), "test", refs, func(tx *Tx) error {
		var p models.Post
		if err := tx.Get(models.PostRef("old"), &p); err != nil {
			return err
		}
		if err := tx.Delete(p.Ref()); err != nil {
			return err
		}
		tx.Insert(&models.Post{ID: "new", AuthorID: "author", Content: "fresh", CreatedAt: time.Now().UTC()})
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", "old").Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int64(1), loadPost(t, db, "new").Version)
}

func TestRunTransaction_DuplicateInsertRetries(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)

	attempts := 0
	ref := models.ProgressionRef("u1")
	err := s.RunTransaction(context.Background(), "test", []models.EntityRef{ref}, func(tx *Tx) error {
		attempts++
		var p models.UserProgression
		err := tx.Get(ref, &p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if attempts == 1 {
			other := &models.UserProgression{ID: "u1", Level: 1}
			other.Version = 1
			require.NoError(t, db.Create(other).Error)
		}
		tx.Insert(&models.UserProgression{ID: "u1", Level: 1})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunTransaction_ConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 30)
	seedPost(t, db, "p1")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunTransaction(context.Background(), "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
				var p models.Post
				if err := tx.Get(models.PostRef("p1"), &p); err != nil {
					return err
				}
				p.CommentCount++
				return tx.Put(&p)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := loadPost(t, db, "p1")
	assert.Equal(t, workers, got.CommentCount)
	assert.Equal(t, int64(workers+1), got.Version)
}

func TestRunTransaction_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t, 3)
	seedPost(t, db, "p1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunTransaction(ctx, "test", []models.EntityRef{models.PostRef("p1")}, func(tx *Tx) error {
		var p models.Post
		if err := tx.Get(models.PostRef("p1"), &p); err != nil {
			return err
		}
		p.CommentCount = 4
		return tx.Put(&p)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, loadPost(t, db, "p1").CommentCount)
}

func TestIsConflict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"stale snapshot", errStale, true},
		{"wrapped stale", errors.Join(errors.New("commit"), errStale), true},
		{"duplicate key", gorm.ErrDuplicatedKey, true},
		{"postgres serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"postgres check violation", &pgconn.PgError{Code: "23514"}, false},
		{"validation", models.NewValidationError("bad"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConflict(tt.err))
		})
	}
}
