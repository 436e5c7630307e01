package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"agora/internal/models"
	"agora/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestCommentRepository_ListByPostIsUnordered(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	// No ORDER BY: sorting happens in feed assembly.
	mock.ExpectQuery(`^` + regexp.QuoteMeta(`SELECT * FROM "comments" WHERE post_id = $1`) + `$`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "content", "likes"}).
			AddRow("c2", "p1", "Comment 2", `["u1","u2"]`).
			AddRow("c1", "p1", "Comment 1", nil))

	comments, err := repo.ListByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c2", comments[0].ID)
	assert.Equal(t, models.LikeSet{"u1", "u2"}, comments[0].Likes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_CountByPost(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "comments" WHERE post_id = $1`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_ScanIDs(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "posts" WHERE id > $1 ORDER BY id LIMIT`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ScanIDs(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositories_SQLite(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p := &models.Post{ID: fmt.Sprintf("p%d", i), AuthorID: "a", Content: "x", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		p.Version = 1
		require.NoError(t, db.Create(p).Error)
	}
	for i := 0; i < 2; i++ {
		c := &models.Comment{ID: fmt.Sprintf("c%d", i), PostID: "p1", AuthorID: "a", Content: "y", CreatedAt: base}
		c.Version = 1
		require.NoError(t, db.Create(c).Error)
	}
	prog := &models.UserProgression{ID: "u1", XP: 120, Level: 2}
	prog.Version = 1
	require.NoError(t, db.Create(prog).Error)

	posts := NewPostRepository(db)
	comments := NewCommentRepository(db)

	recent, err := posts.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "p2", recent[0].ID)
	assert.Equal(t, "p1", recent[1].ID)

	ids, err := posts.ScanIDs(ctx, "p0", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	_, err = posts.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := comments.ListByPost(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := comments.CountByPost(ctx, "p0")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := NewProgressionRepository(db).GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.XP)
}
