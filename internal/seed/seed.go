package seed

import (
	"context"
	"fmt"
	"log"

	"agora/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumAuthors         int
	NumPosts           int
	MaxCommentsPerPost int
	// ReplyPercent is the chance, out of 100, that a comment is a reply.
	ReplyPercent int
	MaxDays      int
	BatchSize    int
	RandSeed     int64
	ShouldClean  bool
}

// Summary counts what a run wrote.
type Summary struct {
	Authors  int
	Posts    int
	Comments int
	Replies  int
}

// Seeder writes a consistent social graph: every post's comment_count
// matches its comments and no reply has a reply.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.NumAuthors <= 0 {
		opts.NumAuthors = 10
	}
	if opts.NumPosts < 0 {
		opts.NumPosts = 0
	}
	if opts.MaxCommentsPerPost <= 0 {
		opts.MaxCommentsPerPost = 8
	}
	if opts.ReplyPercent <= 0 || opts.ReplyPercent > 100 {
		opts.ReplyPercent = 40
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// Seed populates the database.
func (s *Seeder) Seed(ctx context.Context) (Summary, error) {
	log.Printf("🌱 Seeding %d authors and %d posts...", s.opts.NumAuthors, s.opts.NumPosts)

	if s.opts.ShouldClean {
		if err := Clean(ctx, s.db); err != nil {
			return Summary{}, err
		}
	}

	f := s.factory
	authors := make([]models.Author, s.opts.NumAuthors)
	progressions := make([]*models.UserProgression, s.opts.NumAuthors)
	for i := range authors {
		authors[i] = f.Author()
		progressions[i] = &models.UserProgression{ID: authors[i].ID, Level: 1}
		progressions[i].Version = 1
	}

	var posts []*models.Post
	var comments []*models.Comment
	var summary Summary
	for range s.opts.NumPosts {
		post := f.BuildPost(authors[f.faker.IntRange(0, len(authors)-1)])
		post.Likes = f.Likes(authors, len(authors)/2)
		post.LikeRewarded = post.Likes

		var roots []models.Root
		for range f.faker.IntRange(0, s.opts.MaxCommentsPerPost) {
			author := authors[f.faker.IntRange(0, len(authors)-1)]
			var parent *models.Root
			if len(roots) > 0 && f.faker.IntRange(1, 100) <= s.opts.ReplyPercent {
				parent = &roots[f.faker.IntRange(0, len(roots)-1)]
			}

			c := f.BuildComment(author, post, parent)
			c.Likes = f.Likes(authors, 3)
			c.LikeRewarded = c.Likes
			if root, ok := models.AsRoot(c); ok {
				roots = append(roots, root)
			} else {
				summary.Replies++
			}
			comments = append(comments, c)
			post.CommentCount++
		}
		posts = append(posts, post)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(progressions, s.opts.BatchSize).Error; err != nil {
			return fmt.Errorf("create progressions: %w", err)
		}
		if len(posts) > 0 {
			if err := tx.CreateInBatches(posts, s.opts.BatchSize).Error; err != nil {
				return fmt.Errorf("create posts: %w", err)
			}
		}
		if len(comments) > 0 {
			if err := tx.CreateInBatches(comments, s.opts.BatchSize).Error; err != nil {
				return fmt.Errorf("create comments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	summary.Authors = len(authors)
	summary.Posts = len(posts)
	summary.Comments = len(comments)
	log.Printf("✓ Seeded %d posts with %d comments (%d replies)", summary.Posts, summary.Comments, summary.Replies)
	return summary, nil
}

// InjectDrift corrupts the stored comment_count of up to n posts without
// bumping their version, the way a lost counter update would. It returns
// the ids it touched.
func (s *Seeder) InjectDrift(ctx context.Context, n int) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Order("id").Limit(n).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("select drift targets: %w", err)
	}

	for _, id := range ids {
		delta := s.factory.faker.IntRange(1, 5)
		err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", delta)).Error
		if err != nil {
			return nil, fmt.Errorf("inject drift on %s: %w", id, err)
		}
	}
	log.Printf("⚠️  Injected comment_count drift into %d posts", len(ids))
	return ids, nil
}

// Clean removes all seeded content.
func Clean(ctx context.Context, db *gorm.DB) error {
	session := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.Comment{}, &models.Post{}, &models.UserProgression{}} {
		if err := session.Delete(model).Error; err != nil {
			return fmt.Errorf("clean %T: %w", model, err)
		}
	}
	return nil
}
