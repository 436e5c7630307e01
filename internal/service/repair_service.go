package service

import (
	"context"
	"errors"
	"log/slog"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/store"
)

const defaultRepairBatchSize = 200

// RepairScope selects the posts a repair run visits. An empty PostIDs
// means every post.
type RepairScope struct {
	PostIDs   []string
	BatchSize int
	DryRun    bool
}

// Correction records one post whose stored count was wrong.
type Correction struct {
	PostID string `json:"post_id"`
	Stored int    `json:"stored"`
	Actual int    `json:"actual"`
}

// RepairReport summarizes a repair run.
type RepairReport struct {
	Scanned     int          `json:"scanned"`
	Corrected   int          `json:"corrected"`
	Failed      int          `json:"failed"`
	DryRun      bool         `json:"dry_run"`
	Corrections []Correction `json:"corrections"`
}

// RepairService recomputes denormalized comment counts from the comments
// table.
type RepairService struct {
	store     *store.Store
	posts     repository.PostRepository
	comments  repository.CommentRepository
	batchSize int
	logger    *observability.StoreLogger
}

func NewRepairService(s *store.Store, posts repository.PostRepository, comments repository.CommentRepository, batchSize int) *RepairService {
	if batchSize <= 0 {
		batchSize = defaultRepairBatchSize
	}
	return &RepairService{
		store:     s,
		posts:     posts,
		comments:  comments,
		batchSize: batchSize,
		logger:    observability.NewStoreLogger("repair"),
	}
}

// Run visits every post in scope. A post that fails is logged and counted,
// and the run moves on. The returned error is only set when the scan
// itself cannot continue.
func (s *RepairService) Run(ctx context.Context, scope RepairScope) (RepairReport, error) {
	report := RepairReport{DryRun: scope.DryRun, Corrections: []Correction{}}
	observability.LogAsyncOperationStart(ctx, "repair.comment_counts", map[string]any{"dry_run": scope.DryRun})

	visit := func(ids []string) {
		for _, id := range ids {
			report.Scanned++
			fix, err := s.repairPost(ctx, id, scope.DryRun)
			if err != nil {
				report.Failed++
				observability.RepairFailures.Inc()
				s.logger.LogError(ctx, err, "repair.post", map[string]any{"post_id": id})
				continue
			}
			if fix != nil {
				report.Corrected++
				report.Corrections = append(report.Corrections, *fix)
				if !scope.DryRun {
					observability.RepairCorrected.Inc()
				}
			}
		}
	}

	if len(scope.PostIDs) > 0 {
		visit(scope.PostIDs)
		s.finish(ctx, report)
		return report, nil
	}

	batch := scope.BatchSize
	if batch <= 0 {
		batch = s.batchSize
	}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			observability.LogAsyncOperationError(ctx, "repair.comment_counts", err, nil)
			return report, err
		}
		ids, err := s.posts.ScanIDs(ctx, after, batch)
		if err != nil {
			observability.LogAsyncOperationError(ctx, "repair.comment_counts", err, nil)
			return report, err
		}
		if len(ids) == 0 {
			break
		}
		visit(ids)
		after = ids[len(ids)-1]
		if len(ids) < batch {
			break
		}
	}

	s.finish(ctx, report)
	return report, nil
}

func (s *RepairService) finish(ctx context.Context, report RepairReport) {
	observability.LogAsyncOperationEnd(ctx, "repair.comment_counts", map[string]any{
		"scanned":   report.Scanned,
		"corrected": report.Corrected,
		"failed":    report.Failed,
	})
}

// repairPost counts the comments inside a transaction reading the post.
// The count query runs against the table directly; a comment committed
// after the count bumps the post version, which makes this attempt retry.
func (s *RepairService) repairPost(ctx context.Context, postID string, dryRun bool) (*Correction, error) {
	ref := models.PostRef(postID)
	var fix *Correction
	err := s.store.RunTransaction(ctx, "repair.post", []models.EntityRef{ref}, func(tx *store.Tx) error {
		fix = nil
		var post models.Post
		if err := tx.Get(ref, &post); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Deleted while the scan was running.
				return nil
			}
			return err
		}

		n, err := s.comments.CountByPost(tx.Context(), postID)
		if err != nil {
			return err
		}
		if int(n) == post.CommentCount {
			return nil
		}

		fix = &Correction{PostID: postID, Stored: post.CommentCount, Actual: int(n)}
		if dryRun {
			return nil
		}
		post.CommentCount = int(n)
		return tx.Put(&post)
	})
	if err != nil {
		return nil, err
	}
	if fix != nil {
		slog.InfoContext(ctx, "comment count corrected",
			slog.String("post_id", postID),
			slog.Int("stored", fix.Stored),
			slog.Int("actual", fix.Actual),
			slog.Bool("dry_run", dryRun),
		)
	}
	return fix, nil
}
