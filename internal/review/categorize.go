package review

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
)

// Category buckets pending entries for bulk handling.
type Category string

// Review categories.
const (
	CategorySafe        Category = "safe"
	CategoryNeedsReview Category = "needs_review"
	CategoryRisky       Category = "risky"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategorySafe, CategoryNeedsReview, CategoryRisky:
		return c, nil
	}
	return "", eris.Wrapf(ErrInvalidDecision, "unknown category %q", s)
}

// Categorize buckets e by its top candidate. Without exact gender and age
// agreement an entry is always risky.
func (s *Service) Categorize(e *model.ReviewQueueEntry) Category {
	top := e.Top()
	if top == nil || !top.Breakdown.ExactAgreement {
		return CategoryRisky
	}
	switch {
	case top.Score >= s.cfg.SafeMin:
		return CategorySafe
	case top.Score >= s.cfg.NeedsReviewMin:
		return CategoryNeedsReview
	}
	return CategoryRisky
}

// CategoryCounts tallies pending entries per category.
func (s *Service) CategoryCounts(ctx context.Context) (map[Category]int, error) {
	out := map[Category]int{CategorySafe: 0, CategoryNeedsReview: 0, CategoryRisky: 0}
	err := s.eachPending(ctx, func(e *model.ReviewQueueEntry) error {
		out[s.Categorize(e)]++
		return nil
	})
	return out, err
}

// BulkResult summarizes a BulkApprove run.
type BulkResult struct {
	Category   Category `json:"category"`
	Considered int      `json:"considered"`
	Approved   int      `json:"approved"`
	Skipped    int      `json:"skipped"`
}

const bulkPageSize = 200

// BulkApprove approves the top candidate of every pending entry in c.
// Entries resolved by someone else mid-run are skipped, so a rerun is
// harmless. Risky entries must be approved one at a time.
func (s *Service) BulkApprove(ctx context.Context, c Category, resolver string) (BulkResult, error) {
	res := BulkResult{Category: c}
	if c == CategoryRisky {
		return res, eris.Wrap(ErrInvalidDecision, "risky entries cannot be bulk approved")
	}
	if c != CategorySafe && c != CategoryNeedsReview {
		return res, eris.Wrapf(ErrInvalidDecision, "unknown category %q", c)
	}

	var batch []model.ReviewQueueEntry
	err := s.eachPending(ctx, func(e *model.ReviewQueueEntry) error {
		if s.Categorize(e) == c {
			batch = append(batch, *e)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for i := range batch {
		e := &batch[i]
		res.Considered++
		_, err := s.Approve(ctx, e.ID, Decision{
			MasterID: e.Top().MasterID,
			Resolver: resolver,
			Note:     "bulk:" + string(c),
		})
		switch {
		case err == nil:
			res.Approved++
		case errors.Is(err, ErrInvalidState):
			res.Skipped++
		default:
			return res, err
		}
	}

	zap.L().Info("bulk approve complete",
		zap.String("component", "review"),
		zap.String("category", string(c)),
		zap.Int("approved", res.Approved),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Service) eachPending(ctx context.Context, fn func(*model.ReviewQueueEntry) error) error {
	after := ""
	for {
		page, err := s.store.ListReviews(ctx, model.ReviewFilter{
			Status:  model.ReviewPending,
			AfterID: after,
			Limit:   bulkPageSize,
		})
		if err != nil {
			return eris.Wrap(err, "review: scan pending")
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		if len(page) < bulkPageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}
