package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/store"
)

// MetricsSnapshot holds a point-in-time view of the operator backlogs.
type MetricsSnapshot struct {
	// Pending review entries per bulk category.
	ReviewSafe        int `json:"review_safe"`
	ReviewNeedsReview int `json:"review_needs_review"`
	ReviewRisky       int `json:"review_risky"`
	ReviewPending     int `json:"review_pending"`

	QuarantineTotal    int                            `json:"quarantine_total"`
	QuarantineByReason map[model.QuarantineReason]int `json:"quarantine_by_reason"`

	MergesProposed     int `json:"merges_proposed"`
	CorrectionsPending int `json:"corrections_pending"`

	CollectedAt time.Time `json:"collected_at"`
}

// ReviewCounter abstracts the review service's category tally.
type ReviewCounter interface {
	CategoryCounts(ctx context.Context) (map[review.Category]int, error)
}

// Collector gathers metrics from the store and review queue.
type Collector struct {
	store    store.Store
	reviews  ReviewCounter
	pageSize int
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, reviews ReviewCounter) *Collector {
	return &Collector{store: st, reviews: reviews, pageSize: 500}
}

// Collect gathers a snapshot of the current backlogs.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	counts, err := c.reviews.CategoryCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: review counts")
	}
	snap.ReviewSafe = counts[review.CategorySafe]
	snap.ReviewNeedsReview = counts[review.CategoryNeedsReview]
	snap.ReviewRisky = counts[review.CategoryRisky]
	snap.ReviewPending = snap.ReviewSafe + snap.ReviewNeedsReview + snap.ReviewRisky

	byReason, err := c.store.CountQuarantineByReason(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count quarantine")
	}
	snap.QuarantineByReason = byReason
	for _, n := range byReason {
		snap.QuarantineTotal += n
	}

	snap.MergesProposed, err = c.countMerges(ctx)
	if err != nil {
		return nil, err
	}
	snap.CorrectionsPending, err = c.countCorrections(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Collector) countMerges(ctx context.Context) (int, error) {
	n, after := 0, ""
	for {
		page, err := c.store.ListMerges(ctx, store.MergeFilter{Status: model.MergeProposed, AfterID: after, Limit: c.pageSize})
		if err != nil {
			return 0, eris.Wrap(err, "monitoring: list merges")
		}
		n += len(page)
		if len(page) < c.pageSize {
			return n, nil
		}
		after = page[len(page)-1].ID
	}
}

func (c *Collector) countCorrections(ctx context.Context) (int, error) {
	n, after := 0, ""
	for {
		page, err := c.store.ListCorrections(ctx, store.CorrectionFilter{Status: model.CorrectionPending, AfterID: after, Limit: c.pageSize})
		if err != nil {
			return 0, eris.Wrap(err, "monitoring: list corrections")
		}
		n += len(page)
		if len(page) < c.pageSize {
			return n, nil
		}
		after = page[len(page)-1].ID
	}
}
