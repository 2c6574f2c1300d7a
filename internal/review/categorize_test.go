package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/model"
)

func TestCategorize(t *testing.T) {
	svc := New(nil, nil, config.ReviewConfig{SafeMin: 0.95, NeedsReviewMin: 0.88}, nil)

	entry := func(score float64, agreement bool) *model.ReviewQueueEntry {
		return &model.ReviewQueueEntry{Candidates: []model.Candidate{{
			Score:     score,
			Breakdown: model.ScoreBreakdown{Total: score, ExactAgreement: agreement},
		}}}
	}

	tests := []struct {
		name  string
		entry *model.ReviewQueueEntry
		want  Category
	}{
		{"safe", entry(0.96, true), CategorySafe},
		{"safe boundary", entry(0.95, true), CategorySafe},
		{"needs review", entry(0.90, true), CategoryNeedsReview},
		{"low with agreement", entry(0.80, true), CategoryRisky},
		{"high without agreement", entry(0.99, false), CategoryRisky},
		{"no candidates", &model.ReviewQueueEntry{}, CategoryRisky},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Categorize(tt.entry))
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("needs_review")
	require.NoError(t, err)
	assert.Equal(t, CategoryNeedsReview, c)

	_, err = ParseCategory("fine")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestBulkApprove(t *testing.T) {
	svc, st, rel := newTestService(t)
	ctx := context.Background()
	a := seedTeam(t, st, "a")
	b := seedTeam(t, st, "b")

	safe1 := seedEntry(t, st, "gs-1", a, 0.97, true)
	safe2 := seedEntry(t, st, "gs-2", b, 0.95, true)
	needs := seedEntry(t, st, "gs-3", a, 0.90, true)
	risky := seedEntry(t, st, "gs-4", b, 0.99, false)

	counts, err := svc.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Category]int{CategorySafe: 2, CategoryNeedsReview: 1, CategoryRisky: 1}, counts)

	res, err := svc.BulkApprove(ctx, CategorySafe, "ops")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Considered)
	assert.Equal(t, 2, res.Approved)
	assert.ElementsMatch(t, []string{safe1.ID, safe2.ID}, rel.calls)

	alias, err := st.GetAlias(ctx, "gotsport", "gs-2")
	require.NoError(t, err)
	require.NotNil(t, alias)
	assert.Equal(t, b.ID, alias.MasterID)

	// A second run finds nothing left in the category.
	res, err = svc.BulkApprove(ctx, CategorySafe, "ops")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Considered)

	for _, e := range []*model.ReviewQueueEntry{needs, risky} {
		got, err := svc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReviewPending, got.Status)
	}

	_, err = svc.BulkApprove(ctx, CategoryRisky, "ops")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}
