package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/identity"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/scorer"
	"github.com/sells-group/teamresolve/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type env struct {
	st     *store.SQLiteStore
	job    *Job
	review *review.Service
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.UpsertProvider(ctx, model.Provider{Code: "gotsport", Name: "GotSport"}))
	require.NoError(t, st.UpsertProvider(ctx, model.Provider{Code: "league", Name: "League", ReusesClubIDs: true}))

	m := matcher.New(st, normalize.New(normalize.DefaultOptions()), scorer.New(scorer.DefaultScorerConfig(), 0), matcher.Options{
		Policy: matcher.DefaultPolicy(config.MatcherConfig{
			AutoAccept: 0.95, ReviewAgreement: 0.85, ReviewPartial: 0.70, QuarantineFloor: 0.50,
			CandidateLimit: 5, CreateOnNoMatch: true,
		}),
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	})
	opts.Retry = resilience.RetryConfig{MaxAttempts: 1}
	job := New(st, m, opts)
	return &env{
		st:     st,
		job:    job,
		review: review.New(st, m.Normalizer(), config.ReviewConfig{SafeMin: 0.95, NeedsReviewMin: 0.88}, job),
	}
}

func (e *env) seedSolar(t *testing.T) *model.MasterTeam {
	t.Helper()
	team := &model.MasterTeam{
		TeamName: "Solar SC 2014 Blue", ClubName: "Solar SC", ClubKey: normalize.ClubKey("Solar SC"),
		Age: "2014", Gender: model.GenderMale,
	}
	require.NoError(t, e.st.CreateTeam(context.Background(), team))
	return team
}

var (
	phoenix = model.FeedSide{ProviderTeamID: "gs-1", TeamName: "Phoenix Premier FC B2010 Black", ClubName: "Phoenix Premier FC", Gender: "M"}
	dallas  = model.FeedSide{ProviderTeamID: "gs-2", TeamName: "Dallas Texans G2008 Red", ClubName: "Dallas Texans", Gender: "F"}
	solar   = model.FeedSide{ProviderTeamID: "gs-5", TeamName: "Solar SC 2015 Blue", ClubName: "Solar SC", Gender: "M"}
	sting   = model.FeedSide{ProviderTeamID: "gs-6", TeamName: "Sting G2006 Black", ClubName: "Sting", Gender: "F"}
)

func game(home, away model.FeedSide, date, hs, as string) model.FeedRow {
	return model.FeedRow{Provider: "gotsport", Team: home, Opponent: away, GameDate: date, HomeScore: hs, AwayScore: as}
}

func TestRun_EveryRowAccounted(t *testing.T) {
	e := newEnv(t, Options{Concurrency: 3})
	ctx := context.Background()
	e.seedSolar(t)

	mismatch := phoenix
	mismatch.ProviderTeamID = "gs-9"
	mismatch.AgeGroup = "2012"

	unknown := game(phoenix, dallas, "2024-09-14", "2", "1")
	unknown.Provider = "nope"

	rows := []model.FeedRow{
		game(phoenix, dallas, "09/14/2024", "2", "1"),
		game(phoenix, dallas, "2024-09-14", "2", "1"),
		game(dallas, phoenix, "2024-09-14", "1", "2"),
		game(phoenix, dallas, "2024-09-14", "3", "1"),
		game(phoenix, dallas, "2024-09-14", "", "1"),
		unknown,
		game(mismatch, dallas, "2024-09-21", "0", "0"),
		game(solar, sting, "2024-09-14", "4", "4"),
	}

	rep, err := e.job.Run(ctx, Batch{ID: "b1", Rows: rows})
	require.NoError(t, err)
	assert.True(t, rep.Accounted())
	assert.Equal(t, 8, rep.Rows)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, 2, rep.AlreadyImported)
	assert.Equal(t, 1, rep.Held)
	assert.Equal(t, 4, rep.Quarantined)
	assert.Equal(t, map[model.QuarantineReason]int{
		model.ReasonDuplicate:    1,
		model.ReasonMissingScore: 1,
		model.ReasonOther:        1,
		model.ReasonAgeMismatch:  1,
	}, rep.ByReason)
	assert.Equal(t, 3, rep.Sides[matcher.PathCreated])
	assert.Equal(t, 1, rep.Sides[matcher.PathReview])

	counts, err := e.st.CountQuarantineByReason(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, rep.ByReason, counts)

	games, err := e.st.FindGamesByNaturalKey(ctx, identity.NaturalGameKey("gotsport", "gs-1", "gs-2", "2024-09-14"))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, 2, games[0].HomeScore)
	assert.Equal(t, "b1", games[0].BatchID)
	assert.False(t, games[0].IsImmutable)

	pending, err := e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	held, err := e.st.ListHeldGamesByReview(ctx, pending[0].ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.NotNil(t, held[0].HomeReviewID)
	assert.Nil(t, held[0].AwayReviewID)

	teamsBefore, aliasesBefore := e.identityCounts(t)

	// Re-running the batch changes nothing but the counts.
	again, err := e.job.Run(ctx, Batch{ID: "b2", Rows: rows})
	require.NoError(t, err)
	assert.True(t, again.Accounted())
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 3, again.AlreadyImported)
	assert.Equal(t, 1, again.Held)
	assert.Equal(t, 4, again.Quarantined)
	assert.Equal(t, 3, again.Sides[matcher.PathTier1])
	assert.Zero(t, again.Sides[matcher.PathCreated])

	teamsAfter, aliasesAfter := e.identityCounts(t)
	assert.Equal(t, teamsBefore, teamsAfter)
	assert.Equal(t, aliasesBefore, aliasesAfter)

	pending, err = e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	held, err = e.st.ListHeldGamesByReview(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Len(t, held, 1, "a rerun keeps the single hold")
}

func TestRun_HeldRowRerunKeepsOneHold(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	e.seedSolar(t)

	row := []model.FeedRow{game(solar, sting, "2024-09-14", "4", "4")}
	for i := range 3 {
		rep, err := e.job.Run(ctx, Batch{ID: fmt.Sprintf("b%d", i), Rows: row})
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Held)
	}

	pending, err := e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	held, err := e.st.ListHeldGamesByReview(ctx, pending[0].ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "b0", held[0].BatchID)
}

// identityCounts returns the number of master teams and aliases.
func (e *env) identityCounts(t *testing.T) (teams, aliases int) {
	t.Helper()
	ctx := context.Background()
	list, err := e.st.ListTeams(ctx, model.TeamFilter{IncludeDeprecated: true, Limit: 1000})
	require.NoError(t, err)
	for _, team := range list {
		n, err := e.st.CountAliasesByMaster(ctx, team.ID)
		require.NoError(t, err)
		aliases += n
	}
	return len(list), aliases
}

func TestRelease_AfterApprove(t *testing.T) {
	e := newEnv(t, Options{Finalize: true})
	ctx := context.Background()
	master := e.seedSolar(t)

	rep, err := e.job.Run(ctx, Batch{ID: "b1", Rows: []model.FeedRow{game(solar, sting, "2024-09-14", "4", "4")}})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Held)

	pending, err := e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = e.review.Approve(ctx, pending[0].ID, review.Decision{MasterID: master.ID, Resolver: "ops"})
	require.NoError(t, err)

	held, err := e.st.ListHeldGamesByReview(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Empty(t, held)

	games, err := e.st.FindGamesByNaturalKey(ctx, identity.NaturalGameKey("gotsport", "gs-5", "gs-6", "2024-09-14"))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, master.ID, games[0].HomeTeamID)
	assert.True(t, games[0].IsImmutable)

	// Releasing again finds nothing.
	res, err := e.job.Release(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ReleaseResult{}, res)
}

func TestRelease_AfterReject(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	e.seedSolar(t)

	_, err := e.job.Run(ctx, Batch{ID: "b1", Rows: []model.FeedRow{game(solar, sting, "2024-09-14", "4", "4")}})
	require.NoError(t, err)
	pending, err := e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = e.review.Reject(ctx, pending[0].ID, "ops", "different club")
	require.NoError(t, err)

	held, err := e.st.ListHeldGamesByReview(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Empty(t, held)

	q, err := e.st.ListQuarantine(ctx, model.QuarantineFilter{BatchID: "b1"})
	require.NoError(t, err)
	require.Len(t, q, 2)
	var details []string
	for _, r := range q {
		details = append(details, r.Detail)
	}
	assert.Contains(t, details, review.DetailRejected)
	assert.Contains(t, details, "team: "+matcher.DetailPreviouslyRejected)

	// The rejected key is never retried into review.
	rep, err := e.job.Run(ctx, Batch{ID: "b2", Rows: []model.FeedRow{game(solar, sting, "2024-09-15", "1", "0")}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Quarantined)
	assert.Equal(t, 0, rep.Held)
}

func TestRelease_WaitsForBothSides(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	master := e.seedSolar(t)
	girls := &model.MasterTeam{
		TeamName: "Sting 2006 Black", ClubName: "Sting", ClubKey: normalize.ClubKey("Sting"),
		Age: "2006", Gender: model.GenderFemale,
	}
	require.NoError(t, e.st.CreateTeam(ctx, girls))

	sting07 := sting
	sting07.TeamName = "Sting G2007 Black"

	rep, err := e.job.Run(ctx, Batch{ID: "b1", Rows: []model.FeedRow{game(solar, sting07, "2024-09-14", "4", "4")}})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Held)
	require.Equal(t, 2, rep.Sides[matcher.PathReview])

	entries, err := e.st.ListReviews(ctx, model.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byKey := map[string]model.ReviewQueueEntry{}
	for _, en := range entries {
		byKey[en.AliasKey] = en
	}

	_, err = e.review.Approve(ctx, byKey["gs-5"].ID, review.Decision{MasterID: master.ID, Resolver: "ops"})
	require.NoError(t, err)
	res, err := e.job.Release(ctx, byKey["gs-5"].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StillHeld)

	_, err = e.review.Approve(ctx, byKey["gs-6"].ID, review.Decision{MasterID: girls.ID, Resolver: "ops"})
	require.NoError(t, err)

	games, err := e.st.FindGamesByNaturalKey(ctx, identity.NaturalGameKey("gotsport", "gs-5", "gs-6", "2024-09-14"))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, girls.ID, games[0].AwayTeamID)
}

func TestRun_StructuralKeys(t *testing.T) {
	e := newEnv(t, Options{RowsPerSecond: 1000})
	ctx := context.Background()

	rush10 := model.FeedSide{ProviderTeamID: "club-77", TeamName: "Rush 2010 Elite", ClubName: "Rush", Gender: "M"}
	rush13 := model.FeedSide{ProviderTeamID: "club-77", TeamName: "Rush 2013 Elite", ClubName: "Rush", Gender: "M"}
	galaxy := model.FeedSide{ProviderTeamID: "club-88", TeamName: "Galaxy G2011", ClubName: "Galaxy", Gender: "F"}

	rep, err := e.job.Run(ctx, Batch{ID: "b1", Rows: []model.FeedRow{
		{Provider: "league", Team: rush10, Opponent: galaxy, GameDate: "2024-10-01", HomeScore: "1", AwayScore: "0"},
		{Provider: "league", Team: rush13, Opponent: galaxy, GameDate: "2024-10-01", HomeScore: "1", AwayScore: "0"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, 3, rep.Sides[matcher.PathCreated])

	games, err := e.st.ListGames(ctx, model.GameFilter{})
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.NotEqual(t, games[0].HomeTeamID, games[1].HomeTeamID)
	assert.Equal(t, games[0].AwayTeamID, games[1].AwayTeamID)
}

func TestRun_SameTeamBothSides(t *testing.T) {
	e := newEnv(t, Options{})
	rep, err := e.job.Run(context.Background(), Batch{Rows: []model.FeedRow{game(phoenix, phoenix, "2024-09-14", "1", "1")}})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.BatchID)
	assert.Equal(t, 1, rep.ByReason[model.ReasonOther])
	assert.Empty(t, rep.Sides)
}
