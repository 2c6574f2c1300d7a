package matcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/scorer"
	"github.com/sells-group/teamresolve/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	gotsport = model.Provider{Code: "gotsport", Name: "GotSport"}
	league   = model.Provider{Code: "league", Name: "League", ReusesClubIDs: true}
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "matcher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.UpsertProvider(ctx, gotsport))
	require.NoError(t, st.UpsertProvider(ctx, league))
	return st
}

func newTestMatcher(t *testing.T, st store.Store, p *Policy) *Matcher {
	t.Helper()
	policy := DefaultPolicy(testMatcherConfig())
	if p != nil {
		policy = *p
	}
	return New(st, normalize.New(normalize.DefaultOptions()), scorer.New(scorer.DefaultScorerConfig(), 0), Options{
		Policy:         policy,
		CandidateLimit: 5,
		Retry:          resilience.RetryConfig{MaxAttempts: 1},
	})
}

func seedMaster(t *testing.T, st store.Store, teamName, clubName, age string, g model.Gender) *model.MasterTeam {
	t.Helper()
	team := &model.MasterTeam{
		TeamName: teamName,
		ClubName: clubName,
		ClubKey:  normalize.ClubKey(clubName),
		Age:      age,
		Gender:   g,
	}
	require.NoError(t, st.CreateTeam(context.Background(), team))
	return team
}

func phoenixRecord(id, name string) model.ProviderTeamRecord {
	return model.ProviderTeamRecord{
		ProviderTeamID: id,
		TeamName:       name,
		ClubName:       "Phoenix Premier FC",
		Gender:         "M",
		State:          "az",
	}
}

func TestResolve_CreatesThenTier1(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	rec := phoenixRecord("gs-1", "Phoenix Premier FC B2014 Black")
	res, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, PathCreated, res.Path)
	require.NotEmpty(t, res.MasterID)

	team, err := st.GetTeam(ctx, res.MasterID)
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Equal(t, "2014", team.Age)
	assert.Equal(t, model.GenderMale, team.Gender)
	assert.Equal(t, "AZ", team.Region)
	assert.Equal(t, "Phoenix Premier FC", team.ClubName)

	alias, err := st.GetAlias(ctx, "gotsport", "gs-1")
	require.NoError(t, err)
	require.NotNil(t, alias)
	assert.Equal(t, model.MethodDirectID, alias.Method)
	assert.Equal(t, 1.0, alias.Confidence)

	again, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, PathTier1, again.Path)
	assert.Equal(t, res.MasterID, again.MasterID)
}

func TestResolve_Tier3AutoAccept(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	master := seedMaster(t, st, "Phoenix Premier FC 2014 Black", "Phoenix Premier FC", "2014", model.GenderMale)

	res, err := m.Resolve(ctx, gotsport, phoenixRecord("gs-9", "PHOENIX PREMIER FC B2014 BLACK"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, PathTier3Auto, res.Path)
	assert.Equal(t, master.ID, res.MasterID)
	require.NotNil(t, res.Breakdown)
	assert.True(t, res.Breakdown.ExactAgreement)

	alias, err := st.GetAlias(ctx, "gotsport", "gs-9")
	require.NoError(t, err)
	require.NotNil(t, alias)
	assert.Equal(t, model.MethodFuzzyAuto, alias.Method)
	assert.Equal(t, master.ID, alias.MasterID)
	assert.InDelta(t, res.Breakdown.Total, alias.Confidence, 1e-9)
}

func TestResolve_GenderDisagreementNeverMatches(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	girls := seedMaster(t, st, "Phoenix Premier FC 2014 Black", "Phoenix Premier FC", "2014", model.GenderFemale)

	res, err := m.Resolve(ctx, gotsport, phoenixRecord("gs-2", "Phoenix Premier FC 2014 Black"))
	require.NoError(t, err)
	assert.Equal(t, PathCreated, res.Path)
	assert.NotEqual(t, girls.ID, res.MasterID)
}

func TestResolve_AdjacentAgeGoesToReview(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	master := seedMaster(t, st, "Phoenix Premier FC 2014 Black", "Phoenix Premier FC", "2014", model.GenderMale)

	rec := phoenixRecord("gs-3", "Phoenix Premier FC 2015 Black")
	res, err := m.ResolveRequest(ctx, Request{BatchID: "b1", Provider: gotsport, Record: rec})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, res.Outcome)
	require.NotEmpty(t, res.ReviewEntryID)

	entry, err := st.GetReview(ctx, res.ReviewEntryID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "b1", entry.BatchID)
	assert.Equal(t, "gs-3", entry.AliasKey)
	require.Len(t, entry.Candidates, 1)
	assert.Equal(t, master.ID, entry.Candidates[0].MasterID)
	assert.False(t, entry.Candidates[0].Breakdown.ExactAgreement)

	// No alias is written for a review outcome, and a rerun reuses the entry.
	alias, err := st.GetAlias(ctx, "gotsport", "gs-3")
	require.NoError(t, err)
	assert.Nil(t, alias)

	again, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, again.Outcome)
	assert.Equal(t, res.ReviewEntryID, again.ReviewEntryID)
}

func TestResolve_PreviouslyRejected(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	seedMaster(t, st, "Phoenix Premier FC 2014 Black", "Phoenix Premier FC", "2014", model.GenderMale)
	rec := phoenixRecord("gs-4", "Phoenix Premier FC 2015 Black")

	res, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeReview, res.Outcome)

	ok, err := st.ResolveReview(ctx, res.ReviewEntryID, model.ReviewRejected, nil, "ops", "not the same team", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	again, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuarantined, again.Outcome)
	assert.Equal(t, model.ReasonOther, again.Reason)
	assert.Equal(t, DetailPreviouslyRejected, again.Detail)
	assert.Equal(t, res.ReviewEntryID, again.ReviewEntryID)

	_, found, err := m.Lookup(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResolve_LowConfidenceQuarantine(t *testing.T) {
	st := newTestStore(t)
	p := Policy{
		Bands:   []Band{{Name: "low", MinScore: 0, Action: ActionQuarantine, Detail: DetailLowConfidence}},
		Default: ActionCreate,
	}
	m := newTestMatcher(t, st, &p)
	ctx := context.Background()

	seedMaster(t, st, "Phoenix Premier FC 2014 Red", "Phoenix Premier FC", "2014", model.GenderMale)

	res, err := m.Resolve(ctx, gotsport, phoenixRecord("gs-5", "Phoenix Premier FC 2014 Black"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuarantined, res.Outcome)
	assert.Equal(t, model.ReasonOther, res.Reason)
	assert.Equal(t, DetailLowConfidence, res.Detail)
	require.NotNil(t, res.Breakdown)
}

func TestResolve_NoCreateQuarantines(t *testing.T) {
	st := newTestStore(t)
	c := testMatcherConfig()
	c.CreateOnNoMatch = false
	p := DefaultPolicy(c)
	m := newTestMatcher(t, st, &p)

	res, err := m.Resolve(context.Background(), gotsport, phoenixRecord("gs-6", "Phoenix Premier FC 2014 Black"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuarantined, res.Outcome)
	assert.Equal(t, "no_match", res.Detail)

	teams, err := st.ListTeams(context.Background(), model.TeamFilter{})
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestResolve_ValidationQuarantines(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	rec := phoenixRecord("gs-7", "Phoenix Premier FC B2014 Black")
	rec.Gender = "coed"
	res, err := m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonMissingIdentityField, res.Reason)
	assert.Equal(t, "gender", res.Detail)

	rec = phoenixRecord("gs-8", "Phoenix Premier FC B2014 Black")
	rec.AgeGroup = "2012"
	res, err = m.Resolve(ctx, gotsport, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuarantined, res.Outcome)
	assert.Equal(t, model.ReasonAgeMismatch, res.Reason)
}

func TestDescribe_AgeGroupFillsMissingAge(t *testing.T) {
	n := normalize.New(normalize.DefaultOptions())
	rec := phoenixRecord("x", "Phoenix Premier FC Black")
	rec.AgeGroup = "2013"

	d, err := Describe(n, rec)
	require.NoError(t, err)
	assert.Equal(t, "2013", d.AgeString())

	rec.TeamName = "Phoenix Premier FC 2013 Black"
	_, err = Describe(n, rec)
	require.NoError(t, err)
}

func TestResolve_StructuralTier(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()

	rec := phoenixRecord("club-77", "Phoenix Premier FC 2014 ECNL")
	res, err := m.Resolve(ctx, league, rec)
	require.NoError(t, err)
	require.Equal(t, PathCreated, res.Path)
	assert.Equal(t, "club-77|2014|ecnl", res.AliasKey)

	alias, err := st.GetAlias(ctx, "league", res.AliasKey)
	require.NoError(t, err)
	require.NotNil(t, alias)
	assert.Equal(t, model.MethodAliasSuffix, alias.Method)

	again, err := m.Resolve(ctx, league, rec)
	require.NoError(t, err)
	assert.Equal(t, PathTier2, again.Path)
	assert.Equal(t, res.MasterID, again.MasterID)

	// The same club id under another division is a different team.
	other := phoenixRecord("club-77", "Phoenix Premier FC 2014 ECNL")
	other.Division = "Premier"
	found, ok, err := m.Lookup(ctx, league, other)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, found.MasterID)
}

func TestResolve_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	st := newTestStore(t)
	m := newTestMatcher(t, st, nil)
	ctx := context.Background()
	rec := phoenixRecord("gs-10", "Phoenix Premier FC B2014 Black")

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Resolve(ctx, gotsport, rec)
			ids[i], errs[i] = res.MasterID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	teams, err := st.ListTeams(ctx, model.TeamFilter{})
	require.NoError(t, err)
	assert.Len(t, teams, 1)
}

func TestResolve_KeepsTopK(t *testing.T) {
	st := newTestStore(t)
	p := Policy{
		Bands:   []Band{{Name: "all", MinScore: 0, Action: ActionReview}},
		Default: ActionCreate,
	}
	m := newTestMatcher(t, st, &p)
	m.k = 2
	ctx := context.Background()

	exact := seedMaster(t, st, "Phoenix Premier FC 2014 Black", "Phoenix Premier FC", "2014", model.GenderMale)
	seedMaster(t, st, "Phoenix Premier FC 2014 Red", "Phoenix Premier FC", "2014", model.GenderMale)
	seedMaster(t, st, "Phoenix Premier FC 2013 White", "Phoenix Premier FC", "2013", model.GenderMale)

	res, err := m.Resolve(ctx, gotsport, phoenixRecord("gs-11", "Phoenix Premier FC 2014 Black"))
	require.NoError(t, err)
	require.Equal(t, OutcomeReview, res.Outcome)

	entry, err := st.GetReview(ctx, res.ReviewEntryID)
	require.NoError(t, err)
	require.Len(t, entry.Candidates, 2)
	assert.Equal(t, exact.ID, entry.Candidates[0].MasterID)
	assert.GreaterOrEqual(t, entry.Candidates[0].Score, entry.Candidates[1].Score)
	assert.Equal(t, entry.Candidates[0].Score, entry.TopScore)
}
