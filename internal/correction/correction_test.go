package correction

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	ledger *Ledger
	st     *store.SQLiteStore
	home   *model.MasterTeam
	away   *model.MasterTeam
	spare  *model.MasterTeam
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "corrections.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	f := &fixture{ledger: New(st), st: st}
	for _, p := range []**model.MasterTeam{&f.home, &f.away, &f.spare} {
		team := &model.MasterTeam{TeamName: "Team", ClubName: "Club", ClubKey: "club", Age: "2014", Gender: model.GenderFemale}
		require.NoError(t, st.CreateTeam(ctx, team))
		*p = team
	}
	ok, err := st.InsertGameIfAbsent(ctx, &model.GameRecord{
		GameUID: "g1", Provider: "gotsport", HomeTeamID: f.home.ID, AwayTeamID: f.away.ID,
		GameDate: "2024-10-05", HomeScore: 3, AwayScore: 1, NaturalKey: "nk-g1", IsImmutable: true,
	})
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func (f *fixture) game(t *testing.T) *model.GameRecord {
	t.Helper()
	g, err := f.st.GetGame(context.Background(), "g1")
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

func intp(n int) *int { return &n }
func strp(s string) *string { return &s }

func TestApplyAndRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID:    "g1",
		Corrected:  model.GameFields{HomeScore: intp(2), AwayScore: intp(1)},
		ProposedBy: "alice",
		Reason:     "referee report",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionScore, c.Type)
	assert.Equal(t, model.CorrectionPending, c.Status)
	assert.Nil(t, c.Corrected.AwayScore, "unchanged fields are dropped")

	// Proposing leaves the game alone.
	assert.Equal(t, 3, f.game(t).HomeScore)

	applied, err := f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionApproved, applied.Status)
	assert.Equal(t, "bob", applied.ApprovedBy)
	require.NotNil(t, applied.Original)
	assert.Equal(t, 3, *applied.Original.HomeScore)

	g := f.game(t)
	assert.Equal(t, 2, g.HomeScore)
	assert.True(t, g.IsImmutable)
	assert.Nil(t, g.UnlockRef)

	again, err := f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, again.ApprovedAt)
	assert.True(t, applied.ApprovedAt.Equal(*again.ApprovedAt))

	reverted, err := f.ledger.Revert(ctx, c.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionReverted, reverted.Status)
	assert.Equal(t, "carol", reverted.RevertedBy)
	assert.Equal(t, 3, f.game(t).HomeScore)
	assert.True(t, f.game(t).IsImmutable)

	_, err = f.ledger.Revert(ctx, c.ID, "carol")
	require.NoError(t, err)

	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApply_TeamChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID:    "g1",
		Corrected:  model.GameFields{AwayTeamID: strp(f.spare.ID), GameDate: strp("2024-10-06")},
		ProposedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionMulti, c.Type)

	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)
	g := f.game(t)
	assert.Equal(t, f.spare.ID, g.AwayTeamID)
	assert.Equal(t, "2024-10-06", g.GameDate)
}

func TestApply_TargetDeprecatedAfterProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID: "g1", Corrected: model.GameFields{AwayTeamID: strp(f.spare.ID)}, ProposedBy: "alice",
	})
	require.NoError(t, err)

	other := &model.MasterTeam{TeamName: "Other", ClubName: "Club", ClubKey: "club", Gender: model.GenderFemale}
	require.NoError(t, f.st.CreateTeam(ctx, other))
	require.NoError(t, f.st.DeprecateTeam(ctx, f.spare.ID, other.ID))

	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidProposal)
	assert.Equal(t, f.away.ID, f.game(t).AwayTeamID)

	got, err := f.ledger.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionPending, got.Status)
}

func TestRevert_FollowsMergeOfOriginalTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID: "g1", Corrected: model.GameFields{HomeTeamID: strp(f.spare.ID)}, ProposedBy: "alice",
	})
	require.NoError(t, err)
	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)

	kept := &model.MasterTeam{TeamName: "Team", ClubName: "Club", ClubKey: "club", Age: "2014", Gender: model.GenderFemale}
	require.NoError(t, f.st.CreateTeam(ctx, kept))
	merges := merge.New(f.st, 2025)
	m, err := merges.Propose(ctx, merge.Proposal{DeprecatedID: f.home.ID, CanonicalID: kept.ID, Actor: "ops"})
	require.NoError(t, err)
	_, err = merges.Execute(ctx, m.ID, "ops")
	require.NoError(t, err)

	_, err = f.ledger.Revert(ctx, c.ID, "carol")
	require.NoError(t, err)
	g := f.game(t)
	assert.Equal(t, kept.ID, g.HomeTeamID, "the original team was merged away")
	assert.True(t, g.IsImmutable)

	got, err := f.ledger.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Original)
	assert.Equal(t, f.home.ID, *got.Original.HomeTeamID, "the ledger keeps the original snapshot")
}

func TestRevert_RefusesSelfPairing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID: "g1", Corrected: model.GameFields{HomeTeamID: strp(f.spare.ID)}, ProposedBy: "alice",
	})
	require.NoError(t, err)
	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)

	// The original home team is folded into the away team.
	require.NoError(t, f.st.DeprecateTeam(ctx, f.home.ID, f.away.ID))

	_, err = f.ledger.Revert(ctx, c.ID, "carol")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, f.spare.ID, f.game(t).HomeTeamID)

	got, err := f.ledger.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionApproved, got.Status)
}

func TestApplyAndRevert_LocksUnfinalizedGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok, err := f.st.InsertGameIfAbsent(ctx, &model.GameRecord{
		GameUID: "g2", Provider: "gotsport", HomeTeamID: f.home.ID, AwayTeamID: f.away.ID,
		GameDate: "2024-10-12", HomeScore: 0, AwayScore: 0, NaturalKey: "nk-g2",
	})
	require.NoError(t, err)
	require.True(t, ok)

	c, err := f.ledger.Propose(ctx, Proposal{
		GameUID: "g2", Corrected: model.GameFields{HomeScore: intp(1)}, ProposedBy: "alice",
	})
	require.NoError(t, err)
	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	require.NoError(t, err)

	g, err := f.st.GetGame(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, 1, g.HomeScore)
	assert.True(t, g.IsImmutable)

	_, err = f.ledger.Revert(ctx, c.ID, "carol")
	require.NoError(t, err)
	g, err = f.st.GetGame(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, 0, g.HomeScore)
	assert.True(t, g.IsImmutable)
}

func TestPropose_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		p    Proposal
		want error
	}{
		{"missing game", Proposal{GameUID: "nope", Corrected: model.GameFields{HomeScore: intp(1)}, ProposedBy: "a"}, ErrNotFound},
		{"no change", Proposal{GameUID: "g1", Corrected: model.GameFields{HomeScore: intp(3)}, ProposedBy: "a"}, ErrInvalidProposal},
		{"empty", Proposal{GameUID: "g1", ProposedBy: "a"}, ErrInvalidProposal},
		{"no proposer", Proposal{GameUID: "g1", Corrected: model.GameFields{HomeScore: intp(1)}}, ErrInvalidProposal},
		{"unknown team", Proposal{GameUID: "g1", Corrected: model.GameFields{HomeTeamID: strp("ghost")}, ProposedBy: "a"}, ErrNotFound},
		{"same team both sides", Proposal{GameUID: "g1", Corrected: model.GameFields{AwayTeamID: strp(f.home.ID)}, ProposedBy: "a"}, ErrInvalidProposal},
		{"negative score", Proposal{GameUID: "g1", Corrected: model.GameFields{AwayScore: intp(-1)}, ProposedBy: "a"}, ErrInvalidProposal},
		{"bad type", Proposal{GameUID: "g1", Type: "weather", Corrected: model.GameFields{HomeScore: intp(1)}, ProposedBy: "a"}, ErrInvalidProposal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Propose(ctx, tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.ledger.Propose(ctx, Proposal{GameUID: "g1", Corrected: model.GameFields{AwayScore: intp(4)}, ProposedBy: "alice"})
	require.NoError(t, err)

	rejected, err := f.ledger.Reject(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionRejected, rejected.Status)

	_, err = f.ledger.Reject(ctx, c.ID, "bob")
	require.NoError(t, err)

	_, err = f.ledger.Apply(ctx, c.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.ledger.Revert(ctx, c.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, f.game(t).AwayScore)

	list, err := f.ledger.List(ctx, store.CorrectionFilter{GameUID: "g1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDirectWriteToLockedGameFails(t *testing.T) {
	f := newFixture(t)
	err := f.st.UpdateGameFields(context.Background(), "g1", model.GameFields{HomeScore: intp(9)})
	assert.ErrorIs(t, err, store.ErrGameImmutable)

	// Unlocking without an open correction is refused by the database.
	err = f.st.UnlockGame(context.Background(), "g1", "correction:missing")
	assert.Error(t, err)
}
