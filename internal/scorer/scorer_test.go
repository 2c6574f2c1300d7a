package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
)

var norm = normalize.New(normalize.DefaultOptions())

func input(team, club string, g model.Gender) Input {
	return Input{Descriptor: norm.Normalize(team, club), Gender: g}
}

func TestScore_FullAgreementAutoAcceptable(t *testing.T) {
	s := New(DefaultScorerConfig(), 0)
	q := input("Phoenix Premier FC B2014 Black", "Phoenix Premier FC", model.GenderMale)
	c := input("Phoenix Premier FC 14B Black", "Phoenix Premier FC", model.GenderMale)

	b := s.Score(q, c, false)
	assert.InDelta(t, 0.95, b.Total, 1e-9)
	assert.True(t, b.ExactAgreement)
	assert.Empty(t, b.Missing)
	require.Len(t, b.Components, 4)
	assert.Equal(t, ComponentName, b.Components[0].Name)
	assert.InDelta(t, 1.0, b.Components[0].Value, 1e-9)

	withPrior := s.Score(q, c, true)
	assert.InDelta(t, 1.0, withPrior.Total, 1e-9)
}

func TestScore_GenderDisagreementBelowAutoAccept(t *testing.T) {
	cfg := DefaultScorerConfig()
	require.NoError(t, ValidateConfig(cfg, 0.95))
	s := New(cfg, 0)

	names := [][2]string{
		{"Phoenix Premier FC 2014 Black", "Phoenix Premier FC"},
		{"Solar SC 2012 ECNL", "Solar SC"},
		{"Rush 11/12", "Rush"},
	}
	for _, n := range names {
		q := input(n[0], n[1], model.GenderMale)
		c := input(n[0], n[1], model.GenderFemale)
		for _, prior := range []bool{false, true} {
			b := s.Score(q, c, prior)
			assert.Less(t, b.Total, 0.95, n[0])
			assert.False(t, b.ExactAgreement)
		}
	}
}

func TestScore_Monotonic(t *testing.T) {
	s := New(DefaultScorerConfig(), 0)
	q := input("Phoenix Premier FC 2014 Black", "Phoenix Premier FC", model.GenderMale)

	// Same text, progressively more structured agreement.
	none := s.Score(q, input("Phoenix Premier FC 2010 Black", "Phoenix Premier FC", model.GenderFemale), false)
	gender := s.Score(q, input("Phoenix Premier FC 2010 Black", "Phoenix Premier FC", model.GenderMale), false)
	adjacent := s.Score(q, input("Phoenix Premier FC 2013 Black", "Phoenix Premier FC", model.GenderMale), false)
	exact := s.Score(q, input("Phoenix Premier FC 2014 Black", "Phoenix Premier FC", model.GenderMale), false)
	prior := s.Score(q, input("Phoenix Premier FC 2014 Black", "Phoenix Premier FC", model.GenderMale), true)

	assert.LessOrEqual(t, none.Total, gender.Total)
	assert.LessOrEqual(t, gender.Total, adjacent.Total)
	assert.LessOrEqual(t, adjacent.Total, exact.Total)
	assert.LessOrEqual(t, exact.Total, prior.Total)
	assert.Less(t, none.Total, prior.Total)
}

func TestScore_MissingAgeNeverAutoAccepts(t *testing.T) {
	s := New(DefaultScorerConfig(), 0)
	q := input("Phoenix Premier FC Black", "Phoenix Premier FC", model.GenderMale)
	c := input("Phoenix Premier FC 2014 Black", "Phoenix Premier FC", model.GenderMale)

	b := s.Score(q, c, true)
	assert.Less(t, b.Total, 0.95)
	assert.GreaterOrEqual(t, b.Total, 0.70)
	assert.False(t, b.ExactAgreement)
	assert.Contains(t, b.Missing, ComponentAge)
}

func TestScore_BracketVersusBirthYear(t *testing.T) {
	q := input("Rush U12", "Rush", model.GenderFemale)
	c := input("Rush 2013", "Rush", model.GenderFemale)

	withoutSeason := New(DefaultScorerConfig(), 0).Score(q, c, false)
	assert.False(t, withoutSeason.ExactAgreement)

	withSeason := New(DefaultScorerConfig(), 2025).Score(q, c, false)
	assert.True(t, withSeason.ExactAgreement)
	assert.Greater(t, withSeason.Total, withoutSeason.Total)
}

func TestNew_NormalizesWeights(t *testing.T) {
	s := New(config.ScorerConfig{NameWeight: 55, GenderWeight: 15, AgeWeight: 25, PriorWeight: 5}, 0)
	ref := New(DefaultScorerConfig(), 0)
	q := input("Rush 2012 Blue", "Rush", model.GenderMale)
	c := input("Rush 2012 Navy", "Rush", model.GenderMale)
	assert.InDelta(t, ref.Score(q, c, false).Total, s.Score(q, c, false).Total, 1e-4)
}

func TestNameSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, NameSimilarity("rush blue", "rush blue"), 1e-9)
	assert.InDelta(t, 0.0, NameSimilarity("", "rush"), 1e-9)
	assert.InDelta(t, 1.0, NameSimilarity("", ""), 1e-9)

	// Token reordering keeps similarity high via the Dice measure.
	assert.InDelta(t, 1.0, NameSimilarity("premier phoenix", "phoenix premier"), 1e-9)

	close := NameSimilarity("phoenix premier black", "phoenix premeir black")
	far := NameSimilarity("phoenix premier black", "tucson united white")
	assert.Greater(t, close, 0.85)
	assert.Less(t, far, 0.5)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultScorerConfig(), 0.95))

	weak := DefaultScorerConfig()
	weak.GenderWeight = 0.01
	err := ValidateConfig(weak, 0.95)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gender weight share")

	neg := DefaultScorerConfig()
	neg.NameWeight = -1
	assert.Error(t, ValidateConfig(neg, 0.95))

	assert.Error(t, ValidateConfig(config.ScorerConfig{}, 0.95))
}
