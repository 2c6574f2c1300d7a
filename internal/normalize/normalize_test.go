package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/teamresolve/internal/model"
)

func TestNormalize_ClubPrefixVariants(t *testing.T) {
	n := New(DefaultOptions())
	for _, name := range []string{"PHOENIX PREMIER FC B2014 BLACK", "Phoenix Premier FC 14B Black"} {
		t.Run(name, func(t *testing.T) {
			d := n.Normalize(name, "Phoenix Premier FC")
			assert.Equal(t, "Phoenix Premier FC", d.Club)
			require.NotNil(t, d.Age)
			assert.Equal(t, "2014", d.Age.String())
			assert.Equal(t, []string{}, d.Tier)
			assert.Equal(t, []string{"Black"}, d.Squad)
			assert.Empty(t, d.Extra)
			assert.Equal(t, model.GenderMale, d.GenderHint)
		})
	}
}

func TestNormalize_CombinedRangeUsesOlderYear(t *testing.T) {
	n := New(DefaultOptions())
	tests := []struct {
		name string
		want string
	}{
		{"Rush 11/12B", "2011"},
		{"Rush 2011/2012", "2011"},
		{"Rush G2011-12", "2011"},
		{"Rush 2012 / 2011", "2011"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := n.Normalize(tt.name, "Rush")
			require.NotNil(t, d.Age)
			assert.Equal(t, tt.want, d.Age.String())
		})
	}
}

func TestNormalize_AgePriority(t *testing.T) {
	n := New(DefaultOptions())

	// A combined range wins over a single year elsewhere in the name.
	d := n.Normalize("United 2013 10/11G", "United")
	require.NotNil(t, d.Age)
	assert.Equal(t, "2010", d.Age.String())
	assert.Equal(t, []string{"2013"}, d.Extra)

	// Gendered birth year wins over a bracket.
	d = n.Normalize("United U12 G2013", "United")
	require.NotNil(t, d.Age)
	assert.Equal(t, "2013", d.Age.String())
	assert.Equal(t, model.GenderFemale, d.GenderHint)

	d = n.Normalize("United U-12", "United")
	require.NotNil(t, d.Age)
	assert.Equal(t, Age{Kind: Bracket, Value: 12}, *d.Age)
}

func TestNormalize_ImplausibleTwoDigitYearLeftAlone(t *testing.T) {
	n := New(DefaultOptions())
	d := n.Normalize("Legends 95B", "Legends")
	assert.Nil(t, d.Age)
	assert.Equal(t, []string{"95B"}, d.Extra)
}

func TestNormalize_MissingAgeIsNull(t *testing.T) {
	n := New(DefaultOptions())
	d := n.Normalize("Phoenix Premier FC Black", "Phoenix Premier FC")
	assert.Nil(t, d.Age)
	assert.Equal(t, "", d.AgeString())
	assert.Equal(t, []string{"Black"}, d.Squad)
}

func TestNormalize_TierLongestMatchFirst(t *testing.T) {
	n := New(DefaultOptions())

	d := n.Normalize("Solar SC 2012G ECNL RL", "Solar SC")
	assert.Equal(t, []string{"ECNL RL"}, d.Tier)
	assert.Empty(t, d.Extra)

	d = n.Normalize("Solar SC 2012G Pre-ECNL", "Solar SC")
	assert.Equal(t, []string{"Pre-ECNL"}, d.Tier)

	d = n.Normalize("Solar SC 2012G ECNL", "Solar SC")
	assert.Equal(t, []string{"ECNL"}, d.Tier)

	d = n.Normalize("Solar SC Girls Academy 2012", "Solar SC")
	assert.Equal(t, []string{"GA"}, d.Tier)
	assert.Equal(t, "", string(d.GenderHint))
}

func TestNormalize_SquadQualifiers(t *testing.T) {
	n := New(DefaultOptions())
	d := n.Normalize("FC Dallas 2010B North II - Smith", "FC Dallas")
	assert.Equal(t, []string{"North", "II", "Smith"}, d.Squad)

	d = n.Normalize("FC Dallas 2010B Hawks", "FC Dallas")
	assert.Empty(t, d.Squad)
	assert.Equal(t, []string{"Hawks"}, d.Extra)
}

func TestNormalize_NoClubName(t *testing.T) {
	n := New(DefaultOptions())

	d := n.Normalize("Phoenix Premier FC B2014 Black", "")
	assert.Equal(t, "Phoenix Premier FC", d.Club)
	assert.Equal(t, "2014", d.AgeString())
	assert.Equal(t, []string{"Black"}, d.Squad)

	d = n.Normalize("Red Star FC Premier Black", "")
	assert.Equal(t, "Red Star FC", d.Club)
	assert.Equal(t, []string{"Premier"}, d.Tier)
	assert.Equal(t, []string{"Black"}, d.Squad)
}

func TestNormalize_ClubNameNotPrefix(t *testing.T) {
	n := New(DefaultOptions())
	d := n.Normalize("PPFC 2014 Black", "Phoenix Premier FC")
	assert.Equal(t, "Phoenix Premier FC", d.Club)
	assert.Equal(t, []string{"PPFC"}, d.Extra)
}

func TestNormalize_Deterministic(t *testing.T) {
	n := New(DefaultOptions())
	a := n.Normalize("Árbol Élite FC 2013G Blue", "Árbol Élite FC")
	b := n.Normalize("Árbol Élite FC 2013G Blue", "Árbol Élite FC")
	assert.Equal(t, a, b)
	assert.Equal(t, "arbol elite blue", a.MatchText())
}

func TestNormalize_Total(t *testing.T) {
	n := New(DefaultOptions())
	for _, in := range []string{"", "   ", "-", " - ", "2014", "///", "U"} {
		assert.NotPanics(t, func() { n.Normalize(in, "") }, in)
	}
}

func TestParseAgeGroup(t *testing.T) {
	n := New(DefaultOptions())

	a, g := n.ParseAgeGroup("U-12 Boys")
	require.NotNil(t, a)
	assert.Equal(t, "U12", a.String())
	assert.Equal(t, model.Gender(""), g)

	a, g = n.ParseAgeGroup("G2009")
	require.NotNil(t, a)
	assert.Equal(t, "2009", a.String())
	assert.Equal(t, model.GenderFemale, g)

	a, _ = n.ParseAgeGroup("Open")
	assert.Nil(t, a)
}

func TestAgeDistance(t *testing.T) {
	y14 := &Age{Kind: BirthYear, Value: 2014}
	y13 := &Age{Kind: BirthYear, Value: 2013}
	u12 := &Age{Kind: Bracket, Value: 12}

	d, ok := AgeDistance(y14, y13, 0)
	assert.True(t, ok)
	assert.Equal(t, 1, d)

	_, ok = AgeDistance(y14, u12, 0)
	assert.False(t, ok)

	d, ok = AgeDistance(y13, u12, 2025)
	assert.True(t, ok)
	assert.Equal(t, 0, d)

	_, ok = AgeDistance(nil, y14, 2025)
	assert.False(t, ok)
}

func TestNeighbors(t *testing.T) {
	assert.Equal(t, []string{"2013", "2014", "2015"}, Neighbors(&Age{Kind: BirthYear, Value: 2014}, 0))
	assert.ElementsMatch(t,
		[]string{"2012", "2013", "2014", "U11", "U12", "U13"},
		Neighbors(&Age{Kind: BirthYear, Value: 2013}, 2025))
	assert.Nil(t, Neighbors(nil, 2025))
}

func TestAge_JSON(t *testing.T) {
	b, err := json.Marshal(Descriptor{Age: &Age{Kind: Bracket, Value: 11}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"age":"U11"`)

	var d Descriptor
	require.NoError(t, json.Unmarshal(b, &d))
	assert.Equal(t, "U11", d.AgeString())
}

func TestFoldAndClubKey(t *testing.T) {
	assert.Equal(t, "st louis f c", Fold("St. Louis  F-C"))
	assert.Equal(t, "phoenix premier", ClubKey("Phoenix Premier F.C."))
	assert.Equal(t, "phoenix premier", ClubKey("Phoenix Premier Soccer Club"))
	assert.Equal(t, "fc", ClubKey("FC"))
}
