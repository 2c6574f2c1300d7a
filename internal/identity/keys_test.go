package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
)

func TestGameUID_Deterministic(t *testing.T) {
	a := GameUID("gotsport", "100", "200", "2024-09-14", 2, 1)
	b := GameUID("gotsport", "100", "200", "2024-09-14", 2, 1)
	assert.Equal(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestGameUID_OrientationIndependent(t *testing.T) {
	home := GameUID("gotsport", "100", "200", "2024-09-14", 2, 1)
	mirrored := GameUID("gotsport", "200", "100", "2024-09-14", 1, 2)
	assert.Equal(t, home, mirrored)
}

func TestGameUID_Distinguishes(t *testing.T) {
	base := GameUID("gotsport", "100", "200", "2024-09-14", 2, 1)
	assert.NotEqual(t, base, GameUID("gotsport", "100", "200", "2024-09-14", 1, 2))
	assert.NotEqual(t, base, GameUID("gotsport", "100", "200", "2024-09-15", 2, 1))
	assert.NotEqual(t, base, GameUID("tgs", "100", "200", "2024-09-14", 2, 1))
}

func TestNaturalGameKey(t *testing.T) {
	assert.Equal(t,
		NaturalGameKey("p", "a", "b", "2024-01-01"),
		NaturalGameKey("p", "b", "a", "2024-01-01"))
}

func TestAliasKey(t *testing.T) {
	n := normalize.New(normalize.DefaultOptions())
	rec := model.ProviderTeamRecord{ProviderTeamID: " 4410 ", TeamName: "Solar SC 2012G ECNL RL", ClubName: "Solar SC"}
	d := n.Normalize(rec.TeamName, rec.ClubName)

	assert.Equal(t, "4410", AliasKey(model.Provider{Code: "gotsport"}, rec, d))
	assert.Equal(t, "4410|2012|ecnl-rl", AliasKey(model.Provider{Code: "club", ReusesClubIDs: true}, rec, d))

	rec.Division = "Premier I"
	assert.Equal(t, "4410|2012|premier-i", AliasKey(model.Provider{Code: "club", ReusesClubIDs: true}, rec, d))
}

func TestStructuralKey_Missing(t *testing.T) {
	assert.Equal(t, "77|na|na", StructuralKey("77", "", ""))
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "gotsport|F|2012", PartitionKey("gotsport", model.GenderFemale, "2012"))
	assert.Equal(t, "M|na", BlockingKey(model.GenderMale, ""))
}
