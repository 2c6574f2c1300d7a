// Package identity builds the deterministic lookup keys and game ids used by the matcher and importer.
package identity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
)

// gameNamespace scopes game_uid generation. Changing it re-keys every game.
var gameNamespace = uuid.MustParse("6f1c7a52-2b1e-5f0e-9a3d-4c2b8e7d1a90")

// DirectKey identifies a provider team id across providers.
func DirectKey(provider, providerTeamID string) string {
	return provider + ":" + providerTeamID
}

// StructuralKey derives a synthetic provider team id for providers that
// reuse one club id across age and division splits.
func StructuralKey(baseID, age, division string) string {
	if age == "" {
		age = "na"
	}
	if division == "" {
		division = "na"
	}
	return strings.Join([]string{strings.TrimSpace(baseID), age, division}, "|")
}

// Division picks the division component of a structural key: the explicit
// division tag, else the parsed tiers.
func Division(rec model.ProviderTeamRecord, d normalize.Descriptor) string {
	if div := normalize.Fold(rec.Division); div != "" {
		return strings.ReplaceAll(div, " ", "-")
	}
	if len(d.Tier) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d.Tier))
	for _, t := range d.Tier {
		parts = append(parts, strings.ReplaceAll(normalize.Fold(t), " ", "-"))
	}
	return strings.Join(parts, "+")
}

// AliasKey returns the provider_team_id an alias for rec is stored under.
func AliasKey(p model.Provider, rec model.ProviderTeamRecord, d normalize.Descriptor) string {
	id := strings.TrimSpace(rec.ProviderTeamID)
	if !p.ReusesClubIDs {
		return id
	}
	return StructuralKey(id, d.AgeString(), Division(rec, d))
}

// BlockingKey groups records whose candidates come from the same gender
// and age partition.
func BlockingKey(g model.Gender, age string) string {
	if age == "" {
		age = "na"
	}
	return string(g) + "|" + age
}

// PartitionKey is the importer's unit of sequential resolution.
func PartitionKey(provider string, g model.Gender, age string) string {
	return provider + "|" + BlockingKey(g, age)
}

type side struct {
	key   string
	score int
}

// GameUID derives the game id from provider, alias keys, date and scores.
// The home/away orientation does not affect the result, so a game reported
// from either team's perspective yields the same id.
func GameUID(provider, homeKey, awayKey, date string, homeScore, awayScore int) string {
	sides := []side{{homeKey, homeScore}, {awayKey, awayScore}}
	sort.Slice(sides, func(i, j int) bool {
		if sides[i].key != sides[j].key {
			return sides[i].key < sides[j].key
		}
		return sides[i].score < sides[j].score
	})
	name := strings.Join([]string{
		provider,
		sides[0].key, strconv.Itoa(sides[0].score),
		sides[1].key, strconv.Itoa(sides[1].score),
		date,
	}, "\x1f")
	return uuid.NewSHA1(gameNamespace, []byte(name)).String()
}

// NaturalGameKey identifies a game by provider, date and the pair of alias
// keys, ignoring scores and orientation. Two uids sharing a natural key are
// conflicting reports of one game.
func NaturalGameKey(provider, homeKey, awayKey, date string) string {
	a, b := homeKey, awayKey
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s|%s|%s", provider, date, a, b)
}
