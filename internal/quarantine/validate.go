package quarantine

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/teamresolve/internal/model"
)

// DateLayouts are the accepted game_date formats, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	time.RFC3339,
}

// NormalizeDate parses s with DateLayouts and returns it as 2006-01-02.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParseScore reads a non-negative integer score.
func ParseScore(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ValidateRow runs the checks every row must pass before resolution. ok is
// false with the first failing reason and a detail naming the field.
func ValidateRow(row model.FeedRow) (model.QuarantineReason, string, bool) {
	if strings.TrimSpace(row.Provider) == "" {
		return model.ReasonMissingIdentityField, "provider", false
	}
	for _, side := range []struct {
		name string
		s    model.FeedSide
	}{{"team", row.Team}, {"opponent", row.Opponent}} {
		if strings.TrimSpace(side.s.ProviderTeamID) == "" {
			return model.ReasonMissingIdentityField, side.name + ".provider_team_id", false
		}
		if strings.TrimSpace(side.s.TeamName) == "" {
			return model.ReasonMissingIdentityField, side.name + ".team_name", false
		}
		if _, ok := model.ParseGender(side.s.Gender); !ok {
			return model.ReasonMissingIdentityField, side.name + ".gender", false
		}
	}
	if strings.TrimSpace(row.HomeScore) == "" {
		return model.ReasonMissingScore, "home_score", false
	}
	if strings.TrimSpace(row.AwayScore) == "" {
		return model.ReasonMissingScore, "away_score", false
	}
	if _, ok := ParseScore(row.HomeScore); !ok {
		return model.ReasonMissingScore, "home_score: " + strconv.Quote(row.HomeScore), false
	}
	if _, ok := ParseScore(row.AwayScore); !ok {
		return model.ReasonMissingScore, "away_score: " + strconv.Quote(row.AwayScore), false
	}
	if _, ok := NormalizeDate(row.GameDate); !ok {
		if strings.TrimSpace(row.GameDate) == "" {
			return model.ReasonInvalidDateFormat, "game_date: missing", false
		}
		return model.ReasonInvalidDateFormat, "game_date: " + strconv.Quote(row.GameDate), false
	}
	return "", "", true
}
