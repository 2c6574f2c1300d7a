package scorer

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
)

// Component names in a breakdown.
const (
	ComponentName   = "name"
	ComponentGender = "gender"
	ComponentAge    = "age"
	ComponentPrior  = "sibling_prior"
)

// Input is one side of a pairing.
type Input struct {
	Descriptor normalize.Descriptor
	Gender     model.Gender
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	name, gender, age, prior float64
	adjacent                 float64
	seasonYear               int
}

// New normalizes the configured weights to sum to 1.
func New(c config.ScorerConfig, seasonYear int) *Scorer {
	sum := WeightSum(c)
	if sum <= 0 {
		c = DefaultScorerConfig()
		sum = WeightSum(c)
	}
	return &Scorer{
		name:       c.NameWeight / sum,
		gender:     c.GenderWeight / sum,
		age:        c.AgeWeight / sum,
		prior:      c.PriorWeight / sum,
		adjacent:   c.AdjacentAgeCredit,
		seasonYear: seasonYear,
	}
}

// Score compares query against candidate. siblingPrior is true when the
// candidate's club already has an approved alias from the query's provider
// for a different team.
func (s *Scorer) Score(query, candidate Input, siblingPrior bool) model.ScoreBreakdown {
	var missing []string

	nameSim := NameSimilarity(query.Descriptor.MatchText(), candidate.Descriptor.MatchText())

	genderOK := query.Gender != "" && query.Gender == candidate.Gender
	if query.Gender == "" || candidate.Gender == "" {
		missing = append(missing, ComponentGender)
	}

	ageVal := 0.0
	ageExact := false
	if query.Descriptor.Age == nil || candidate.Descriptor.Age == nil {
		missing = append(missing, ComponentAge)
	} else if d, ok := normalize.AgeDistance(query.Descriptor.Age, candidate.Descriptor.Age, s.seasonYear); ok {
		switch d {
		case 0:
			ageVal, ageExact = 1, true
		case 1:
			ageVal = s.adjacent
		}
	}

	components := []model.ScoreComponent{
		component(ComponentName, nameSim, s.name),
		component(ComponentGender, boolVal(genderOK), s.gender),
		component(ComponentAge, ageVal, s.age),
		component(ComponentPrior, boolVal(siblingPrior), s.prior),
	}
	var total float64
	for _, c := range components {
		total += c.Contribution
	}

	return model.ScoreBreakdown{
		Total:          clamp(round4(total)),
		Components:     components,
		ExactAgreement: genderOK && ageExact,
		Missing:        missing,
	}
}

// NameSimilarity is the better of the Levenshtein ratio and the token-set
// Dice coefficient of two folded strings.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	lev := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	return clamp(max(lev, tokenDice(a, b)))
}

func tokenDice(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}

func component(name string, value, weight float64) model.ScoreComponent {
	return model.ScoreComponent{
		Name:         name,
		Value:        round4(value),
		Weight:       round4(weight),
		Contribution: value * weight,
	}
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
