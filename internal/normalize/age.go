package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

// AgeKind distinguishes birth-year cohorts from U<n> brackets.
type AgeKind string

// Age kinds.
const (
	BirthYear AgeKind = "birth_year"
	Bracket   AgeKind = "bracket"
)

// Age is a normalized team age: a birth year (2014) or a bracket (U12).
type Age struct {
	Kind  AgeKind
	Value int
}

// String renders the age as "2014" or "U12".
func (a Age) String() string {
	if a.Kind == Bracket {
		return "U" + strconv.Itoa(a.Value)
	}
	return strconv.Itoa(a.Value)
}

// MarshalJSON encodes the age as its string form.
func (a Age) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes "2014" or "U12".
func (a *Age) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "normalize: decode age")
	}
	parsed, ok := ParseAge(s)
	if !ok {
		return eris.Errorf("normalize: invalid age %q", s)
	}
	*a = *parsed
	return nil
}

// BirthYearIn converts the age to a birth year. Brackets need the season year.
func (a Age) BirthYearIn(seasonYear int) (int, bool) {
	if a.Kind == BirthYear {
		return a.Value, true
	}
	if seasonYear <= 0 {
		return 0, false
	}
	return seasonYear - a.Value, true
}

// ParseAge parses a stored age string ("2014", "U12", "U-12"). It applies
// no plausibility window; use Normalizer.ParseAgeGroup for raw feed values.
func ParseAge(s string) (*Age, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, false
	}
	if m := bracketRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &Age{Kind: Bracket, Value: n}, true
	}
	if len(s) == 4 {
		if n, err := strconv.Atoi(s); err == nil {
			return &Age{Kind: BirthYear, Value: n}, true
		}
	}
	return nil, false
}

// AgeDistance returns the cohort distance between a and b. The second
// return is false when either is missing or a bracket cannot be converted.
func AgeDistance(a, b *Age, seasonYear int) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if a.Kind == b.Kind {
		return abs(a.Value - b.Value), true
	}
	ya, ok := a.BirthYearIn(seasonYear)
	if !ok {
		return 0, false
	}
	yb, ok := b.BirthYearIn(seasonYear)
	if !ok {
		return 0, false
	}
	return abs(ya - yb), true
}

// Neighbors lists the same and adjacent cohorts of a, in both notations
// when seasonYear allows conversion.
func Neighbors(a *Age, seasonYear int) []string {
	if a == nil {
		return nil
	}
	var out []string
	add := func(x Age) {
		out = append(out, x.String())
	}
	for d := -1; d <= 1; d++ {
		add(Age{Kind: a.Kind, Value: a.Value + d})
	}
	if seasonYear > 0 {
		y, _ := a.BirthYearIn(seasonYear)
		for d := -1; d <= 1; d++ {
			if a.Kind == BirthYear {
				add(Age{Kind: Bracket, Value: seasonYear - (y + d)})
			} else {
				add(Age{Kind: BirthYear, Value: y + d})
			}
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var (
	// 2011/2012, 11/12, 2011-12, B11/12, 11/12B
	combinedRe = regexp.MustCompile(`^([BG])?(\d{2}|\d{4})[/-](\d{2}|\d{4})([BG])?$`)
	// B2014, G09, 2014B, 14G, 2014
	genderedPrefixRe = regexp.MustCompile(`^([BG])(\d{2}|\d{4})$`)
	genderedSuffixRe = regexp.MustCompile(`^(\d{2}|\d{4})([BG])$`)
	bareYearRe       = regexp.MustCompile(`^\d{4}$`)
	// U12, U-12, U12B
	bracketRe = regexp.MustCompile(`^U-?(\d{1,2})([BG])?$`)
)

type ageMatch struct {
	age    Age
	gender model.Gender
}

func genderLetter(s string) model.Gender {
	switch s {
	case "B":
		return model.GenderMale
	case "G":
		return model.GenderFemale
	}
	return ""
}

// expandYear turns a two or four digit token into a plausible birth year.
// century supplies the leading digits for the second half of "2011-12".
func (n *Normalizer) expandYear(tok string, century int) (int, bool) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	if len(tok) == 2 {
		if century == 0 {
			century = 2000
		}
		v += century
	}
	if v < n.opts.MinBirthYear || v > n.opts.MaxBirthYear {
		return 0, false
	}
	return v, true
}

func (n *Normalizer) matchCombined(tok string) (ageMatch, bool) {
	m := combinedRe.FindStringSubmatch(tok)
	if m == nil {
		return ageMatch{}, false
	}
	first, ok := n.expandYear(m[2], 0)
	if !ok {
		return ageMatch{}, false
	}
	second, ok := n.expandYear(m[3], first/100*100)
	if !ok {
		return ageMatch{}, false
	}
	if d := abs(second - first); d < 1 || d > 2 {
		return ageMatch{}, false
	}
	g := genderLetter(m[1])
	if g == "" {
		g = genderLetter(m[4])
	}
	return ageMatch{age: Age{Kind: BirthYear, Value: min(first, second)}, gender: g}, true
}

func (n *Normalizer) matchGendered(tok string) (ageMatch, bool) {
	var letter, digits string
	if m := genderedPrefixRe.FindStringSubmatch(tok); m != nil {
		letter, digits = m[1], m[2]
	} else if m := genderedSuffixRe.FindStringSubmatch(tok); m != nil {
		digits, letter = m[1], m[2]
	} else if bareYearRe.MatchString(tok) {
		digits = tok
	} else {
		return ageMatch{}, false
	}
	y, ok := n.expandYear(digits, 0)
	if !ok {
		return ageMatch{}, false
	}
	return ageMatch{age: Age{Kind: BirthYear, Value: y}, gender: genderLetter(letter)}, true
}

func matchBracket(tok string) (ageMatch, bool) {
	m := bracketRe.FindStringSubmatch(tok)
	if m == nil {
		return ageMatch{}, false
	}
	v, _ := strconv.Atoi(m[1])
	if v < 4 || v > 23 {
		return ageMatch{}, false
	}
	return ageMatch{age: Age{Kind: Bracket, Value: v}, gender: genderLetter(m[2])}, true
}

// findAge runs the age patterns in priority order over toks and returns the
// index of the first token matched by the highest-priority pattern.
func (n *Normalizer) findAge(toks []string) (int, ageMatch, bool) {
	matchers := []func(string) (ageMatch, bool){
		n.matchCombined,
		n.matchGendered,
		matchBracket,
	}
	for _, match := range matchers {
		for i, tok := range toks {
			if m, ok := match(strings.ToUpper(tok)); ok {
				return i, m, true
			}
		}
	}
	return -1, ageMatch{}, false
}
