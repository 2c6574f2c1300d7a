// Package normalize parses free-text team and club names into structured descriptors.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/teamresolve/internal/model"
)

// Options bounds the birth years the normalizer will accept.
type Options struct {
	MinBirthYear int
	MaxBirthYear int
	// SeasonYear converts U<n> brackets to birth years. Zero leaves them unconverted.
	SeasonYear int
}

// DefaultOptions returns the youth birth-year window 2000-2025.
func DefaultOptions() Options {
	return Options{MinBirthYear: 2000, MaxBirthYear: 2025}
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer. Zero bounds fall back to the defaults.
func New(opts Options) *Normalizer {
	def := DefaultOptions()
	if opts.MinBirthYear == 0 {
		opts.MinBirthYear = def.MinBirthYear
	}
	if opts.MaxBirthYear == 0 {
		opts.MaxBirthYear = def.MaxBirthYear
	}
	return &Normalizer{opts: opts}
}

// SeasonYear returns the configured season year, or zero.
func (n *Normalizer) SeasonYear() int { return n.opts.SeasonYear }

// Descriptor is the structured form of a team name.
type Descriptor struct {
	Club       string       `json:"club"`
	Age        *Age         `json:"age"`
	Tier       []string     `json:"tier"`
	Squad      []string     `json:"squad"`
	Extra      []string     `json:"extra"`
	GenderHint model.Gender `json:"gender_hint,omitempty"`
}

// ClubKey is the folded club name used for blocking and sibling lookups.
func (d Descriptor) ClubKey() string { return ClubKey(d.Club) }

// MatchText is the folded club plus qualifier text compared by the scorer.
func (d Descriptor) MatchText() string {
	parts := []string{d.ClubKey()}
	for _, group := range [][]string{d.Tier, d.Squad, d.Extra} {
		for _, s := range group {
			if f := Fold(s); f != "" {
				parts = append(parts, f)
			}
		}
	}
	return strings.Join(parts, " ")
}

// AgeString returns the age as a string, or "" when missing.
func (d Descriptor) AgeString() string {
	if d.Age == nil {
		return ""
	}
	return d.Age.String()
}

var (
	dashSuffixRe = regexp.MustCompile(`\s+[-–—]\s+`)
	slashSpaceRe = regexp.MustCompile(`(\d)\s*/\s*(\d)`)
)

type word struct {
	raw  string
	fold string
}

// Normalize parses teamName, optionally anchored by clubName. It never
// fails: unrecognized tokens land in Extra.
func (n *Normalizer) Normalize(teamName, clubName string) Descriptor {
	d := Descriptor{Tier: []string{}, Squad: []string{}, Extra: []string{}}
	team := cleanSpace(teamName)
	club := cleanSpace(clubName)

	var suffix string
	if locs := dashSuffixRe.FindAllStringIndex(team, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		suffix = strings.TrimSpace(team[last[1]:])
		team = strings.TrimSpace(team[:last[0]])
	}
	team = slashSpaceRe.ReplaceAllString(team, "$1/$2")

	toks := strings.FieldsFunc(team, func(r rune) bool {
		switch r {
		case ' ', ',', '(', ')', '[', ']', '|', '_', ';', ':':
			return true
		}
		return false
	})

	if club != "" {
		d.Club = club
		toks = stripLeadingClub(toks, club)
	}

	// Age first, on whole tokens so "U-12" and "2011-12" survive.
	ageIdx, am, hasAge := n.findAge(toks)
	if hasAge {
		a := am.age
		d.Age = &a
		d.GenderHint = am.gender
	}

	// Split the remaining tokens into words around the age position.
	var before, after []word
	for i, t := range toks {
		if i == ageIdx {
			continue
		}
		for _, piece := range strings.FieldsFunc(t, func(r rune) bool { return r == '-' || r == '/' }) {
			w := word{raw: piece, fold: Fold(piece)}
			if w.fold == "" {
				continue
			}
			if hasAge && i > ageIdx {
				after = append(after, w)
			} else {
				before = append(before, w)
			}
		}
	}

	words := append(before, after...)
	start := 0
	if club == "" {
		end := len(before)
		if !hasAge || end == 0 {
			end = len(words)
		}
		end = trimClassifiedTail(words, end)
		raws := make([]string, 0, end)
		for _, w := range words[:end] {
			raws = append(raws, w.raw)
		}
		d.Club = strings.Join(raws, " ")
		start = end
	}

	rest := words[start:]
	used := make([]bool, len(rest))
	type hit struct {
		pos  int
		name string
	}
	var tiers []hit
	for _, entry := range tierVocabulary {
		for i := 0; i+len(entry.words) <= len(rest); i++ {
			if matchPhrase(rest, used, i, entry.words) {
				for k := range entry.words {
					used[i+k] = true
				}
				tiers = append(tiers, hit{pos: i, name: entry.name})
			}
		}
	}
	for i := 1; i < len(tiers); i++ {
		for j := i; j > 0 && tiers[j].pos < tiers[j-1].pos; j-- {
			tiers[j], tiers[j-1] = tiers[j-1], tiers[j]
		}
	}
	for _, h := range tiers {
		if !contains(d.Tier, h.name) {
			d.Tier = append(d.Tier, h.name)
		}
	}

	for i, w := range rest {
		if used[i] {
			continue
		}
		switch {
		case genderWords[w.fold]:
			if d.GenderHint == "" {
				if g, ok := model.ParseGender(w.fold); ok {
					d.GenderHint = g
				}
			}
		case isSquadWord(w.fold):
			d.Squad = append(d.Squad, squadDisplay(w))
		default:
			d.Extra = append(d.Extra, w.raw)
		}
	}
	if suffix != "" {
		d.Squad = append(d.Squad, suffix)
	}
	return d
}

// ParseAgeGroup extracts an age from a raw age_group value such as
// "U12", "2014", "B2014" or "U-12 Boys".
func (n *Normalizer) ParseAgeGroup(s string) (*Age, model.Gender) {
	toks := strings.Fields(strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(s))
	_, m, ok := n.findAge(toks)
	if !ok {
		return nil, ""
	}
	a := m.age
	return &a, m.gender
}

func stripLeadingClub(toks []string, club string) []string {
	target := Fold(club)
	for k := 1; k <= len(toks); k++ {
		f := Fold(strings.Join(toks[:k], " "))
		if f == target {
			return toks[k:]
		}
		if len(f) > len(target) {
			break
		}
	}
	return toks
}

func matchPhrase(words []word, used []bool, at int, phrase []string) bool {
	for k, p := range phrase {
		if used[at+k] || words[at+k].fold != p {
			return false
		}
	}
	return true
}

// trimClassifiedTail walks back from end over tier and squad words so a
// club run like "Phoenix FC Premier" yields club "Phoenix FC".
func trimClassifiedTail(words []word, end int) int {
	for end > 1 {
		if isSquadWord(words[end-1].fold) || genderWords[words[end-1].fold] {
			end--
			continue
		}
		n := tierSuffixLen(words[:end])
		if n == 0 || n >= end {
			break
		}
		end -= n
	}
	return end
}

func tierSuffixLen(words []word) int {
	for _, entry := range tierVocabulary {
		l := len(entry.words)
		if l > len(words) {
			continue
		}
		ok := true
		for k, p := range entry.words {
			if words[len(words)-l+k].fold != p {
				ok = false
				break
			}
		}
		if ok {
			return l
		}
	}
	return 0
}

func isSquadWord(f string) bool {
	if squadColors[f] || squadRegions[f] {
		return true
	}
	_, ok := squadNumerals[f]
	return ok
}

func squadDisplay(w word) string {
	if n, ok := squadNumerals[w.fold]; ok {
		return n
	}
	if len(w.fold) == 2 {
		return strings.ToUpper(w.fold)
	}
	// Casers keep state between calls and cannot be shared.
	return cases.Title(language.English).String(w.fold)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
