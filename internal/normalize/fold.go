package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// clubSuffixes are generic club words dropped from club keys so that
// "Phoenix Premier FC" and "Phoenix Premier Soccer Club" share a key.
var clubSuffixes = map[string]bool{
	"fc": true, "sc": true, "cf": true, "afc": true, "ysc": true, "ysa": true,
	"soccer": true, "club": true, "futbol": true, "football": true, "the": true,
}

// Fold lowercases s, strips accents, turns punctuation into spaces and
// collapses runs of whitespace.
func Fold(s string) string {
	// transform.Chain keeps state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)

	var b strings.Builder
	b.Grow(len(out))
	space := false
	for _, r := range out {
		switch {
		case r == '.' || r == '\'':
			// F.C. -> fc, St. -> st
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// ClubKey folds a club name and drops generic club words.
func ClubKey(club string) string {
	words := strings.Fields(Fold(club))
	kept := words[:0]
	for _, w := range words {
		if !clubSuffixes[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return strings.Join(words, " ")
	}
	return strings.Join(kept, " ")
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
