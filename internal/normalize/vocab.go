package normalize

import (
	"sort"
	"strings"
)

type tierEntry struct {
	words []string
	name  string
}

// tierVocabulary maps folded tier phrases to display names. Matching is
// longest phrase first.
var tierVocabulary = buildTiers(map[string]string{
	"ecnl rl":              "ECNL RL",
	"ecnl regional league": "ECNL RL",
	"ecrl":                 "ECNL RL",
	"ecnl":                 "ECNL",
	"pre ecnl":             "Pre-ECNL",
	"mls next":             "MLS Next",
	"mls next 2":           "MLS Next 2",
	"girls academy":        "GA",
	"ga":                   "GA",
	"ga aspire":            "GA Aspire",
	"npl":                  "NPL",
	"dpl":                  "DPL",
	"edp":                  "EDP",
	"usys national league": "National League",
	"national league":      "National League",
	"state league":         "State League",
	"regional league":      "Regional League",
	"super y":              "Super Y",
	"elite":                "Elite",
	"premier":              "Premier",
	"select":               "Select",
	"academy":              "Academy",
	"classic":              "Classic",
	"competitive":          "Competitive",
	"development":          "Development",
	"pre academy":          "Pre-Academy",
	"rec":                  "Rec",
	"recreational":         "Rec",
})

func buildTiers(m map[string]string) []tierEntry {
	out := make([]tierEntry, 0, len(m))
	for phrase, name := range m {
		out = append(out, tierEntry{words: strings.Fields(phrase), name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].words) != len(out[j].words) {
			return len(out[i].words) > len(out[j].words)
		}
		return strings.Join(out[i].words, " ") < strings.Join(out[j].words, " ")
	})
	return out
}

var squadColors = map[string]bool{
	"black": true, "white": true, "red": true, "blue": true, "green": true,
	"gold": true, "silver": true, "orange": true, "purple": true, "yellow": true,
	"navy": true, "maroon": true, "grey": true, "gray": true, "royal": true,
	"sky": true, "pink": true, "teal": true, "crimson": true, "scarlet": true,
}

var squadNumerals = map[string]string{
	"i": "I", "ii": "II", "iii": "III", "iv": "IV",
	"1": "1", "2": "2", "3": "3", "4": "4",
}

var squadRegions = map[string]bool{
	"north": true, "south": true, "east": true, "west": true, "central": true,
	"northeast": true, "northwest": true, "southeast": true, "southwest": true,
	"ne": true, "nw": true, "se": true, "sw": true,
}

var genderWords = map[string]bool{
	"boys": true, "girls": true, "boy": true, "girl": true,
}
