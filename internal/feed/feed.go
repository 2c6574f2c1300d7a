// Package feed reads upstream game rows from CSV, JSON and XLSX exports.
package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

// Format is an upstream file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ErrNoColumns is returned when a header row names no known column.
var ErrNoColumns = eris.New("feed: no recognized columns")

// Options apply to every reader.
type Options struct {
	// Provider fills rows whose provider column is absent or blank.
	Provider string
	// Source is recorded on each row for provenance. Defaults to the file name.
	Source string
	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
}

// ParseFormat maps a flag value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", eris.Errorf("feed: unknown format %q", s)
}

// ReadFile reads path in format, or infers the format from the extension
// when format is empty.
func ReadFile(ctx context.Context, path string, format Format, opts Options) ([]model.FeedRow, error) {
	if format == "" {
		f, err := ParseFormat(filepath.Ext(path))
		if err != nil {
			return nil, eris.Wrapf(err, "feed: infer format of %s", path)
		}
		format = f
	}
	if opts.Source == "" {
		opts.Source = filepath.Base(path)
	}

	if format == FormatXLSX {
		return ReadXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open file")
	}
	defer f.Close() //nolint:errcheck

	switch format {
	case FormatCSV:
		return ReadCSV(ctx, f, opts)
	default:
		return ReadJSON(ctx, f, opts)
	}
}

type setter func(r *model.FeedRow, v string)

func sideSetters(side func(*model.FeedRow) *model.FeedSide) map[string]setter {
	return map[string]setter{
		"provider_team_id": func(r *model.FeedRow, v string) { side(r).ProviderTeamID = v },
		"team_id":          func(r *model.FeedRow, v string) { side(r).ProviderTeamID = v },
		"team_name":        func(r *model.FeedRow, v string) { side(r).TeamName = v },
		"club_name":        func(r *model.FeedRow, v string) { side(r).ClubName = v },
		"club":             func(r *model.FeedRow, v string) { side(r).ClubName = v },
		"age_group":        func(r *model.FeedRow, v string) { side(r).AgeGroup = v },
		"gender":           func(r *model.FeedRow, v string) { side(r).Gender = v },
		"division":         func(r *model.FeedRow, v string) { side(r).Division = v },
		"state":            func(r *model.FeedRow, v string) { side(r).State = v },
	}
}

var columns = func() map[string]setter {
	m := map[string]setter{
		"provider":   func(r *model.FeedRow, v string) { r.Provider = v },
		"game_date":  func(r *model.FeedRow, v string) { r.GameDate = v },
		"date":       func(r *model.FeedRow, v string) { r.GameDate = v },
		"home_score": func(r *model.FeedRow, v string) { r.HomeScore = v },
		"away_score": func(r *model.FeedRow, v string) { r.AwayScore = v },
	}
	for k, fn := range sideSetters(func(r *model.FeedRow) *model.FeedSide { return &r.Team }) {
		m[k] = fn
	}
	for k, fn := range sideSetters(func(r *model.FeedRow) *model.FeedSide { return &r.Opponent }) {
		m["opponent_"+k] = fn
	}
	return m
}()

// columnKey folds a header cell: case-insensitive, spaces and hyphens as
// underscores, a leading BOM dropped.
func columnKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// header maps cell positions onto setters.
type header []setter

func parseHeader(cells []string) (header, error) {
	h := make(header, len(cells))
	known := 0
	for i, c := range cells {
		if fn, ok := columns[columnKey(c)]; ok {
			h[i] = fn
			known++
		}
	}
	if known == 0 {
		return nil, ErrNoColumns
	}
	return h, nil
}

func (h header) row(cells []string, line int, opts Options) model.FeedRow {
	r := model.FeedRow{Source: opts.Source, Line: line}
	for i, v := range cells {
		if i < len(h) && h[i] != nil {
			h[i](&r, strings.TrimSpace(v))
		}
	}
	if r.Provider == "" {
		r.Provider = opts.Provider
	}
	return r
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
