package feed

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

// ReadCSV reads a header-keyed CSV export. Line numbers count the header as
// line 1. Blank lines are skipped.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.FeedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	cells, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "feed: read csv header")
	}
	h, err := parseHeader(cells)
	if err != nil {
		return nil, err
	}

	var rows []model.FeedRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "feed: csv cancelled")
		}
		cells, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "feed: read csv row")
		}
		if blank(cells) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, h.row(cells, line, opts))
	}
}
