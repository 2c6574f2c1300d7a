package feed

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/teamresolve/internal/model"
)

// ReadXLSX reads one sheet of a workbook. The first non-blank row is the
// header. Line is the 1-based spreadsheet row.
func ReadXLSX(path string, opts Options) ([]model.FeedRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open xlsx")
	}
	sheet, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	var h header
	var rows []model.FeedRow
	for i, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := cellStrings(row)
		if blank(cells) {
			continue
		}
		if h == nil {
			if h, err = parseHeader(cells); err != nil {
				return nil, err
			}
			continue
		}
		rows = append(rows, h.row(cells, i+1, opts))
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("feed: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("feed: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
