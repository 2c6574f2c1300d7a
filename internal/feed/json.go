package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

// ReadJSON streams a JSON array of flat objects keyed like the CSV columns.
// Numbers and booleans are kept in their JSON text form. Line is the
// 1-based element index.
func ReadJSON(ctx context.Context, r io.Reader, opts Options) ([]model.FeedRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "feed: read json opening token")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("feed: expected '[', got %v", tok)
	}

	var rows []model.FeedRow
	for i := 1; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "feed: json cancelled")
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, eris.Wrapf(err, "feed: decode json element %d", i)
		}
		row := model.FeedRow{Source: opts.Source, Line: i}
		for k, v := range obj {
			if fn, ok := columns[columnKey(k)]; ok {
				fn(&row, jsonString(v))
			}
		}
		if row.Provider == "" {
			row.Provider = opts.Provider
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "feed: read json closing token")
	}
	return rows, nil
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
