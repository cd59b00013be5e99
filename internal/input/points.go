package input

import (
	"fmt"
	"os"
	"strconv"

	"rfcoverage/internal/types"
)

// PointColumns names the columns of a point table.
type PointColumns struct {
	ID  string
	Lat string
	Lon string
}

// DefaultPointColumns matches the civic address exports.
var DefaultPointColumns = PointColumns{ID: "civic", Lat: "lat", Lon: "lon"}

// Points is a loaded point table.
type Points struct {
	Points   []types.Point
	Encoding string
	// NumericIDs is true when every identifier is an integer.
	NumericIDs bool
}

// LoadPoints reads a CSV point table with a header row. Identifiers are
// stripped of parentheses and double quotes. Any unusable row fails the whole
// load.
func LoadPoints(path string, cols PointColumns, network string) (*Points, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidInput(path, "cannot read point table", err)
	}
	t, err := readTable(data)
	if err != nil {
		return nil, invalidInput(path, "cannot parse point table", err)
	}

	idCol, ok1 := t.column(cols.ID)
	latCol, ok2 := t.column(cols.Lat)
	lonCol, ok3 := t.column(cols.Lon)
	if !ok1 || !ok2 || !ok3 {
		return nil, invalidInput(path,
			fmt.Sprintf("point table needs columns %q, %q and %q; found %v", cols.ID, cols.Lat, cols.Lon, t.header), nil)
	}

	out := &Points{Points: make([]types.Point, 0, len(t.rows)), Encoding: t.encoding, NumericIDs: true}
	seen := make(map[string]int, len(t.rows))
	for i, rec := range t.rows {
		line := i + 2
		p := types.Point{ID: types.SanitizeID(cell(rec, idCol)), Network: network}

		if p.Lat, err = strconv.ParseFloat(cell(rec, latCol), 64); err != nil {
			return nil, invalidInput(path, fmt.Sprintf("line %d: bad latitude %q", line, cell(rec, latCol)), err)
		}
		if p.Lon, err = strconv.ParseFloat(cell(rec, lonCol), 64); err != nil {
			return nil, invalidInput(path, fmt.Sprintf("line %d: bad longitude %q", line, cell(rec, lonCol)), err)
		}
		if err := p.Validate(); err != nil {
			return nil, invalidInput(path, fmt.Sprintf("line %d", line), err)
		}
		if prev, dup := seen[p.ID]; dup {
			return nil, invalidInput(path, fmt.Sprintf("line %d: identifier %q already used on line %d", line, p.ID, prev), nil)
		}
		seen[p.ID] = line

		if _, err := strconv.ParseInt(p.ID, 10, 64); err != nil {
			out.NumericIDs = false
		}
		out.Points = append(out.Points, p)
	}
	if len(out.Points) == 0 {
		out.NumericIDs = false
	}
	return out, nil
}

func invalidInput(path, msg string, err error) *types.AppError {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidInput, msg, err,
		map[string]any{"path": path})
}
