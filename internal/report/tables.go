package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"rfcoverage/internal/selector"
	"rfcoverage/internal/types"
)

// IDType is the GIS field type of the point identifier column.
type IDType string

const (
	IDString  IDType = "String"
	IDInteger IDType = "Integer"
)

// columnsPerCandidate is the number of cells each ranked candidate occupies.
const columnsPerCandidate = 7

// CivicsHeader returns the per-point table header for k candidates.
func CivicsHeader(prefix string, k int) []string {
	h := []string{"civic", "civic_lat", "civic_lon", "target"}
	for i := 1; i <= k; i++ {
		h = append(h,
			fmt.Sprintf("%s_T%d", prefix, i),
			fmt.Sprintf("%s_S%d", prefix, i),
			fmt.Sprintf("%sS%d_QoC", prefix, i),
			fmt.Sprintf("%sS%d_url", prefix, i),
			fmt.Sprintf("%ss%d_dis", prefix, i),
			fmt.Sprintf("%sS%d_azi", prefix, i),
			fmt.Sprintf("%sS%d_tlt", prefix, i),
		)
	}
	return h
}

// CivicsSidecar returns the field types matching CivicsHeader.
func CivicsSidecar(idType IDType, k int) []string {
	t := []string{string(idType), "Real", "Real", "Real"}
	for i := 0; i < k; i++ {
		t = append(t, "String", "Real", "String", "String", "Real", "Real", "Real")
	}
	return t
}

// CivicsRecord renders one outcome as a row of width 4+7k. ok is false for
// skipped outcomes, which have no row.
func CivicsRecord(out selector.Outcome, k int) (rec []string, ok bool) {
	width := 4 + columnsPerCandidate*k
	switch {
	case out.Row != nil:
		row := out.Row
		rec = make([]string, 0, width)
		rec = append(rec, row.PointID, formatFloat(row.RxLat), formatFloat(row.RxLon), formatFloat(row.Threshold))
		for i, c := range row.Best {
			if i == k {
				break
			}
			rec = append(rec,
				c.Tower,
				formatFloat(c.PowerDBm),
				string(c.Band),
				c.ChartURL,
				formatFloat(c.DistanceKm),
				formatFloat(c.AzimuthDeg),
				formatFloat(c.DowntiltDeg),
			)
		}
	case out.Error != nil:
		rec = make([]string, 0, width)
		rec = append(rec, out.Error.PointID, oneLine(out.Error.Message), strconv.Itoa(types.NoDataSentinel))
	default:
		return nil, false
	}
	for len(rec) < width {
		rec = append(rec, "")
	}
	return rec, true
}

// TowersHeader is the per-tower table header.
var TowersHeader = []string{
	"Tower", "X", "Y", "Z",
	"Good_Con", "Good_Pct", "Margin_Con", "Margin_Pct", "Bad_Con", "Bad_Pct", "Total_Con",
}

// TowersSidecar holds the field types matching TowersHeader.
var TowersSidecar = []string{
	"String", "Real", "Real", "Real",
	"Integer", "Real", "Integer", "Real", "Integer", "Real", "Integer",
}

// TowerRecord renders one tower. Towers that never served a point keep their
// statistic cells empty. Rates are rounded to four decimals.
func TowerRecord(s types.TowerStat) []string {
	rec := []string{s.Name, formatFloat(s.Lon), formatFloat(s.Lat), formatFloat(s.HeightM)}
	if !s.Served {
		return append(rec, "", "", "", "", "", "", "")
	}
	return append(rec,
		strconv.Itoa(s.GoodCount), formatFloat(round4(s.GoodRate)),
		strconv.Itoa(s.MarginalCount), formatFloat(round4(s.MarginalRate)),
		strconv.Itoa(s.BadCount), formatFloat(round4(s.BadRate)),
		strconv.Itoa(s.TotalCount),
	)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// oneLine keeps service error messages on a single CSV line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
