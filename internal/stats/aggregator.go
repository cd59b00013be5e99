// Package stats accumulates per-tower coverage statistics over a run.
package stats

import (
	"rfcoverage/internal/selector"
	"rfcoverage/internal/types"
)

// Classify returns the signal band of power against threshold.
func Classify(powerDBm, thresholdDBm float64) types.SignalBand {
	return types.ClassifySignal(powerDBm, thresholdDBm)
}

// Totals are run-wide band counts over the points that produced a row.
type Totals struct {
	Good     int
	Marginal int
	Bad      int
	Rows     int
	Errors   int
}

// Aggregator keeps one TowerStat per tower, in first-sighting order.
// It is not safe for concurrent use.
type Aggregator struct {
	order  []string
	towers map[string]*types.TowerStat
	totals Totals
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{towers: make(map[string]*types.TowerStat)}
}

// Sight registers the tower of r. Geography is taken from the first reading
// that mentions a tower, whichever point it came from.
func (a *Aggregator) Sight(r types.Reading) *types.TowerStat {
	if s, ok := a.towers[r.Tower]; ok {
		return s
	}
	s := &types.TowerStat{
		Name:    r.Tower,
		Lon:     r.TowerLon,
		Lat:     r.TowerLat,
		HeightM: r.TowerHeightM,
	}
	a.towers[r.Tower] = s
	a.order = append(a.order, r.Tower)
	return s
}

// Add accounts for one selection outcome. Every reading is sighted; the
// rank-1 candidate's tower is credited with the point in its band. Error rows
// only count towards Totals.Errors and skipped outcomes are ignored.
func (a *Aggregator) Add(out selector.Outcome) {
	switch {
	case out.Error != nil:
		a.totals.Errors++
		return
	case out.Row == nil:
		return
	}

	row := out.Row
	for _, r := range row.Readings {
		a.Sight(r)
	}
	if len(row.Best) == 0 {
		return
	}

	best := row.Best[0]
	a.Sight(best.Reading).Record(best.Band)

	a.totals.Rows++
	switch best.Band {
	case types.BandGood:
		a.totals.Good++
	case types.BandMarginal:
		a.totals.Marginal++
	default:
		a.totals.Bad++
	}
}

// Towers returns every sighted tower in first-sighting order.
func (a *Aggregator) Towers() []types.TowerStat {
	out := make([]types.TowerStat, len(a.order))
	for i, name := range a.order {
		out[i] = *a.towers[name]
	}
	return out
}

// Tower returns the statistics of one tower.
func (a *Aggregator) Tower(name string) (types.TowerStat, bool) {
	s, ok := a.towers[name]
	if !ok {
		return types.TowerStat{}, false
	}
	return *s, true
}

// Totals returns the run-wide band counts.
func (a *Aggregator) Totals() Totals {
	return a.totals
}

// Percent returns n as a percentage of total, or 0 when total is 0.
func Percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
