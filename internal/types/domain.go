package types

// Fixed domain constants.
const (
	// MinPlausibleResponseBytes is the size a cached response document must
	// exceed to be treated as valid. Error stubs and truncated writes are
	// smaller and get re-fetched on the next run.
	MinPlausibleResponseBytes = 500

	// MarginalBandDB is the width of the Marginal band below the threshold.
	MarginalBandDB = 10.0

	// NoDataSentinel marks an error row in the aggregate CSV.
	NoDataSentinel = -999

	// DefaultBestK is the number of candidate towers kept per point.
	DefaultBestK = 2

	// DefaultThresholdDBm is the default Good/Marginal boundary.
	DefaultThresholdDBm = -65.0
)

// Point is a located entity (civic address or tower) submitted for analysis.
// ID is kept exactly as read so that it round-trips through cache file names.
type Point struct {
	ID      string  `json:"id"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Network string  `json:"network"`
}

// Reading is one candidate tower's signal at a receiver, parsed from a
// best-server response document.
type Reading struct {
	Tower       string  `json:"tower"`
	PowerDBm    float64 `json:"power_dbm"`
	DistanceKm  float64 `json:"distance_km"`
	AzimuthDeg  float64 `json:"azimuth_deg"`  // receiver-facing, already reversed
	DowntiltDeg float64 `json:"downtilt_deg"` // receiver-relative, sign inverted
	ChartURL    string  `json:"chart_url"`
	RxLat       float64 `json:"rx_lat"`
	RxLon       float64 `json:"rx_lon"`

	// Transmitter site geometry as reported by the service.
	TowerLat     float64 `json:"tower_lat"`
	TowerLon     float64 `json:"tower_lon"`
	TowerHeightM float64 `json:"tower_height_m"`
}

// SignalBand is the qualitative classification of a signal against threshold T.
type SignalBand string

const (
	BandGood     SignalBand = "Good"
	BandMarginal SignalBand = "Marginal"
	BandBad      SignalBand = "Bad"
)

// ClassifySignal returns Good if power >= T, Marginal if T-10 <= power < T,
// and Bad otherwise.
func ClassifySignal(powerDBm, thresholdDBm float64) SignalBand {
	switch {
	case powerDBm >= thresholdDBm:
		return BandGood
	case powerDBm >= thresholdDBm-MarginalBandDB:
		return BandMarginal
	default:
		return BandBad
	}
}

// TowerStat accumulates coverage statistics for one tower over a run.
// Served is false for towers that were seen in responses but never won
// a point; their counters and rates are meaningless and stay zero.
type TowerStat struct {
	Name    string  `json:"name"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	HeightM float64 `json:"height_m"`

	GoodCount     int     `json:"good_count"`
	GoodRate      float64 `json:"good_rate"`
	MarginalCount int     `json:"marginal_count"`
	MarginalRate  float64 `json:"marginal_rate"`
	BadCount      int     `json:"bad_count"`
	BadRate       float64 `json:"bad_rate"`
	TotalCount    int     `json:"total_count"`

	Served bool `json:"served"`
}

// Record adds one point served by this tower in the given band and
// recomputes every rate as count/total.
func (s *TowerStat) Record(band SignalBand) {
	s.Served = true
	s.TotalCount++
	switch band {
	case BandGood:
		s.GoodCount++
	case BandMarginal:
		s.MarginalCount++
	default:
		s.BadCount++
	}
	total := float64(s.TotalCount)
	s.GoodRate = float64(s.GoodCount) / total
	s.MarginalRate = float64(s.MarginalCount) / total
	s.BadRate = float64(s.BadCount) / total
}
