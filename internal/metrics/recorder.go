// Package metrics records per-run counters for the coverage tools. Counters
// are kept in a Prometheus registry that can be written out as a textfile
// collector snapshot, and the run summary can optionally be published to
// CloudWatch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rfcoverage/internal/batcher"
)

var _ batcher.MetricRecorder = (*Recorder)(nil)

// Recorder bundles the Prometheus collectors for one run.
type Recorder struct {
	reg *prometheus.Registry

	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	Points       prometheus.Gauge
	Towers       prometheus.Gauge
	ErrorRows    prometheus.Gauge
	BandShare    *prometheus.GaugeVec
	RunTimestamp prometheus.Gauge
}

// NewRecorder registers the run collectors against a fresh registry.
func NewRecorder(network string) (*Recorder, error) {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"network": network}

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rfcoverage_fetches_total",
		Help:        "Best-server points processed, labeled by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	if err := register(reg, fetches, "rfcoverage_fetches_total"); err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "rfcoverage_fetch_duration_seconds",
		Help:        "Time spent resolving one point, including cache lookups.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"outcome"})
	if err := register(reg, durations, "rfcoverage_fetch_duration_seconds"); err != nil {
		return nil, err
	}

	gauge := func(name, help string) (prometheus.Gauge, error) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: constLabels})
		return g, register(reg, g, name)
	}

	points, err := gauge("rfcoverage_points", "Points in the input file.")
	if err != nil {
		return nil, err
	}
	towers, err := gauge("rfcoverage_towers", "Distinct towers observed across all responses.")
	if err != nil {
		return nil, err
	}
	errorRows, err := gauge("rfcoverage_error_rows", "Points whose response could not be evaluated.")
	if err != nil {
		return nil, err
	}
	stamp, err := gauge("rfcoverage_last_run_timestamp_seconds", "Unix time the run finished.")
	if err != nil {
		return nil, err
	}

	share := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "rfcoverage_band_percent",
		Help:        "Share of points whose best server falls in each signal band.",
		ConstLabels: constLabels,
	}, []string{"band"})
	if err := register(reg, share, "rfcoverage_band_percent"); err != nil {
		return nil, err
	}

	return &Recorder{
		reg:           reg,
		Fetches:       fetches,
		FetchDuration: durations,
		Points:        points,
		Towers:        towers,
		ErrorRows:     errorRows,
		BandShare:     share,
		RunTimestamp:  stamp,
	}, nil
}

// ObserveFetch records one batcher outcome.
func (r *Recorder) ObserveFetch(outcome batcher.Outcome, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Fetches.WithLabelValues(string(outcome)).Inc()
	r.FetchDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// SetSummary records the end-of-run totals.
func (r *Recorder) SetSummary(s RunSummary) {
	if r == nil {
		return
	}
	r.Points.Set(float64(s.Points))
	r.Towers.Set(float64(s.Towers))
	r.ErrorRows.Set(float64(s.ErrorRows))
	r.BandShare.WithLabelValues("good").Set(s.GoodPercent)
	r.BandShare.WithLabelValues("marginal").Set(s.MarginalPercent)
	r.BandShare.WithLabelValues("bad").Set(s.BadPercent)
	r.RunTimestamp.Set(float64(s.FinishedAt.Unix()))
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, name string) error {
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register collector %s: %w", name, err)
	}
	return nil
}
