// Package coverage runs a best-signal analysis end to end: it fetches a
// response document for every point, selects the strongest towers per point,
// aggregates per-tower statistics and writes the report tables, then feeds
// the optional results sinks.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"rfcoverage/internal/archive"
	"rfcoverage/internal/batcher"
	"rfcoverage/internal/cache"
	"rfcoverage/internal/db"
	"rfcoverage/internal/metrics"
	"rfcoverage/internal/report"
	"rfcoverage/internal/selector"
	"rfcoverage/internal/stats"
	"rfcoverage/internal/types"
)

// ResultStore persists a finished run.
type ResultStore interface {
	SaveRun(ctx context.Context, run db.RunRecord, points []db.PointRecord, towers []types.TowerStat) error
}

// SummaryPublisher receives the end-of-run totals.
type SummaryPublisher interface {
	Publish(ctx context.Context, s metrics.RunSummary)
}

// RunConfig holds everything one best-signal run needs.
type RunConfig struct {
	RunID string

	Points     []types.Point
	NumericIDs bool

	Network string
	// Name is the base name of the data folder under OutDir.
	Name   string
	OutDir string

	ThresholdDBm float64
	K            int
	Receiver     batcher.ReceiverParams

	Client batcher.BestServerClient
	Delay  time.Duration

	// RestorePath, when set, is a cache bundle unpacked into the response
	// cache before fetching. Entries already on disk are kept.
	RestorePath string

	// Optional sinks.
	Recorder        *metrics.Recorder
	MetricsTextfile string
	Publisher       SummaryPublisher
	Results         ResultStore
	ArchivePath     string

	Logger *slog.Logger
}

// Summary describes a finished (or cancelled) run.
type Summary struct {
	RunID  string
	Points int

	Batch  *batcher.Report
	Totals stats.Totals
	Towers []types.TowerStat

	// Skipped counts points with no usable document in the cache.
	Skipped int
	// Restored counts cache entries unpacked from RestorePath.
	Restored int

	CivicsPath string
	TowersPath string
	Archive    *archive.Stats

	// SinkErrors holds failures of the optional sinks. The tables were
	// written regardless.
	SinkErrors []error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Percent returns n as a percentage of the point count.
func (s *Summary) Percent(n int) float64 {
	return stats.Percent(n, s.Points)
}

// Legend returns one line per signal band, each with its count and share of
// all points.
func (s *Summary) Legend(thresholdDBm float64) []string {
	pct := func(n int) float64 { return math.Round(s.Percent(n)*100) / 100 }
	marginalMax := math.Round((thresholdDBm-0.001)*1000) / 1000
	marginalMin := thresholdDBm - types.MarginalBandDB
	return []string{
		fmt.Sprintf("Signals stronger than %g dBm (%d/%d) %g%%",
			thresholdDBm, s.Totals.Good, s.Points, pct(s.Totals.Good)),
		fmt.Sprintf("Marginal signals between %g to %g dBm (%d/%d) %g%%",
			marginalMax, marginalMin, s.Totals.Marginal, s.Points, pct(s.Totals.Marginal)),
		fmt.Sprintf("Signals weaker than %g dBm (%d/%d) %g%%",
			marginalMin, s.Totals.Bad, s.Points, pct(s.Totals.Bad)),
	}
}

func (cfg *RunConfig) validate() error {
	switch {
	case cfg.Network == "":
		return types.NewAppError(types.ErrCodeValidationMissingField, "network name is required", nil)
	case cfg.Name == "":
		return types.NewAppError(types.ErrCodeValidationMissingField, "output name is required", nil)
	case cfg.OutDir == "":
		return types.NewAppError(types.ErrCodeValidationMissingField, "output directory is required", nil)
	case cfg.Client == nil:
		return types.NewAppError(types.ErrCodeValidationMissingField, "best-server client is required", nil)
	case cfg.Receiver.HeightM <= 0:
		return types.NewAppError(types.ErrCodeValidationInvalidField, "receiver height must be positive", nil)
	case cfg.K < 0:
		return types.NewAppError(types.ErrCodeValidationInvalidField, "K must not be negative", nil)
	}
	return nil
}

// Run executes one best-signal run. Per-point failures never abort it. A
// cancelled context stops the batch between points; the partial summary is
// returned with the context error and no tables are written.
func Run(ctx context.Context, cfg RunConfig) (*Summary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.K == 0 {
		cfg.K = types.DefaultBestK
	}
	if cfg.RunID != "" {
		ctx = types.WithRunID(ctx, cfg.RunID)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	sum := &Summary{RunID: cfg.RunID, Points: len(cfg.Points), StartedAt: time.Now()}

	layout := report.Layout{Dir: cfg.OutDir, Name: cfg.Name, Network: cfg.Network}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	store := cache.NewStore(layout.DataDir(), cfg.Network)

	if cfg.RestorePath != "" {
		st, err := archive.Unpack(ctx, cfg.RestorePath, store.Dir(), false)
		if err != nil {
			return nil, err
		}
		sum.Restored = st.Files
		log.InfoContext(ctx, "cache restored", "path", cfg.RestorePath, "files", st.Files, "bytes", st.Bytes)
	}
	cached, err := store.Entries()
	if err != nil {
		log.WarnContext(ctx, "cannot list response cache", "error", err)
	}

	b := batcher.New(store, cfg.Client, cfg.Receiver, log)
	b.Delay = cfg.Delay
	if cfg.Recorder != nil {
		b.Metrics = cfg.Recorder
	}

	log.InfoContext(ctx, "best-signal run started",
		"network", cfg.Network,
		"points", len(cfg.Points),
		"cached", len(cached),
		"cache_dir", store.Dir(),
	)

	batch, err := b.Run(ctx, cfg.Points)
	sum.Batch = batch
	if err != nil {
		sum.FinishedAt = time.Now()
		return sum, err
	}

	sel := selector.New(store, cfg.Network, cfg.ThresholdDBm, log)
	sel.K = cfg.K
	agg := stats.NewAggregator()

	outcomes := make([]selector.Outcome, 0, len(cfg.Points))
	for _, p := range cfg.Points {
		out := sel.Select(ctx, p)
		if out.Skipped {
			sum.Skipped++
		}
		agg.Add(out)
		outcomes = append(outcomes, out)
	}
	sum.Totals = agg.Totals()
	sum.Towers = agg.Towers()

	idType := report.IDString
	if cfg.NumericIDs {
		idType = report.IDInteger
	}
	if err := report.WriteAll(ctx, layout, report.Tables{
		Outcomes: outcomes,
		Towers:   sum.Towers,
		K:        cfg.K,
		IDType:   idType,
	}); err != nil {
		return sum, err
	}
	sum.CivicsPath = layout.CivicsPath()
	sum.TowersPath = layout.TowersPath()
	sum.FinishedAt = time.Now()

	for _, line := range sum.Legend(cfg.ThresholdDBm) {
		log.InfoContext(ctx, line)
	}
	log.InfoContext(ctx, "best-signal run complete",
		"points", sum.Points,
		"rows", sum.Totals.Rows,
		"error_rows", sum.Totals.Errors,
		"skipped", sum.Skipped,
		"towers", len(sum.Towers),
		"civics_csv", sum.CivicsPath,
		"towers_csv", sum.TowersPath,
		"duration", sum.FinishedAt.Sub(sum.StartedAt),
	)

	runSinks(ctx, cfg, sum, outcomes, store, log)
	return sum, nil
}

func runSinks(ctx context.Context, cfg RunConfig, sum *Summary, outcomes []selector.Outcome, store *cache.Store, log *slog.Logger) {
	fail := func(sink string, err error) {
		log.WarnContext(ctx, "results sink failed", "sink", sink, "error", err)
		sum.SinkErrors = append(sum.SinkErrors, fmt.Errorf("%s: %w", sink, err))
	}

	rs := runSummary(cfg.Network, sum)
	if cfg.Recorder != nil {
		cfg.Recorder.SetSummary(rs)
		if cfg.MetricsTextfile != "" {
			if err := cfg.Recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
				fail("metrics", err)
			}
		}
	}
	if cfg.Publisher != nil {
		cfg.Publisher.Publish(ctx, rs)
	}

	if cfg.Results != nil {
		run := db.RunRecord{
			RunID:           cfg.RunID,
			Network:         cfg.Network,
			ThresholdDBm:    cfg.ThresholdDBm,
			Points:          sum.Points,
			ErrorRows:       sum.Totals.Errors,
			GoodPercent:     rs.GoodPercent,
			MarginalPercent: rs.MarginalPercent,
			BadPercent:      rs.BadPercent,
			StartedAt:       sum.StartedAt,
			FinishedAt:      sum.FinishedAt,
		}
		if err := cfg.Results.SaveRun(ctx, run, PointRecords(outcomes), sum.Towers); err != nil {
			fail("database", err)
		}
	}

	if cfg.ArchivePath != "" {
		st, err := archive.Pack(ctx, store.Dir(), cfg.ArchivePath)
		if err != nil {
			fail("archive", err)
		} else {
			sum.Archive = &st
			log.InfoContext(ctx, "cache archived", "path", cfg.ArchivePath, "files", st.Files, "bytes", st.Bytes)
		}
	}
}

func runSummary(network string, sum *Summary) metrics.RunSummary {
	rs := metrics.RunSummary{
		Network:         network,
		Points:          sum.Points,
		Towers:          len(sum.Towers),
		ErrorRows:       sum.Totals.Errors,
		GoodPercent:     sum.Percent(sum.Totals.Good),
		MarginalPercent: sum.Percent(sum.Totals.Marginal),
		BadPercent:      sum.Percent(sum.Totals.Bad),
		Duration:        sum.FinishedAt.Sub(sum.StartedAt),
		FinishedAt:      sum.FinishedAt,
	}
	if sum.Batch != nil {
		rs.CacheHits = sum.Batch.CacheHits
		rs.Fetched = sum.Batch.Fetched
		rs.FetchFailures = sum.Batch.Failed
	}
	return rs
}

// PointRecords converts selection outcomes to database rows. Skipped
// outcomes have no row.
func PointRecords(outcomes []selector.Outcome) []db.PointRecord {
	recs := make([]db.PointRecord, 0, len(outcomes))
	for _, out := range outcomes {
		switch {
		case out.Row != nil:
			row := out.Row
			rec := db.PointRecord{
				PointID:   row.PointID,
				RxLat:     &row.RxLat,
				RxLon:     &row.RxLon,
				Towers:    make([]string, len(row.Best)),
				PowersDBm: make([]float64, len(row.Best)),
			}
			for i, c := range row.Best {
				rec.Towers[i] = c.Tower
				rec.PowersDBm[i] = c.PowerDBm
			}
			if len(row.Best) > 0 {
				rec.BestBand = string(row.Best[0].Band)
			}
			recs = append(recs, rec)
		case out.Error != nil:
			recs = append(recs, db.PointRecord{PointID: out.Error.PointID, ErrorMessage: out.Error.Message})
		}
	}
	return recs
}

// IsCancelled reports whether err ended a run early on request.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
