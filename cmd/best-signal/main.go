// Package main implements the best-signal CLI: for every point of a point
// table it asks the propagation service which towers of a network serve the
// point best, then writes the per-point and per-tower coverage tables.
//
// Usage:
//
//	go run ./cmd/best-signal --points=civics.csv --network=LTE_800
//	go run ./cmd/best-signal --points=civics.csv --network=LTE_800 --threshold=-70 --k=3
//	go run ./cmd/best-signal --points=civics.csv --network=LTE_800 --archive-cache
//	go run ./cmd/best-signal --points=civics.csv --network=LTE_800 --restore-cache=civics_LTE_800_best_signal.tar.zst
//
// Responses are cached under <out>/<name>_data/<network>_best_signal/, so an
// interrupted or partially failed run can be started again with the same
// flags and only the missing points are fetched. --archive-cache bundles that
// cache after the run; --restore-cache unpacks such a bundle first, for
// example on another machine.
//
// Service credentials come from CLOUDRF_UID and CLOUDRF_API_KEY (environment
// or .env file). DATABASE_URL, METRICS_TEXTFILE and ENABLE_CLOUDWATCH enable
// the optional results sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"rfcoverage/internal/app"
	"rfcoverage/internal/archive"
	"rfcoverage/internal/batcher"
	"rfcoverage/internal/coverage"
	"rfcoverage/internal/db"
	"rfcoverage/internal/input"
	"rfcoverage/internal/metrics"
	"rfcoverage/internal/types"
)

const tool = "best-signal"

type options struct {
	points   string
	network  string
	name     string
	out      string
	cols     input.PointColumns
	thresh   float64
	k        int
	rxHeight float64
	rxGain   float64
	archive  bool
	restore  string
	envFile  string
}

func main() {
	var opts options
	flag.StringVar(&opts.points, "points", "", "Point table (CSV with a header row)")
	flag.StringVar(&opts.network, "network", "", "Network name registered with the propagation service")
	flag.StringVar(&opts.name, "name", "", "Output base name (default: point table file name)")
	flag.StringVar(&opts.out, "out", "", "Output directory (default: point table directory)")
	flag.StringVar(&opts.cols.ID, "id-field", input.DefaultPointColumns.ID, "Point identifier column")
	flag.StringVar(&opts.cols.Lat, "lat-field", input.DefaultPointColumns.Lat, "Latitude column")
	flag.StringVar(&opts.cols.Lon, "lon-field", input.DefaultPointColumns.Lon, "Longitude column")
	flag.Float64Var(&opts.thresh, "threshold", types.DefaultThresholdDBm, "Good signal threshold in dBm")
	flag.IntVar(&opts.k, "k", types.DefaultBestK, "Number of best towers reported per point")
	flag.Float64Var(&opts.rxHeight, "rx-height", 8, "Receiver height in metres")
	flag.Float64Var(&opts.rxGain, "rx-gain", 8, "Receiver gain in dBi")
	flag.BoolVar(&opts.archive, "archive-cache", false, "Bundle the response cache into a .tar.zst next to the tables")
	flag.StringVar(&opts.restore, "restore-cache", "", "Unpack a cache bundle before fetching; cached files already present are kept")
	flag.StringVar(&opts.envFile, "env-file", "", "Dotenv file to load (default: ./.env when present)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: best-signal --points=FILE --network=NAME [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Rank the strongest towers of a network for every point of a point table.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.points == "" || opts.network == "" {
		fmt.Fprintf(os.Stderr, "error: --points and --network are required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if opts.k < 1 {
		fmt.Fprintf(os.Stderr, "error: --k must be at least 1, got %d\n", opts.k)
		os.Exit(1)
	}
	if opts.rxHeight <= 0 {
		fmt.Fprintf(os.Stderr, "error: --rx-height must be positive, got %g\n", opts.rxHeight)
		os.Exit(1)
	}
	opts.fillDefaults()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, app.Diagnostic(tool, err))
		os.Exit(1)
	}
}

// fillDefaults derives the output name and directory from the point table.
func (o *options) fillDefaults() {
	if o.name == "" {
		base := filepath.Base(o.points)
		o.name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if o.out == "" {
		o.out = filepath.Dir(o.points)
	}
}

// archivePath names the cache bundle after the output name and network.
func (o *options) archivePath() string {
	return filepath.Join(o.out, fmt.Sprintf("%s_%s_best_signal%s", o.name, o.network, archive.Extension))
}

func run(ctx context.Context, opts options) error {
	env, err := app.Setup(os.Stderr, tool, opts.envFile)
	if err != nil {
		return err
	}
	cfg, logger := env.Config, env.Logger
	ctx = env.Context(ctx)

	pts, err := input.LoadPoints(opts.points, opts.cols, opts.network)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "point table loaded",
		"path", opts.points,
		"points", len(pts.Points),
		"encoding", pts.Encoding,
		"numeric_ids", pts.NumericIDs,
	)

	rc := coverage.RunConfig{
		RunID:        env.RunID,
		Points:       pts.Points,
		NumericIDs:   pts.NumericIDs,
		Network:      opts.network,
		Name:         opts.name,
		OutDir:       opts.out,
		ThresholdDBm: opts.thresh,
		K:            opts.k,
		Receiver:     batcher.ReceiverParams{HeightM: opts.rxHeight, GainDBi: opts.rxGain},
		Client:       env.Client,
		Delay:        cfg.Pacing.RequestDelay,
		RestorePath:  opts.restore,
		Logger:       logger,
	}
	if opts.archive {
		rc.ArchivePath = opts.archivePath()
	}

	rec, err := metrics.NewRecorder(opts.network)
	if err != nil {
		return err
	}
	rc.Recorder = rec
	rc.MetricsTextfile = cfg.Observability.MetricsTextfile

	if cfg.Observability.EnableCloudWatch {
		pub, err := metrics.NewCloudWatchPublisherFromEnv(ctx, cfg.Observability.AWSRegion, cfg.Observability.MetricNamespace, logger)
		if err != nil {
			// Metrics are optional; the run goes ahead without them.
			logger.WarnContext(ctx, "cloudwatch disabled", "error", err)
		} else {
			rc.Publisher = pub
		}
	}

	if cfg.Database.Enabled() {
		pool, err := db.Open(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns, cfg.Database.ConnectTimeout)
		if err != nil {
			return err
		}
		defer pool.Close()
		rc.Results = db.TxStore{DB: pool}
	}

	sum, err := coverage.Run(ctx, rc)
	if err != nil {
		if coverage.IsCancelled(err) {
			logCancelled(logger, sum)
			return errors.New("run cancelled; start it again with the same flags to resume")
		}
		return err
	}

	for _, line := range sum.Legend(opts.thresh) {
		fmt.Println(line)
	}
	if sum.Restored > 0 {
		fmt.Printf("Restored %d cached responses from %s\n", sum.Restored, opts.restore)
	}
	fmt.Printf("Wrote %s\nWrote %s\n", sum.CivicsPath, sum.TowersPath)
	if sum.Archive != nil {
		fmt.Printf("Wrote %s (%d files)\n", rc.ArchivePath, sum.Archive.Files)
	}
	if n := sum.Batch.Failed; n > 0 {
		fmt.Printf("%d points could not be fetched; run again to retry them\n", n)
	}
	return nil
}

func logCancelled(logger *slog.Logger, sum *coverage.Summary) {
	if sum == nil || sum.Batch == nil {
		logger.Warn("run cancelled before any point was processed")
		return
	}
	logger.Warn("run cancelled",
		"cache_hits", sum.Batch.CacheHits,
		"fetched", sum.Batch.Fetched,
		"failed", sum.Batch.Failed,
	)
}
