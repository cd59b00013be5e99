// Package batcher fetches best-server response documents for a list of points,
// one request at a time, persisting every response in the on-disk cache so
// that an interrupted run can be resumed without repeating requests.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rfcoverage/internal/external"
	"rfcoverage/internal/types"
)

// DefaultDelay is the courtesy pause between consecutive requests.
const DefaultDelay = 250 * time.Millisecond

// BestServerClient submits one best-server query and returns the raw
// response document.
type BestServerClient interface {
	BestServer(ctx context.Context, r external.BestServerRequest) ([]byte, error)
}

// DocumentCache is the subset of the response cache used by the batcher.
type DocumentCache interface {
	Ensure() error
	Lookup(id string) (doc []byte, ok bool, err error)
	Write(id string, doc []byte) error
}

// MetricRecorder receives one observation per processed point.
type MetricRecorder interface {
	ObserveFetch(outcome Outcome, elapsed time.Duration)
}

// Outcome labels how a point was resolved.
type Outcome string

const (
	OutcomeCacheHit Outcome = "cache_hit"
	OutcomeFetched  Outcome = "fetched"
	OutcomeFailed   Outcome = "failed"
)

// ReceiverParams are the receiver characteristics sent with every query.
type ReceiverParams struct {
	HeightM float64
	GainDBi float64
}

// FetchError is a per-point transient fetch failure. It never aborts a run;
// the point is fetched again on the next run.
type FetchError struct {
	PointID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.PointID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome of EnsureFetched for one point.
type Result struct {
	Point   types.Point
	Doc     []byte
	Outcome Outcome
	// Err is a *FetchError for a transient failure. Any other error is fatal
	// and ends Run.
	Err error
}

// Report summarises a batch run.
type Report struct {
	Results   []Result
	CacheHits int
	Fetched   int
	Failed    int
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCacheHit:
		r.CacheHits++
	case OutcomeFetched:
		r.Fetched++
	default:
		r.Failed++
	}
}

// Batcher ensures every point has a cached response document.
type Batcher struct {
	Cache   DocumentCache
	Client  BestServerClient
	Params  ReceiverParams
	Delay   time.Duration
	// BreakerWait is the pause before re-sending a point the client rejected
	// with an open circuit breaker.
	BreakerWait time.Duration
	Log         *slog.Logger
	Metrics MetricRecorder

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// New returns a Batcher with the default courtesy delay.
func New(cache DocumentCache, client BestServerClient, params ReceiverParams, log *slog.Logger) *Batcher {
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		Cache:  cache,
		Client: client,
		Params: params,
		Delay:       DefaultDelay,
		BreakerWait: external.BreakerOpenTimeout,
		Log:         log,
	}
}

// EnsureFetched returns the cached document for p, fetching it first on a
// cache miss. A cache hit makes no network call.
//
// On a miss the response body is written to the cache whatever it contains,
// including error documents; the selector decides later whether it is usable.
// On a transport failure an empty stub is written instead, which fails the
// size check and is therefore retried next run.
func (b *Batcher) EnsureFetched(ctx context.Context, p types.Point) Result {
	start := time.Now()
	res := b.ensureFetched(ctx, p)
	if b.Metrics != nil {
		b.Metrics.ObserveFetch(res.Outcome, time.Since(start))
	}
	return res
}

func (b *Batcher) ensureFetched(ctx context.Context, p types.Point) Result {
	doc, ok, err := b.Cache.Lookup(p.ID)
	if err != nil {
		b.log().WarnContext(ctx, "cache entry unreadable, fetching again",
			"point_id", p.ID, "error", err)
	}
	if ok {
		return Result{Point: p, Doc: doc, Outcome: OutcomeCacheHit}
	}

	req := external.BestServerRequest{
		PointID:        p.ID,
		Network:        p.Network,
		Lat:            p.Lat,
		Lon:            p.Lon,
		ReceiverHeight: b.Params.HeightM,
		ReceiverGain:   b.Params.GainDBi,
	}

	doc, err = b.fetch(ctx, req)
	if err != nil {
		if errorClass(err) == types.ClassFatal {
			return Result{Point: p, Outcome: OutcomeFailed, Err: err}
		}
		if werr := b.Cache.Write(p.ID, nil); werr != nil {
			b.log().WarnContext(ctx, "failed to write retry stub", "point_id", p.ID, "error", werr)
		}
		b.log().WarnContext(ctx, "best-server request failed; point will be retried next run",
			"point_id", p.ID, "error", err)
		return Result{Point: p, Outcome: OutcomeFailed, Err: &FetchError{PointID: p.ID, Err: err}}
	}

	if err := b.Cache.Write(p.ID, doc); err != nil {
		b.log().WarnContext(ctx, "failed to cache response", "point_id", p.ID, "error", err)
		return Result{Point: p, Doc: doc, Outcome: OutcomeFailed, Err: &FetchError{PointID: p.ID, Err: err}}
	}

	if len(doc) <= types.MinPlausibleResponseBytes {
		b.log().WarnContext(ctx, "response smaller than a usable document",
			"point_id", p.ID, "bytes", len(doc))
	}
	return Result{Point: p, Doc: doc, Outcome: OutcomeFetched}
}

// fetch sends one best-server request. A request rejected by an open circuit
// breaker never reached the server, so it is sent again once the breaker has
// had time to half-open.
func (b *Batcher) fetch(ctx context.Context, req external.BestServerRequest) ([]byte, error) {
	for {
		// An in-flight request is allowed to finish after cancellation so
		// that its response still lands in the cache.
		doc, err := b.Client.BestServer(context.WithoutCancel(ctx), req)
		if !circuitOpen(err) || ctx.Err() != nil {
			return doc, err
		}
		b.log().WarnContext(ctx, "propagation service circuit open; waiting to send point",
			"point_id", req.PointID, "wait", b.BreakerWait)
		b.wait(ctx, b.BreakerWait)
		if ctx.Err() != nil {
			return nil, err
		}
	}
}

func circuitOpen(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamCircuitOpen
}

// errorClass classifies a client error. Errors without a code are treated
// as transport failures.
func errorClass(err error) types.ErrorClass {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Class()
	}
	return types.ClassTransient
}

// Run processes points sequentially in order. Cancellation is checked once per
// point; on cancellation the partial report is returned with ctx.Err().
// Transient failures are recorded in the report and never stop the run. A
// fatal error, such as a request the client refuses to build, ends the run
// with that error.
func (b *Batcher) Run(ctx context.Context, points []types.Point) (*Report, error) {
	if err := b.Cache.Ensure(); err != nil {
		return nil, err
	}

	report := &Report{Results: make([]Result, 0, len(points))}
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			b.log().InfoContext(ctx, "batch cancelled",
				"processed", i, "remaining", len(points)-i)
			return report, err
		}

		res := b.EnsureFetched(ctx, p)
		report.add(res)
		if res.Err != nil && !IsFetchError(res.Err) {
			b.log().ErrorContext(ctx, "batch aborted", "point_id", p.ID, "error", res.Err)
			return report, res.Err
		}

		b.log().DebugContext(ctx, "point processed",
			"point_id", p.ID,
			"outcome", string(res.Outcome),
			"progress", fmt.Sprintf("%d/%d", i+1, len(points)),
		)

		if res.Outcome != OutcomeCacheHit && i < len(points)-1 {
			b.pause(ctx)
		}
	}

	b.log().InfoContext(ctx, "batch complete",
		"points", len(points),
		"cache_hits", report.CacheHits,
		"fetched", report.Fetched,
		"failed", report.Failed,
	)
	return report, nil
}

func (b *Batcher) pause(ctx context.Context) {
	b.wait(ctx, b.Delay)
}

func (b *Batcher) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if b.sleep != nil {
		b.sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// IsFetchError reports whether err is a per-point fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func (b *Batcher) log() *slog.Logger {
	if b.Log == nil {
		return slog.Default()
	}
	return b.Log
}
