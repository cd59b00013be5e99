// Package pairs computes point-to-point path profiles between every ordered
// pair of towers and writes them as a table of two-vertex paths.
package pairs

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"rfcoverage/internal/external"
	"rfcoverage/internal/types"
)

// Fallback resolution used when the service rejects a fine-resolution path.
const (
	FallbackResolutionM = 30
	FallbackRadiusKm    = 30
)

// DefaultDelay is the courtesy pause between pairs.
const DefaultDelay = time.Second

// FileName is the name of the path profile table.
const FileName = "T2T_pathprofile.csv"

// Header is the path profile table header.
var Header = []string{"UID", "Order", "lat", "lon", "signal_str", "png"}

// PathClient computes one path profile.
type PathClient interface {
	PathProfile(ctx context.Context, r *external.PropagationRequest) (*external.PathResult, error)
}

// Pair is an ordered (transmitter, receiver) index pair.
type Pair struct {
	Tx, Rx int
}

// Permutations returns the n*(n-1) ordered pairs of distinct indices in
// nested-loop order: (0,1), (0,2), ..., (1,0), (1,2), ...
func Permutations(n int) []Pair {
	if n < 2 {
		return nil
	}
	out := make([]Pair, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				out = append(out, Pair{Tx: i, Rx: j})
			}
		}
	}
	return out
}

// Result is the path profile of one pair.
type Result struct {
	UID          string
	Tx, Rx       types.Tower
	SignalDBm    float64
	ChartURL     string
	Resolution   float64
	UsedFallback bool
}

// Records renders the result as two path vertices: order 0 at the
// transmitter site, order 1 at the receiver site.
func (r Result) Records() [][]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	sig := f(r.SignalDBm)
	return [][]string{
		{r.UID, "0", f(r.Tx.TLat), f(r.Tx.TLon), sig, r.ChartURL},
		{r.UID, "1", f(r.Rx.TLat), f(r.Rx.TLon), sig, r.ChartURL},
	}
}

// Summary counts the pairs of a run.
type Summary struct {
	Pairs     int
	Succeeded int
	Fallbacks int
	Failed    int
}

// Enumerator runs path profiles for every ordered pair of towers.
type Enumerator struct {
	Client PathClient
	Delay  time.Duration
	Log    *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

// NewEnumerator returns an Enumerator with the default delay.
func NewEnumerator(client PathClient, log *slog.Logger) *Enumerator {
	if log == nil {
		log = slog.Default()
	}
	return &Enumerator{Client: client, Delay: DefaultDelay, Log: log}
}

// Run computes every ordered pair sequentially and passes each successful
// result to emit. A pair that fails is logged and skipped. Cancellation is
// checked once per pair.
func (e *Enumerator) Run(ctx context.Context, towers []types.Tower, emit func(Result) error) (Summary, error) {
	perms := Permutations(len(towers))
	sum := Summary{Pairs: len(perms)}

	for n, p := range perms {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		tx, rx := towers[p.Tx], towers[p.Rx]
		uid := tx.Site + " - " + rx.Site
		start := time.Now()

		e.log().InfoContext(ctx, "processing pair",
			"uid", uid, "progress", fmt.Sprintf("%d/%d", n+1, len(perms)))

		res, err := e.profile(ctx, uid, tx, rx)
		if err != nil {
			sum.Failed++
			e.log().WarnContext(ctx, "path profile failed; pair skipped", "uid", uid, "error", err)
		} else {
			sum.Succeeded++
			if res.UsedFallback {
				sum.Fallbacks++
			}
			if err := emit(*res); err != nil {
				return sum, err
			}
			e.log().InfoContext(ctx, "pair complete",
				"uid", uid,
				"signal_dbm", res.SignalDBm,
				"resolution_m", res.Resolution,
				"elapsed", time.Since(start).Round(100*time.Millisecond).String(),
			)
		}

		if n < len(perms)-1 {
			e.pause(ctx)
		}
	}
	return sum, nil
}

// profile requests the pair at the transmitter's own resolution and, when the
// service answers with an error document, once more at the fallback
// resolution.
func (e *Enumerator) profile(ctx context.Context, uid string, tx, rx types.Tower) (*Result, error) {
	req, err := external.NewPropagationRequest(tx, external.SiteReceiver(rx))
	if err != nil {
		return nil, err
	}

	used := req
	res, err := e.Client.PathProfile(ctx, req)
	if isServiceError(err) {
		e.log().InfoContext(ctx, "fine resolution rejected; requesting fallback resolution",
			"uid", uid, "resolution_m", FallbackResolutionM, "error", err)
		used = req.WithResolution(FallbackResolutionM, FallbackRadiusKm)
		res, err = e.Client.PathProfile(ctx, used)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		UID:          uid,
		Tx:           tx,
		Rx:           rx,
		SignalDBm:    res.SignalDBm,
		ChartURL:     res.ChartURL,
		Resolution:   used.Output.Res,
		UsedFallback: used != req,
	}, nil
}

func isServiceError(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamPropagation
}

func (e *Enumerator) pause(ctx context.Context) {
	if e.Delay <= 0 {
		return
	}
	if e.sleep != nil {
		e.sleep(ctx, e.Delay)
		return
	}
	t := time.NewTimer(e.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Enumerator) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// WriteTable runs the enumerator and streams the results to path.
func (e *Enumerator) WriteTable(ctx context.Context, path string, towers []types.Tower) (sum Summary, err error) {
	f, err := os.Create(path)
	if err != nil {
		return sum, types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to create %s", path), err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to close %s", path), cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	cw := csv.NewWriter(bw)
	_ = cw.Write(Header)

	sum, runErr := e.Run(ctx, towers, func(r Result) error {
		for _, rec := range r.Records() {
			_ = cw.Write(rec) // error is buffered; checked after Flush
		}
		// Keep completed pairs on disk if the run is interrupted.
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		return bw.Flush()
	})

	cw.Flush()
	if err := cw.Error(); err != nil {
		return sum, types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := bw.Flush(); err != nil {
		return sum, types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to flush %s", path), err)
	}
	return sum, runErr
}
