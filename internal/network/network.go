// Package network registers towers with the propagation service by requesting
// an area coverage calculation for each of them.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rfcoverage/internal/external"
	"rfcoverage/internal/types"
)

// DefaultDelay is the courtesy pause between towers.
const DefaultDelay = 2 * time.Second

// AreaClient computes an area coverage.
type AreaClient interface {
	Area(ctx context.Context, r *external.PropagationRequest) (*external.AreaResult, error)
}

// SiteResult is the outcome for one tower.
type SiteResult struct {
	Site    string
	Area    *external.AreaResult
	Elapsed time.Duration
	Err     error
}

// Creator submits towers one at a time.
type Creator struct {
	Client AreaClient
	Delay  time.Duration
	Log    *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

// NewCreator returns a Creator with the default delay.
func NewCreator(client AreaClient, log *slog.Logger) *Creator {
	if log == nil {
		log = slog.Default()
	}
	return &Creator{Client: client, Delay: DefaultDelay, Log: log}
}

// Run submits every tower in order. Per-tower failures are logged and the run
// continues. Cancellation is checked once per tower.
func (c *Creator) Run(ctx context.Context, towers []types.Tower) ([]SiteResult, error) {
	results := make([]SiteResult, 0, len(towers))
	for i, t := range towers {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		c.log().InfoContext(ctx, "requesting tower coverage; this may take 90 seconds or more",
			"site", t.Site, "network", t.Network, "progress", fmt.Sprintf("%d/%d", i+1, len(towers)))

		res := c.submit(ctx, t)
		results = append(results, res)

		if res.Err != nil {
			c.log().WarnContext(ctx, "tower creation failed", "site", t.Site, "error", res.Err)
		} else {
			c.log().InfoContext(ctx, "tower created",
				"site", t.Site,
				"area", res.Area.Area,
				"coverage", res.Area.Coverage,
				"elapsed", res.Elapsed.Round(100*time.Millisecond).String(),
			)
		}

		if i < len(towers)-1 {
			c.pause(ctx)
		}
	}
	return results, nil
}

func (c *Creator) submit(ctx context.Context, t types.Tower) SiteResult {
	start := time.Now()
	req, err := external.NewPropagationRequest(t, external.AreaReceiver(t))
	if err != nil {
		return SiteResult{Site: t.Site, Err: err}
	}
	area, err := c.Client.Area(ctx, req)
	return SiteResult{Site: t.Site, Area: area, Elapsed: time.Since(start), Err: err}
}

func (c *Creator) pause(ctx context.Context) {
	if c.Delay <= 0 {
		return
	}
	if c.sleep != nil {
		c.sleep(ctx, c.Delay)
		return
	}
	t := time.NewTimer(c.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Creator) log() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}
