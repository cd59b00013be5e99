package selector

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"rfcoverage/internal/types"
)

// Candidate is a reading ranked among the best K for a point.
type Candidate struct {
	types.Reading
	Band types.SignalBand
}

// Row is the successful outcome for one point.
type Row struct {
	PointID   string
	RxLat     float64
	RxLon     float64
	Threshold float64
	Best      []Candidate

	// Readings holds every tower in the document, for geography capture.
	Readings []types.Reading
}

// ErrorRow marks a point whose document could not be parsed.
type ErrorRow struct {
	PointID string
	Message string
}

// Outcome is the result of selecting one point. Exactly one of Row, Error or
// Skipped is set.
type Outcome struct {
	Row     *Row
	Error   *ErrorRow
	Skipped bool
	Err     error
}

// DocumentSource returns the stored document of a point.
type DocumentSource interface {
	Read(id string) ([]byte, error)
}

// Selector evaluates cached documents of one network.
type Selector struct {
	Docs      DocumentSource
	Network   string
	Threshold float64
	K         int
	Log       *slog.Logger
}

// New returns a Selector with the default K.
func New(docs DocumentSource, network string, threshold float64, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		Docs:      docs,
		Network:   network,
		Threshold: threshold,
		K:         types.DefaultBestK,
		Log:       log,
	}
}

// SelectBest returns the k strongest readings, strongest first. Readings with
// equal power keep their document order.
func SelectBest(readings []types.Reading, k int) []types.Reading {
	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b types.Reading) int {
		switch {
		case a.PowerDBm > b.PowerDBm:
			return -1
		case a.PowerDBm < b.PowerDBm:
			return 1
		default:
			return 0
		}
	})
	if k >= 0 && len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// Select reads and evaluates the document of p. A document that cannot be
// opened, or the empty stub left by a failed fetch, yields a skipped outcome.
func (s *Selector) Select(ctx context.Context, p types.Point) Outcome {
	doc, err := s.Docs.Read(p.ID)
	if err == nil && len(doc) == 0 {
		err = types.NewAppError(types.ErrCodeCacheMissing, "cache entry is an empty stub", nil)
	}
	if err != nil {
		s.log().WarnContext(ctx, "no document for point; skipped", "point_id", p.ID, "error", err)
		return Outcome{Skipped: true, Err: err}
	}

	out := s.Evaluate(p.ID, doc)
	if out.Error != nil {
		s.log().WarnContext(ctx, "unusable document; writing error row",
			"point_id", p.ID, "error", out.Err)
	}
	return out
}

// Evaluate turns one document into a Row or an ErrorRow.
func (s *Selector) Evaluate(pointID string, doc []byte) Outcome {
	readings, err := Parse(doc, s.Network)
	if err != nil {
		var pe *ParseError
		msg := err.Error()
		if errors.As(err, &pe) {
			msg = pe.Message()
		}
		return Outcome{Error: &ErrorRow{PointID: pointID, Message: msg}, Err: err}
	}

	best := SelectBest(readings, s.K)
	row := &Row{
		PointID:   pointID,
		RxLat:     readings[0].RxLat,
		RxLon:     readings[0].RxLon,
		Threshold: s.Threshold,
		Best:      make([]Candidate, len(best)),
		Readings:  readings,
	}
	for i, r := range best {
		row.Best[i] = Candidate{Reading: r, Band: types.ClassifySignal(r.PowerDBm, s.Threshold)}
	}
	return Outcome{Row: row}
}

func (s *Selector) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
