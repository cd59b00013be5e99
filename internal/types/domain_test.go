package types

import (
	"context"
	"math"
	"testing"
)

func TestClassifySignal_Boundaries(t *testing.T) {
	const threshold = -65.0

	tests := []struct {
		name  string
		power float64
		want  SignalBand
	}{
		{"at threshold is good", -65, BandGood},
		{"above threshold is good", -50, BandGood},
		{"just below threshold is marginal", -65.0001, BandMarginal},
		{"bottom of marginal band", -75, BandMarginal},
		{"just below marginal band is bad", -75.0001, BandBad},
		{"far below is bad", -120, BandBad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySignal(tt.power, threshold); got != tt.want {
				t.Errorf("ClassifySignal(%v, %v) = %s, want %s", tt.power, threshold, got, tt.want)
			}
		})
	}
}

func TestTowerStatRecord_RecomputesRates(t *testing.T) {
	var s TowerStat

	s.Record(BandGood)
	if s.TotalCount != 1 || s.GoodRate != 1 {
		t.Fatalf("after first record: %+v", s)
	}

	s.Record(BandBad)
	s.Record(BandMarginal)
	s.Record(BandBad)

	if s.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", s.TotalCount)
	}
	if s.GoodCount != 1 || s.MarginalCount != 1 || s.BadCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", s.GoodCount, s.MarginalCount, s.BadCount)
	}
	if s.GoodRate != 0.25 || s.MarginalRate != 0.25 || s.BadRate != 0.5 {
		t.Errorf("rates = %v/%v/%v, want 0.25/0.25/0.5", s.GoodRate, s.MarginalRate, s.BadRate)
	}
	if sum := s.GoodRate + s.MarginalRate + s.BadRate; math.Abs(sum-1) > 1e-12 {
		t.Errorf("rates sum to %v", sum)
	}
	if !s.Served {
		t.Error("Served should be set once a point is recorded")
	}
}

func TestPointValidate(t *testing.T) {
	valid := Point{ID: "1001", Lat: 45.6, Lon: -62.7, Network: "LTE_Pictou"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid point rejected: %v", err)
	}

	tests := []struct {
		name string
		p    Point
		code ErrorCode
	}{
		{"empty id", Point{Lat: 1, Lon: 1, Network: "n"}, ErrCodeValidationMissingField},
		{"path separator", Point{ID: "a/b", Network: "n"}, ErrCodeValidationInvalidField},
		{"no network", Point{ID: "1"}, ErrCodeValidationMissingField},
		{"bad lat", Point{ID: "1", Lat: 91, Network: "n"}, ErrCodeValidationInvalidLat},
		{"bad lon", Point{ID: "1", Lon: -181, Network: "n"}, ErrCodeValidationInvalidLon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			appErr, ok := err.(*AppError)
			if !ok {
				t.Fatalf("expected *AppError, got %T (%v)", err, err)
			}
			if appErr.Code != tt.code {
				t.Errorf("code = %s, want %s", appErr.Code, tt.code)
			}
		})
	}
}

func TestSanitizeID(t *testing.T) {
	if got := SanitizeID(` ("A-17") `); got != "A-17" {
		t.Errorf("SanitizeID = %q, want A-17", got)
	}
	if got := SanitizeID("1001"); got != "1001" {
		t.Errorf("SanitizeID = %q, want 1001", got)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	if GetRunID(ctx) != "" {
		t.Error("empty context should have no run ID")
	}
	ctx = WithRunID(ctx, "run-123")
	if GetRunID(ctx) != "run-123" {
		t.Errorf("GetRunID = %q", GetRunID(ctx))
	}
	if LoggerFromContext(ctx) == nil {
		t.Error("LoggerFromContext should fall back to the default logger")
	}
}
