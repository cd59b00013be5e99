package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"rfcoverage/internal/types"
)

// Schema creates the results tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS coverage_runs (
		run_id        UUID PRIMARY KEY,
		network       TEXT NOT NULL,
		threshold_dbm DOUBLE PRECISION NOT NULL,
		points        INTEGER NOT NULL,
		error_rows    INTEGER NOT NULL,
		good_pct      DOUBLE PRECISION NOT NULL,
		marginal_pct  DOUBLE PRECISION NOT NULL,
		bad_pct       DOUBLE PRECISION NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS coverage_points (
		run_id      UUID NOT NULL REFERENCES coverage_runs(run_id) ON DELETE CASCADE,
		point_id    TEXT NOT NULL,
		rx_lat      DOUBLE PRECISION,
		rx_lon      DOUBLE PRECISION,
		towers      TEXT[] NOT NULL DEFAULT '{}',
		powers_dbm  DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
		best_band   TEXT,
		error       TEXT,
		PRIMARY KEY (run_id, point_id)
	)`,
	`CREATE TABLE IF NOT EXISTS coverage_towers (
		run_id         UUID NOT NULL REFERENCES coverage_runs(run_id) ON DELETE CASCADE,
		tower          TEXT NOT NULL,
		lon            DOUBLE PRECISION NOT NULL,
		lat            DOUBLE PRECISION NOT NULL,
		height_m       DOUBLE PRECISION NOT NULL,
		good_count     INTEGER NOT NULL,
		marginal_count INTEGER NOT NULL,
		bad_count      INTEGER NOT NULL,
		total_count    INTEGER NOT NULL,
		served         BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, tower)
	)`,
}

// RunRecord is the header row of one best-signal run.
type RunRecord struct {
	RunID           string
	Network         string
	ThresholdDBm    float64
	Points          int
	ErrorRows       int
	GoodPercent     float64
	MarginalPercent float64
	BadPercent      float64
	StartedAt       time.Time
	FinishedAt      time.Time
}

// PointRecord is one evaluated point. Towers and PowersDBm are ordered by
// rank. ErrorMessage is set, and the ranking empty, for error rows.
type PointRecord struct {
	PointID      string
	RxLat        *float64
	RxLon        *float64
	Towers       []string
	PowersDBm    []float64
	BestBand     string
	ErrorMessage string
}

// CoverageRepository persists run results.
type CoverageRepository struct {
	db DBTX
}

// NewCoverageRepository creates a CoverageRepository backed by the given
// database connection (pool or transaction).
func NewCoverageRepository(db DBTX) *CoverageRepository {
	return &CoverageRepository{db: db}
}

// EnsureSchema creates the results tables when missing.
func (r *CoverageRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to create results schema", err)
		}
	}
	return nil
}

// InsertRun stores the run header. Re-inserting a run ID replaces it.
func (r *CoverageRepository) InsertRun(ctx context.Context, run RunRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO coverage_runs
		   (run_id, network, threshold_dbm, points, error_rows, good_pct, marginal_pct, bad_pct, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (run_id) DO UPDATE SET
		   points = EXCLUDED.points,
		   error_rows = EXCLUDED.error_rows,
		   good_pct = EXCLUDED.good_pct,
		   marginal_pct = EXCLUDED.marginal_pct,
		   bad_pct = EXCLUDED.bad_pct,
		   finished_at = EXCLUDED.finished_at`,
		run.RunID, run.Network, run.ThresholdDBm, run.Points, run.ErrorRows,
		run.GoodPercent, run.MarginalPercent, run.BadPercent, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert coverage run", err)
	}
	return nil
}

// UpsertPoint stores one point result.
func (r *CoverageRepository) UpsertPoint(ctx context.Context, runID string, p PointRecord) error {
	towers, powers := p.Towers, p.PowersDBm
	if towers == nil {
		towers = []string{}
	}
	if powers == nil {
		powers = []float64{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO coverage_points
		   (run_id, point_id, rx_lat, rx_lon, towers, powers_dbm, best_band, error)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		 ON CONFLICT (run_id, point_id) DO UPDATE SET
		   rx_lat = EXCLUDED.rx_lat,
		   rx_lon = EXCLUDED.rx_lon,
		   towers = EXCLUDED.towers,
		   powers_dbm = EXCLUDED.powers_dbm,
		   best_band = EXCLUDED.best_band,
		   error = EXCLUDED.error`,
		runID, p.PointID, p.RxLat, p.RxLon, towers, powers, p.BestBand, p.ErrorMessage,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert point "+p.PointID, err)
	}
	return nil
}

// UpsertTower stores one tower's statistics.
func (r *CoverageRepository) UpsertTower(ctx context.Context, runID string, s types.TowerStat) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO coverage_towers
		   (run_id, tower, lon, lat, height_m, good_count, marginal_count, bad_count, total_count, served)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (run_id, tower) DO UPDATE SET
		   good_count = EXCLUDED.good_count,
		   marginal_count = EXCLUDED.marginal_count,
		   bad_count = EXCLUDED.bad_count,
		   total_count = EXCLUDED.total_count,
		   served = EXCLUDED.served`,
		runID, s.Name, s.Lon, s.Lat, s.HeightM,
		s.GoodCount, s.MarginalCount, s.BadCount, s.TotalCount, s.Served,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert tower "+s.Name, err)
	}
	return nil
}

// SaveRun writes the run header, every point and every tower.
func (r *CoverageRepository) SaveRun(ctx context.Context, run RunRecord, points []PointRecord, towers []types.TowerStat) error {
	if err := r.InsertRun(ctx, run); err != nil {
		return err
	}
	for _, p := range points {
		if err := r.UpsertPoint(ctx, run.RunID, p); err != nil {
			return err
		}
	}
	for _, s := range towers {
		if err := r.UpsertTower(ctx, run.RunID, s); err != nil {
			return err
		}
	}
	return nil
}

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SaveRunTx runs EnsureSchema and SaveRun inside one transaction.
func SaveRunTx(ctx context.Context, b Beginner, run RunRecord, points []PointRecord, towers []types.TowerStat) error {
	return pgx.BeginFunc(ctx, b, func(tx pgx.Tx) error {
		repo := NewCoverageRepository(tx)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		return repo.SaveRun(ctx, run, points, towers)
	})
}

// TxStore saves each run in its own transaction.
type TxStore struct {
	DB Beginner
}

// SaveRun implements the run results sink.
func (s TxStore) SaveRun(ctx context.Context, run RunRecord, points []PointRecord, towers []types.TowerStat) error {
	return SaveRunTx(ctx, s.DB, run, points, towers)
}
