package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// ScanRunStore implements domain.ScanRunStore using PostgreSQL.
type ScanRunStore struct {
	pool *pgxpool.Pool
}

// NewScanRunStore creates a new ScanRunStore backed by the given connection pool.
func NewScanRunStore(pool *pgxpool.Pool) *ScanRunStore {
	return &ScanRunStore{pool: pool}
}

var _ domain.ScanRunStore = (*ScanRunStore)(nil)

// Insert stores a finished scan summary.
func (s *ScanRunStore) Insert(ctx context.Context, run domain.ScanRun) error {
	const query = `
		INSERT INTO scan_runs (
			id, market, cutoff, total_events, total_opportunities,
			sports_scanned, sports_failed, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Market.String(), run.Cutoff, run.TotalEvents, run.TotalOpportunities,
		run.SportsScanned, run.SportsFailed, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert scan run %s: %w", run.ID, err)
	}
	return nil
}

// ListRecent returns the latest scans, newest first.
func (s *ScanRunStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	query := `SELECT id, market, cutoff, total_events, total_opportunities,
		sports_scanned, sports_failed, started_at, finished_at
		FROM scan_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent scan runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScanRun
	for rows.Next() {
		var run domain.ScanRun
		var market string
		if err := rows.Scan(
			&run.ID, &market, &run.Cutoff, &run.TotalEvents, &run.TotalOpportunities,
			&run.SportsScanned, &run.SportsFailed, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan scan run: %w", err)
		}
		if run.Market, err = domain.ParseMarketType(market); err != nil {
			return nil, fmt.Errorf("postgres: scan run %s: %w", run.ID, err)
		}
		run.StartedAt, run.FinishedAt = run.StartedAt.UTC(), run.FinishedAt.UTC()
		run.Duration = run.FinishedAt.Sub(run.StartedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent scan runs rows: %w", err)
	}
	return runs, nil
}
