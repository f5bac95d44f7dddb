package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

const oppSelectCols = `id, event_id, sport, event, commence_time, market, line,
	best_odds, implied_probability, profit_margin, links, bet_limits, detected_at`

// Insert stores an accepted opportunity. An empty ID is filled with a new
// uuid; runID may be empty for opportunities not tied to a stored scan.
func (s *OpportunityStore) Insert(ctx context.Context, runID string, opp domain.ArbitrageOpportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	odds, err := json.Marshal(opp.Odds)
	if err != nil {
		return fmt.Errorf("postgres: marshal best odds: %w", err)
	}
	links, err := nullableJSON(opp.Links)
	if err != nil {
		return fmt.Errorf("postgres: marshal links: %w", err)
	}
	limits, err := nullableJSON(opp.BetLimits)
	if err != nil {
		return fmt.Errorf("postgres: marshal bet limits: %w", err)
	}

	var commence *time.Time
	if !opp.CommenceTime.IsZero() {
		commence = &opp.CommenceTime
	}
	var run *string
	if runID != "" {
		run = &runID
	}

	const query = `
		INSERT INTO arb_opportunities (
			id, run_id, event_id, sport, event, commence_time, market, line,
			best_odds, implied_probability, profit_margin, links, bet_limits, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, run, opp.EventID, opp.Sport, opp.Event, commence, opp.Market.String(), opp.Line,
		odds, opp.ImpliedProbability, opp.ProfitMargin, links, limits, opp.DetectedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+oppSelectCols+` FROM arb_opportunities WHERE id = $1`, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM arb_opportunities ORDER BY detected_at DESC, id`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, "list recent opportunities", query, args...)
}

// ListBefore returns every opportunity detected before the cutoff, oldest
// first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM arb_opportunities WHERE detected_at < $1 ORDER BY detected_at, id`
	return s.list(ctx, "list opportunities before", query, before)
}

// DeleteBefore removes opportunities detected before the cutoff and returns
// how many rows went.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arb_opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, what, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return opps, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp                 domain.ArbitrageOpportunity
		commence            *time.Time
		market              string
		odds, links, limits []byte
	)
	if err := row.Scan(
		&opp.ID, &opp.EventID, &opp.Sport, &opp.Event, &commence, &market, &opp.Line,
		&odds, &opp.ImpliedProbability, &opp.ProfitMargin, &links, &limits, &opp.DetectedAt,
	); err != nil {
		return opp, err
	}

	mt, err := domain.ParseMarketType(market)
	if err != nil {
		return opp, err
	}
	opp.Market = mt
	if commence != nil {
		opp.CommenceTime = commence.UTC()
	}
	opp.DetectedAt = opp.DetectedAt.UTC()
	if err := json.Unmarshal(odds, &opp.Odds); err != nil {
		return opp, fmt.Errorf("best_odds: %w", err)
	}
	if links != nil {
		if err := json.Unmarshal(links, &opp.Links); err != nil {
			return opp, fmt.Errorf("links: %w", err)
		}
	}
	if limits != nil {
		if err := json.Unmarshal(limits, &opp.BetLimits); err != nil {
			return opp, fmt.Errorf("bet_limits: %w", err)
		}
	}
	return opp, nil
}

// nullableJSON marshals v, mapping empty maps to SQL NULL.
func nullableJSON[M ~map[string]V, V any](v M) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
