package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ArbService is the read side of recorded opportunities and scan runs.
type ArbService struct {
	opps   domain.OpportunityStore
	runs   domain.ScanRunStore
	logger *slog.Logger
}

// NewArbService creates an ArbService.
func NewArbService(opps domain.OpportunityStore, runs domain.ScanRunStore, logger *slog.Logger) *ArbService {
	return &ArbService{
		opps:   opps,
		runs:   runs,
		logger: logger.With(slog.String("component", "arb_service")),
	}
}

// ClampLimit applies the default and maximum page size to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// ListRecent returns the most recently detected opportunities.
func (s *ArbService) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	opps, err := s.opps.ListRecent(ctx, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("arb_service: list recent: %w", err)
	}
	return opps, nil
}

// Get returns one opportunity by id.
func (s *ArbService) Get(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("arb_service: get %q: %w", id, err)
	}
	return opp, nil
}

// ListRuns returns the most recent scan runs.
func (s *ArbService) ListRuns(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	runs, err := s.runs.ListRecent(ctx, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("arb_service: list runs: %w", err)
	}
	return runs, nil
}
