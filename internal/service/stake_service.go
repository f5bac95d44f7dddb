package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbfinder/internal/arbitrage"
	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

// StakeDefaults are used when a request leaves wager or rounding unset.
type StakeDefaults struct {
	Wager    float64
	Rounding float64
}

// OpportunityPlan pairs an opportunity with its stake plan and the projected
// payout of the unrounded wager.
type OpportunityPlan struct {
	Opportunity     domain.ArbitrageOpportunity `json:"opportunity"`
	Plan            domain.StakePlan            `json:"plan"`
	ProjectedProfit float64                     `json:"projected_profit"`
	ProjectedPayout float64                     `json:"projected_payout"`
}

// StakeService computes stake plans for stored or ad-hoc opportunities.
type StakeService struct {
	opps      domain.OpportunityStore
	allocator *arbitrage.Allocator
	defaults  StakeDefaults
	logger    *slog.Logger
}

// NewStakeService creates a StakeService. opps may be nil when only ad-hoc
// plans are needed.
func NewStakeService(opps domain.OpportunityStore, defaults StakeDefaults, logger *slog.Logger) *StakeService {
	return &StakeService{
		opps:      opps,
		allocator: arbitrage.NewAllocator(logger),
		defaults:  defaults,
		logger:    logger.With(slog.String("component", "stake_service")),
	}
}

// Defaults returns the configured wager and rounding unit.
func (s *StakeService) Defaults() StakeDefaults {
	return s.defaults
}

// Plan allocates wager over opp's outcomes, rounding to the unit when it is
// positive.
func (s *StakeService) Plan(opp domain.ArbitrageOpportunity, wager, rounding float64) OpportunityPlan {
	profit, payout := arbitrage.Payout(opp, wager)
	return OpportunityPlan{
		Opportunity:     opp,
		Plan:            s.allocator.AllocateOpportunity(opp, wager, rounding),
		ProjectedProfit: profit,
		ProjectedPayout: payout,
	}
}

// PlanStored loads the opportunity with id and plans it.
func (s *StakeService) PlanStored(ctx context.Context, id string, wager, rounding float64) (OpportunityPlan, error) {
	if s.opps == nil {
		return OpportunityPlan{}, fmt.Errorf("stake_service: plan %s: %w", id, domain.ErrNotFound)
	}
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return OpportunityPlan{}, fmt.Errorf("stake_service: plan %s: %w", id, err)
	}
	return s.Plan(opp, wager, rounding), nil
}

// PlanResults plans every opportunity of a results document with the
// configured defaults and logs each plan.
func (s *StakeService) PlanResults(ctx context.Context, doc snapshot.Results) []OpportunityPlan {
	plans := make([]OpportunityPlan, 0, len(doc.Opportunities))
	for _, opp := range doc.Opportunities {
		p := s.Plan(opp, s.defaults.Wager, s.defaults.Rounding)
		plans = append(plans, p)

		attrs := []any{
			slog.String("event", opp.Event),
			slog.String("market", opp.Market.String()),
			slog.Float64("profit_margin", opp.ProfitMargin),
			slog.String("status", string(p.Plan.Status)),
		}
		if p.Plan.Status == domain.StatusFailure {
			s.logger.WarnContext(ctx, "no stake plan", append(attrs, slog.String("reason", string(p.Plan.Reason)))...)
			continue
		}
		for _, st := range p.Plan.Stakes {
			attrs = append(attrs, slog.Group(st.Outcome,
				slog.String("bookmaker", st.Bookmaker),
				slog.Float64("price", st.Price),
				slog.Float64("stake", st.Amount),
				slog.Float64("return", st.Return),
			))
		}
		attrs = append(attrs,
			slog.Float64("total_stake", p.Plan.TotalStake),
			slog.Float64("profit", p.Plan.Profit),
			slog.Float64("profit_percent", p.Plan.ProfitPercent),
		)
		s.logger.InfoContext(ctx, "stake plan", attrs...)
	}
	return plans
}
