package arbitrage

import (
	"log/slog"
	"math"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Selection is the single best-odds set chosen for an event, if any.
type Selection struct {
	Status             domain.Status
	Reason             domain.Reason
	Set                *domain.BestOddsSet
	ImpliedProbability float64
	Skipped            []domain.Skip
}

// Aggregator picks one line per event out of the reconciler's per-line sets.
type Aggregator struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewAggregator creates an Aggregator on top of r.
func NewAggregator(r *Reconciler, logger *slog.Logger) *Aggregator {
	return &Aggregator{reconciler: r, logger: componentLogger(logger, "aggregator")}
}

// Select reconciles event for market and returns the chosen set.
//
// Totals take the line with the globally lowest implied probability among
// lines quoting both Over and Under; the first such line wins ties. Spreads
// take the first line, in encounter order, whose two sides come from
// different bookmakers and whose implied probability is below one. Moneyline
// passes the reconciled set through.
func (a *Aggregator) Select(event domain.Event, market domain.MarketType) Selection {
	rec := a.reconciler.Reconcile(event, market)
	sel := Selection{Skipped: rec.Skipped}
	if rec.Status == domain.StatusFailure {
		sel.Status, sel.Reason = domain.StatusFailure, rec.Reason
		return sel
	}

	switch market {
	case domain.MarketMoneyline:
		set := rec.Sets[0]
		sel.Set = &set
		sel.ImpliedProbability, _ = ImpliedProbability(set)
	case domain.MarketTotals:
		a.selectTotals(rec.Sets, &sel)
	case domain.MarketSpreads:
		a.selectSpreads(event, rec.Sets, &sel)
	}

	if sel.Set == nil {
		sel.Status = domain.StatusFailure
		if sel.Reason == domain.ReasonNone {
			sel.Reason = domain.ReasonNoEligibleLine
		}
		return sel
	}
	sel.Status = rec.Status
	sel.Reason = rec.Reason
	return sel
}

func (a *Aggregator) selectTotals(sets []domain.BestOddsSet, sel *Selection) {
	best := math.Inf(1)
	for i := range sets {
		if sets[i].Len() != 2 {
			continue
		}
		p, ok := ImpliedProbability(sets[i])
		if !ok {
			continue
		}
		if p < best {
			best = p
			sel.Set = &sets[i]
		}
	}
	if sel.Set != nil {
		sel.ImpliedProbability = best
	}
}

func (a *Aggregator) selectSpreads(event domain.Event, sets []domain.BestOddsSet, sel *Selection) {
	eligible := 0
	for i := range sets {
		set := sets[i]
		if set.Len() != 2 {
			continue
		}
		if !set.DistinctBookmakers() {
			a.logger.Debug("spread line quoted by one bookmaker on both sides",
				slog.String("event", event.Description()),
				slog.Float64("line", *set.Line),
				slog.String("bookmaker", set.Outcomes[0].Bookmaker),
			)
			sel.Skipped = append(sel.Skipped, domain.Skip{
				Reason: domain.ReasonSameBookmaker,
				Detail: set.Outcomes[0].Bookmaker,
			})
			continue
		}
		p, ok := ImpliedProbability(set)
		if !ok {
			continue
		}
		eligible++
		if p < 1 {
			sel.Set = &sets[i]
			sel.ImpliedProbability = p
			return
		}
	}
	if eligible > 0 {
		sel.Reason = domain.ReasonNoArbitrage
	}
}
