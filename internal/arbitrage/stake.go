package arbitrage

import (
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// balanceEpsilon is the largest spread between outcome returns, in currency
// units, that still counts as balanced.
const balanceEpsilon = 0.01

// Allocator splits a wager across the outcomes of a best-odds set so every
// outcome pays out the same amount.
type Allocator struct {
	logger *slog.Logger
}

// NewAllocator creates an Allocator.
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{logger: componentLogger(logger, "allocator")}
}

// AllocateOpportunity is Allocate on the opportunity's best odds.
func (a *Allocator) AllocateOpportunity(opp domain.ArbitrageOpportunity, wager, unit float64) domain.StakePlan {
	return a.Allocate(opp.Odds, wager, unit)
}

// Allocate computes stake = wager × (1/price) / p for each outcome, where p is
// the set's implied probability. When unit > 0 stakes are rounded to multiples
// of unit: every outcome but the last is rounded, the last takes what is left
// of the wager, rounded too. A leftover below unit/2 is spread over the other
// outcomes and the last stake becomes zero. Units larger than the wager are
// ignored.
func (a *Allocator) Allocate(set domain.BestOddsSet, wager, unit float64) domain.StakePlan {
	plan := domain.StakePlan{Wager: wager, Rounding: unit}
	log := a.logger.With(slog.String("market", set.Market.String()), slog.Float64("wager", wager))

	if !(wager > 0) || math.IsInf(wager, 0) {
		log.Error("invalid wager")
		return failed(plan, set, domain.ReasonInvalidWager)
	}
	if !set.Valid() {
		log.Error("need at least two outcomes to allocate")
		return failed(plan, set, domain.ReasonTooFewOutcomes)
	}
	p, ok := ImpliedProbability(set)
	if !ok {
		log.Error("invalid odds, zero or negative price")
		return failed(plan, set, domain.ReasonInvalidPrice)
	}

	n := len(set.Outcomes)
	amounts := make([]float64, n)
	for i, bp := range set.Outcomes {
		amounts[i] = wager * (1 / bp.Price) / p
		if math.IsInf(amounts[i], 0) || math.IsNaN(amounts[i]) {
			log.Error("invalid odds, stake is not a finite number", slog.Float64("price", bp.Price))
			return failed(plan, set, domain.ReasonInvalidPrice)
		}
	}

	switch {
	case !(unit > 0):
		// unrounded
	case unit > wager:
		log.Warn("rounding unit larger than wager, stakes left unrounded",
			slog.Float64("rounding", unit),
		)
		plan.Flags = append(plan.Flags, domain.FlagRoundingSkipped)
	default:
		if roundStakes(amounts, wager, unit) {
			log.Warn("remaining stake too small to round, redistributing",
				slog.Float64("rounding", unit),
			)
			plan.Flags = append(plan.Flags, domain.FlagRemainderRedistributed)
			for _, amt := range amounts {
				if amt < 0 {
					log.Warn("redistribution left a negative stake",
						slog.Float64("stake", amt),
					)
					plan.Flags = append(plan.Flags, domain.FlagNegativeStake)
					break
				}
			}
		}
	}

	plan.Stakes = make([]domain.Stake, n)
	for i, bp := range set.Outcomes {
		plan.Stakes[i] = domain.Stake{
			Outcome:   bp.Outcome,
			Bookmaker: bp.Bookmaker,
			Price:     bp.Price,
			Amount:    amounts[i],
			Return:    amounts[i] * bp.Price,
		}
		plan.TotalStake += amounts[i]
	}
	plan.MinReturn, plan.MaxReturn = plan.Stakes[0].Return, plan.Stakes[0].Return
	for _, s := range plan.Stakes[1:] {
		plan.MinReturn = math.Min(plan.MinReturn, s.Return)
		plan.MaxReturn = math.Max(plan.MaxReturn, s.Return)
	}

	if unit > 0 && math.Abs(plan.TotalStake-wager) > balanceEpsilon {
		log.Warn("rounding changed the total stake",
			slog.Float64("total_stake", plan.TotalStake),
		)
	}
	if plan.MinReturn < plan.TotalStake {
		log.Warn("rounding has eliminated the arbitrage",
			slog.Float64("min_return", plan.MinReturn),
			slog.Float64("total_stake", plan.TotalStake),
		)
		plan.Flags = append(plan.Flags, domain.FlagGuaranteeLost)
	}
	if spread := plan.MaxReturn - plan.MinReturn; spread > balanceEpsilon {
		log.Info("returns are not balanced", slog.Float64("variation", spread))
		plan.Flags = append(plan.Flags, domain.FlagUnbalanced)
	}

	plan.Profit = plan.MinReturn - plan.TotalStake
	if plan.TotalStake > 0 {
		plan.ProfitPercent = plan.Profit / plan.TotalStake * 100
	}
	plan.Status = domain.StatusSuccess
	if plan.Degraded() {
		plan.Status = domain.StatusPartial
	}
	return plan
}

// roundStakes rounds amounts in place and reports whether the last outcome's
// remainder had to be redistributed.
func roundStakes(amounts []float64, wager, unit float64) bool {
	u := decimal.NewFromFloat(unit)
	remaining := decimal.NewFromFloat(wager)
	last := len(amounts) - 1

	for i := 0; i < last; i++ {
		r := roundTo(decimal.NewFromFloat(amounts[i]), u)
		amounts[i] = r.InexactFloat64()
		remaining = remaining.Sub(r)
	}

	if remaining.LessThan(u.Div(decimal.NewFromInt(2))) {
		adj := remaining.Div(decimal.NewFromInt(int64(last)))
		for i := 0; i < last; i++ {
			amounts[i] = decimal.NewFromFloat(amounts[i]).Add(adj).InexactFloat64()
		}
		amounts[last] = 0
		return true
	}
	amounts[last] = roundTo(remaining, u).InexactFloat64()
	return false
}

// roundTo rounds v to the nearest multiple of unit, halves to even.
func roundTo(v, unit decimal.Decimal) decimal.Decimal {
	return v.Div(unit).RoundBank(0).Mul(unit)
}

func failed(plan domain.StakePlan, set domain.BestOddsSet, reason domain.Reason) domain.StakePlan {
	plan.Status = domain.StatusFailure
	plan.Reason = reason
	plan.Stakes = make([]domain.Stake, len(set.Outcomes))
	for i, bp := range set.Outcomes {
		plan.Stakes[i] = domain.Stake{Outcome: bp.Outcome, Bookmaker: bp.Bookmaker, Price: bp.Price}
	}
	return plan
}
