package arbitrage_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbfinder/internal/arbitrage"
	"github.com/alanyoungcy/arbfinder/internal/domain"
)

func pricedSet(prices ...float64) domain.BestOddsSet {
	set := domain.BestOddsSet{Market: domain.MarketMoneyline}
	for i, p := range prices {
		set.Outcomes = append(set.Outcomes, domain.BestPrice{
			Outcome:   fmt.Sprintf("Outcome %c", 'A'+i),
			Price:     p,
			Bookmaker: fmt.Sprintf("Book%d", i+1),
		})
	}
	return set
}

func TestAllocate_Unrounded(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		wager  float64
	}{
		{name: "two way", prices: []float64{2.10, 2.20}, wager: 100},
		{name: "three way", prices: []float64{3.2, 3.6, 3.9}, wager: 250},
		{name: "long shot", prices: []float64{1.05, 30}, wager: 1000},
	}

	alloc := arbitrage.NewAllocator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := pricedSet(tt.prices...)
			p, ok := arbitrage.ImpliedProbability(set)
			require.True(t, ok)

			plan := alloc.Allocate(set, tt.wager, 0)
			require.Len(t, plan.Stakes, len(tt.prices))
			assert.InDelta(t, tt.wager, plan.TotalStake, 1e-9)

			want := tt.wager * (1 + arbitrage.ProfitMargin(p)/100)
			for _, s := range plan.Stakes {
				assert.InDelta(t, want, s.Return, 1e-9)
			}
			assert.InDelta(t, plan.MinReturn, plan.MaxReturn, 1e-9)
			assert.False(t, plan.Has(domain.FlagUnbalanced))
		})
	}
}

func TestAllocate_RoundedExample(t *testing.T) {
	plan := arbitrage.NewAllocator(nil).Allocate(pricedSet(2.10, 2.20), 100, 5)

	require.Len(t, plan.Stakes, 2)
	assert.InDelta(t, 50, plan.Stakes[0].Amount, 1e-9)
	assert.InDelta(t, 50, plan.Stakes[1].Amount, 1e-9)
	assert.InDelta(t, 105, plan.Stakes[0].Return, 1e-9)
	assert.InDelta(t, 110, plan.Stakes[1].Return, 1e-9)
	assert.InDelta(t, 100, plan.TotalStake, 1e-9)
	assert.InDelta(t, 5, plan.Profit, 1e-9)
	assert.InDelta(t, 5, plan.ProfitPercent, 1e-9)
	assert.Equal(t, []domain.PlanFlag{domain.FlagUnbalanced}, plan.Flags)
	assert.Equal(t, domain.StatusPartial, plan.Status)
}

func TestAllocate_RemainderRedistributed(t *testing.T) {
	plan := arbitrage.NewAllocator(nil).Allocate(pricedSet(1.05, 30), 100, 10)

	require.Len(t, plan.Stakes, 2)
	assert.InDelta(t, 100, plan.Stakes[0].Amount, 1e-9)
	assert.Zero(t, plan.Stakes[1].Amount)
	assert.True(t, plan.Has(domain.FlagRemainderRedistributed))
	assert.True(t, plan.Has(domain.FlagGuaranteeLost))
	assert.Equal(t, domain.StatusPartial, plan.Status)
	assert.Less(t, plan.Profit, 0.0)
}

func TestAllocate_NegativeStakeFlagged(t *testing.T) {
	// Unrounded stakes 0.4, 2.6, 2.6, 2.6, 1.8: the three middle stakes round
	// up to 5, leaving -5 to spread over the first four.
	set := pricedSet(25, 10/2.6, 10/2.6, 10/2.6, 10/1.8)
	plan := arbitrage.NewAllocator(nil).Allocate(set, 10, 5)

	require.Len(t, plan.Stakes, 5)
	assert.InDelta(t, -1.25, plan.Stakes[0].Amount, 1e-9)
	assert.Zero(t, plan.Stakes[4].Amount)
	assert.True(t, plan.Has(domain.FlagRemainderRedistributed))
	assert.True(t, plan.Has(domain.FlagNegativeStake))
	assert.Equal(t, domain.StatusPartial, plan.Status)
}

func TestAllocate_UnitLargerThanWager(t *testing.T) {
	set := pricedSet(2.10, 2.20)
	alloc := arbitrage.NewAllocator(nil)

	plan := alloc.Allocate(set, 10, 20)
	unrounded := alloc.Allocate(set, 10, 0)

	assert.True(t, plan.Has(domain.FlagRoundingSkipped))
	assert.Equal(t, domain.StatusSuccess, plan.Status)
	for i := range plan.Stakes {
		assert.InDelta(t, unrounded.Stakes[i].Amount, plan.Stakes[i].Amount, 1e-12)
	}
}

func TestAllocate_TotalWithinHalfUnit(t *testing.T) {
	alloc := arbitrage.NewAllocator(nil)
	for _, prices := range [][]float64{
		{2.10, 2.20},
		{1.5, 3.4},
		{1.9, 2.15},
		{3.1, 3.5, 3.3},
		{1.2, 8.5},
	} {
		for _, wager := range []float64{10, 37, 100, 555.55, 1000} {
			for _, unit := range []float64{0.01, 0.5, 1, 5, 10} {
				if unit > wager {
					continue
				}
				name := fmt.Sprintf("%v/%v/%v", prices, wager, unit)
				plan := alloc.Allocate(pricedSet(prices...), wager, unit)
				require.NotEqual(t, domain.StatusFailure, plan.Status, name)
				assert.InDelta(t, wager, plan.TotalStake, unit/2+1e-9, name)
				for _, s := range plan.Stakes {
					assert.GreaterOrEqual(t, s.Amount, 0.0, name)
				}
			}
		}
	}
}

func TestAllocate_Idempotent(t *testing.T) {
	alloc := arbitrage.NewAllocator(nil)
	set := pricedSet(1.9, 2.15)

	first := alloc.Allocate(set, 250, 5)
	second := alloc.Allocate(set, 250, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, pricedSet(1.9, 2.15), set, "input set must not change")
}

func TestAllocate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		set    domain.BestOddsSet
		wager  float64
		unit   float64
		reason domain.Reason
	}{
		{name: "zero price", set: pricedSet(0, 2.2), wager: 100, unit: 1, reason: domain.ReasonInvalidPrice},
		{name: "negative price", set: pricedSet(2.1, -3), wager: 100, unit: 1, reason: domain.ReasonInvalidPrice},
		{name: "subnormal price rounded", set: pricedSet(5e-324, 2.2), wager: 100, unit: 5, reason: domain.ReasonInvalidPrice},
		{name: "subnormal price unrounded", set: pricedSet(5e-324, 2.2), wager: 100, unit: 0, reason: domain.ReasonInvalidPrice},
		{name: "single outcome", set: pricedSet(2.1), wager: 100, unit: 1, reason: domain.ReasonTooFewOutcomes},
		{name: "zero wager", set: pricedSet(2.1, 2.2), wager: 0, unit: 1, reason: domain.ReasonInvalidWager},
		{name: "negative wager", set: pricedSet(2.1, 2.2), wager: -5, unit: 1, reason: domain.ReasonInvalidWager},
	}

	alloc := arbitrage.NewAllocator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var plan domain.StakePlan
			require.NotPanics(t, func() { plan = alloc.Allocate(tt.set, tt.wager, tt.unit) })
			assert.Equal(t, domain.StatusFailure, plan.Status)
			assert.Equal(t, tt.reason, plan.Reason)
			assert.Len(t, plan.Stakes, tt.set.Len())
			for _, s := range plan.Stakes {
				assert.Zero(t, s.Amount)
			}
			assert.Zero(t, plan.TotalStake)
		})
	}
}

func TestAllocateOpportunity(t *testing.T) {
	res := newEngine(t, domain.MarketMoneyline, 0).EvaluateEvent(moneylineEvent())
	require.True(t, res.Accepted())

	plan := arbitrage.NewAllocator(nil).AllocateOpportunity(*res.Opportunity, 100, 0)
	assert.Equal(t, domain.StatusSuccess, plan.Status)
	assert.InDelta(t, res.ProfitMargin, plan.ProfitPercent, 1e-9)
	assert.Equal(t, "BookOne", plan.Stakes[0].Bookmaker)
	assert.Equal(t, "BookTwo", plan.Stakes[1].Bookmaker)
}
