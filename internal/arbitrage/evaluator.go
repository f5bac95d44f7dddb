package arbitrage

import (
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// ImpliedProbability returns the sum of 1/price over the set's outcomes. It
// reports false when any price is not a positive finite number or the sum
// overflows, as it does for subnormal prices.
func ImpliedProbability(set domain.BestOddsSet) (float64, bool) {
	var p float64
	for _, bp := range set.Outcomes {
		if !(bp.Price > 0) || math.IsInf(bp.Price, 0) {
			return 0, false
		}
		p += 1 / bp.Price
	}
	if math.IsInf(p, 0) || math.IsNaN(p) {
		return 0, false
	}
	return p, len(set.Outcomes) > 0
}

// ProfitMargin converts an implied probability into a percentage margin.
func ProfitMargin(impliedProbability float64) float64 {
	return (1/impliedProbability - 1) * 100
}

// MarginToProbability is the inverse of ProfitMargin.
func MarginToProbability(margin float64) float64 {
	return 100 / (100 + margin)
}

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	// Cutoff is the minimum accepted profit margin in percent (inclusive).
	Cutoff           float64
	IncludeLinks     bool
	IncludeBetLimits bool
	Logger           *slog.Logger
	Now              func() time.Time
}

// Evaluator decides whether a best-odds set is an acceptable arbitrage.
type Evaluator struct {
	cutoff           float64
	includeLinks     bool
	includeBetLimits bool
	now              func() time.Time
	logger           *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		cutoff:           cfg.Cutoff,
		includeLinks:     cfg.IncludeLinks,
		includeBetLimits: cfg.IncludeBetLimits,
		now:              now,
		logger:           componentLogger(cfg.Logger, "evaluator"),
	}
}

// Evaluate judges set against the cutoff and packages an opportunity when it
// qualifies.
func (e *Evaluator) Evaluate(event domain.Event, set domain.BestOddsSet) domain.Evaluation {
	log := e.logger.With(
		slog.String("event", event.Description()),
		slog.String("market", set.Market.String()),
	)

	if !set.Valid() {
		log.Debug("no valid odds")
		return reject(domain.ReasonTooFewOutcomes)
	}
	if !set.Market.Valid() {
		log.Warn("unsupported market")
		return reject(domain.ReasonUnsupportedMarket)
	}
	if set.Market == domain.MarketSpreads && !set.DistinctBookmakers() {
		log.Warn("invalid spread bet setup, both sides from one bookmaker",
			slog.String("bookmaker", set.Outcomes[0].Bookmaker),
		)
		return reject(domain.ReasonSameBookmaker)
	}

	p, ok := ImpliedProbability(set)
	if !ok {
		log.Warn("invalid odds, non-positive price")
		return reject(domain.ReasonInvalidPrice)
	}

	ev := domain.Evaluation{ImpliedProbability: p}
	if p >= 1 {
		log.Debug("no arbitrage opportunity", slog.Float64("implied_probability", p))
		ev.Status, ev.Reason = domain.StatusFailure, domain.ReasonNoArbitrage
		return ev
	}

	ev.ProfitMargin = ProfitMargin(p)
	if ev.ProfitMargin < e.cutoff {
		log.Debug("profit margin below cutoff",
			slog.Float64("profit_margin", ev.ProfitMargin),
			slog.Float64("cutoff", e.cutoff),
		)
		ev.Status, ev.Reason = domain.StatusFailure, domain.ReasonBelowCutoff
		return ev
	}

	opp := &domain.ArbitrageOpportunity{
		EventID:            event.ID,
		Sport:              event.SportKey,
		Event:              event.Description(),
		CommenceTime:       event.CommenceTime,
		Market:             set.Market,
		Odds:               set.Clone(),
		ImpliedProbability: p,
		ProfitMargin:       ev.ProfitMargin,
		DetectedAt:         e.now().UTC(),
	}
	if set.Line != nil {
		opp.Line = domain.LinePtr(*set.Line)
	}
	if e.includeLinks {
		opp.Links = bookmakerLinks(event)
	}
	if e.includeBetLimits {
		opp.BetLimits = betLimits(event)
	}

	log.Info("arbitrage opportunity found",
		slog.Float64("implied_probability", p),
		slog.Float64("profit_margin", ev.ProfitMargin),
	)
	ev.Status = domain.StatusSuccess
	ev.Opportunity = opp
	return ev
}

func reject(reason domain.Reason) domain.Evaluation {
	return domain.Evaluation{Status: domain.StatusFailure, Reason: reason}
}

// bookmakerLinks maps bookmaker title to its event link.
func bookmakerLinks(event domain.Event) map[string]string {
	links := make(map[string]string)
	for _, bm := range event.Bookmakers {
		if bm.Link != "" {
			links[bm.Title] = bm.Link
		}
	}
	return links
}

// betLimits maps outcome name to the quoted bet limit; later quotes win.
func betLimits(event domain.Event) map[string]float64 {
	limits := make(map[string]float64)
	for _, bm := range event.Bookmakers {
		for _, m := range bm.Markets {
			for _, o := range m.Outcomes {
				if o.BetLimit != nil {
					limits[o.Name] = *o.BetLimit
				}
			}
		}
	}
	return limits
}
