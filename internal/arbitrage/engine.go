package arbitrage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// EngineConfig is the per-run configuration of the engine.
type EngineConfig struct {
	Market           domain.MarketType
	Cutoff           float64
	IncludeLinks     bool
	IncludeBetLimits bool
	NameCutoff       float64
	Now              func() time.Time
}

// Engine runs reconciliation, line selection and evaluation for one market.
// It is safe for concurrent use when its NameCache is.
type Engine struct {
	market     domain.MarketType
	aggregator *Aggregator
	evaluator  *Evaluator
	logger     *slog.Logger
}

// NewEngine validates cfg and builds an engine. An unsupported market or a
// negative cutoff is a configuration error for the whole run.
func NewEngine(cfg EngineConfig, names domain.NameCache, logger *slog.Logger) (*Engine, error) {
	if !cfg.Market.Valid() {
		return nil, fmt.Errorf("arbitrage: new engine: %w", domain.ErrUnsupportedMarket)
	}
	if cfg.Cutoff < 0 {
		return nil, fmt.Errorf("arbitrage: new engine: negative cutoff %v", cfg.Cutoff)
	}
	rec := NewReconciler(ReconcilerConfig{
		Names:        names,
		NameCutoff:   cfg.NameCutoff,
		IncludeLinks: cfg.IncludeLinks,
		Logger:       logger,
	})
	return &Engine{
		market:     cfg.Market,
		aggregator: NewAggregator(rec, logger),
		evaluator: NewEvaluator(EvaluatorConfig{
			Cutoff:           cfg.Cutoff,
			IncludeLinks:     cfg.IncludeLinks,
			IncludeBetLimits: cfg.IncludeBetLimits,
			Logger:           logger,
			Now:              cfg.Now,
		}),
		logger: componentLogger(logger, "engine"),
	}, nil
}

// Market returns the market this engine evaluates.
func (e *Engine) Market() domain.MarketType {
	return e.market
}

// EvaluateEvent runs one event through the pipeline.
func (e *Engine) EvaluateEvent(event domain.Event) domain.Evaluation {
	sel := e.aggregator.Select(event, e.market)
	if sel.Set == nil {
		e.logger.Debug("no eligible odds",
			slog.String("event", event.Description()),
			slog.String("reason", string(sel.Reason)),
		)
		return domain.Evaluation{
			Status:             domain.StatusFailure,
			Reason:             sel.Reason,
			ImpliedProbability: sel.ImpliedProbability,
		}
	}
	return e.evaluator.Evaluate(event, *sel.Set)
}

// Evaluate runs every event and returns the accepted opportunities in event
// order.
func (e *Engine) Evaluate(events []domain.Event) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	for _, ev := range events {
		if res := e.EvaluateEvent(ev); res.Accepted() {
			opps = append(opps, *res.Opportunity)
		}
	}
	return opps
}

// Payout projects profit and total payout for wager placed proportionally on
// opp. Both are zero when the odds are unusable.
func Payout(opp domain.ArbitrageOpportunity, wager float64) (profit, payout float64) {
	p, ok := ImpliedProbability(opp.Odds)
	if !ok || wager <= 0 {
		return 0, 0
	}
	profit = wager * (1/p - 1)
	return profit, wager + profit
}
