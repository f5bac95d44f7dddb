// Package arbitrage is the odds engine: it reconciles bookmaker quotes into
// best-price sets, picks the best line per market, judges whether a set is an
// arbitrage, and allocates stakes across its outcomes. Nothing in this package
// performs I/O.
package arbitrage

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Reconciliation is the typed result of scanning one event for one market.
type Reconciliation struct {
	Status  domain.Status
	Reason  domain.Reason
	Sets    []domain.BestOddsSet
	Skipped []domain.Skip
}

// Reconciler keeps the best price per outcome identity across bookmakers.
type Reconciler struct {
	names        domain.NameCache
	matcher      NameMatcher
	includeLinks bool
	logger       *slog.Logger
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	// Names memoizes spread team-name matches. A fresh in-memory cache is used
	// when nil.
	Names        domain.NameCache
	NameCutoff   float64
	IncludeLinks bool
	Logger       *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	names := cfg.Names
	if names == nil {
		names = NewMemoryNameCache()
	}
	return &Reconciler{
		names:        names,
		matcher:      NameMatcher{Cutoff: cfg.NameCutoff},
		includeLinks: cfg.IncludeLinks,
		logger:       componentLogger(cfg.Logger, "reconciler"),
	}
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger.With(slog.String("component", name))
}

// Reconcile returns the best-price sets of event for market: one set for
// moneyline, one set per distinct line value for totals and spreads.
func (r *Reconciler) Reconcile(event domain.Event, market domain.MarketType) Reconciliation {
	var res Reconciliation
	switch market {
	case domain.MarketMoneyline:
		res = r.moneyline(event)
	case domain.MarketTotals:
		res = r.totals(event)
	case domain.MarketSpreads:
		res = r.spreads(event)
	default:
		r.logger.Warn("unsupported market", slog.String("market", market.String()))
		return Reconciliation{Status: domain.StatusFailure, Reason: domain.ReasonUnsupportedMarket}
	}
	return res.finish()
}

func (res Reconciliation) finish() Reconciliation {
	switch {
	case len(res.Sets) == 0:
		res.Status = domain.StatusFailure
		if res.Reason == domain.ReasonNone {
			res.Reason = domain.ReasonNoData
		}
	case len(res.Skipped) > 0:
		res.Status = domain.StatusPartial
		res.Reason = domain.ReasonMalformed
	default:
		res.Status = domain.StatusSuccess
	}
	return res
}

// quotes yields every outcome of every bookmaker market of the given type.
func quotes(event domain.Event, market domain.MarketType, fn func(bm domain.Bookmaker, o domain.Outcome)) {
	for _, bm := range event.Bookmakers {
		for _, m := range bm.Markets {
			if m.Type != market {
				continue
			}
			for _, o := range m.Outcomes {
				fn(bm, o)
			}
		}
	}
}

// validPrice reports whether p is a usable decimal price.
func validPrice(p float64) bool {
	return p > 1 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func validLine(l *float64) bool {
	return l != nil && !math.IsNaN(*l) && !math.IsInf(*l, 0)
}

func (r *Reconciler) price(bm domain.Bookmaker, o domain.Outcome, label string) domain.BestPrice {
	bp := domain.BestPrice{Outcome: label, Price: o.Price, Bookmaker: bm.Title}
	if r.includeLinks {
		bp.Link = o.Link
	}
	return bp
}

func (r *Reconciler) moneyline(event domain.Event) Reconciliation {
	var res Reconciliation
	set := domain.BestOddsSet{Market: domain.MarketMoneyline}
	index := make(map[string]int)

	quotes(event, domain.MarketMoneyline, func(bm domain.Bookmaker, o domain.Outcome) {
		if o.Name == "" || !validPrice(o.Price) {
			res.Skipped = append(res.Skipped, skipQuote(bm, o))
			return
		}
		i, seen := index[o.Name]
		if !seen {
			index[o.Name] = len(set.Outcomes)
			set.Outcomes = append(set.Outcomes, r.price(bm, o, o.Name))
			return
		}
		if o.Price > set.Outcomes[i].Price {
			set.Outcomes[i] = r.price(bm, o, o.Name)
		}
	})

	if !set.Valid() {
		res.Reason = domain.ReasonTooFewOutcomes
		return res
	}
	res.Sets = []domain.BestOddsSet{set}
	return res
}

// sides tracks the two best prices at one line value. Index 0 is Over (totals)
// or the home team (spreads).
type sides struct {
	line float64
	best [2]*domain.BestPrice
}

func (s *sides) offer(i int, bp domain.BestPrice) {
	if s.best[i] == nil || bp.Price > s.best[i].Price {
		s.best[i] = &bp
	}
}

func (s *sides) set(market domain.MarketType) domain.BestOddsSet {
	out := domain.BestOddsSet{Market: market, Line: domain.LinePtr(s.line)}
	for _, bp := range s.best {
		if bp != nil {
			out.Outcomes = append(out.Outcomes, *bp)
		}
	}
	return out
}

// lineBook keeps per-line sides in first-seen order.
type lineBook struct {
	order []*sides
	index map[float64]*sides
}

func newLineBook() *lineBook {
	return &lineBook{index: make(map[float64]*sides)}
}

func (b *lineBook) at(line float64) *sides {
	if s, ok := b.index[line]; ok {
		return s
	}
	s := &sides{line: line}
	b.index[line] = s
	b.order = append(b.order, s)
	return s
}

func (b *lineBook) sets(market domain.MarketType) []domain.BestOddsSet {
	out := make([]domain.BestOddsSet, 0, len(b.order))
	for _, s := range b.order {
		out = append(out, s.set(market))
	}
	return out
}

func (r *Reconciler) totals(event domain.Event) Reconciliation {
	var res Reconciliation
	book := newLineBook()

	quotes(event, domain.MarketTotals, func(bm domain.Bookmaker, o domain.Outcome) {
		if !validLine(o.Line) || !validPrice(o.Price) {
			res.Skipped = append(res.Skipped, skipQuote(bm, o))
			return
		}
		var side int
		switch o.Name {
		case domain.OutcomeOver:
			side = 0
		case domain.OutcomeUnder:
			side = 1
		default:
			res.Skipped = append(res.Skipped, skipQuote(bm, o))
			return
		}
		book.at(*o.Line).offer(side, r.price(bm, o, o.Name))
	})

	res.Sets = book.sets(domain.MarketTotals)
	return res
}

func (r *Reconciler) spreads(event domain.Event) Reconciliation {
	var res Reconciliation
	book := newLineBook()

	quotes(event, domain.MarketSpreads, func(bm domain.Bookmaker, o domain.Outcome) {
		if !validLine(o.Line) || !validPrice(o.Price) {
			res.Skipped = append(res.Skipped, skipQuote(bm, o))
			return
		}
		team, ok := r.Standardize(o.Name, event.Teams())
		if !ok {
			res.Skipped = append(res.Skipped, domain.Skip{
				Reason: domain.ReasonUnmatchedName,
				Detail: fmt.Sprintf("%s: %q", bm.Title, o.Name),
			})
			return
		}
		// Lines are keyed from the home side: home -3.5 pairs with away +3.5.
		side, line := 1, -*o.Line
		if team == event.HomeTeam {
			side, line = 0, *o.Line
		}
		if line == 0 {
			line = 0 // fold -0 into 0
		}
		book.at(line).offer(side, r.price(bm, o, team))
	})

	res.Sets = book.sets(domain.MarketSpreads)
	return res
}

// Standardize maps a reported team name onto one of the event's teams using
// fuzzy matching on lower-cased names. Matches are cached; misses are not.
func (r *Reconciler) Standardize(reported string, teams [2]string) (string, bool) {
	if reported == "" {
		return "", false
	}
	key := NewNameKey(reported, teams)
	if canonical, ok := r.names.Get(key); ok {
		return canonical, true
	}

	lowered := []string{strings.ToLower(teams[0]), strings.ToLower(teams[1])}
	match, _, ok := r.matcher.Closest(key.Input, lowered)
	if !ok {
		r.logger.Warn("no match found for team name",
			slog.String("name", reported),
			slog.String("home_team", teams[0]),
			slog.String("away_team", teams[1]),
		)
		return "", false
	}

	canonical := teams[0]
	if match != lowered[0] {
		canonical = teams[1]
	}
	r.names.Put(key, canonical)
	return canonical, true
}

func skipQuote(bm domain.Bookmaker, o domain.Outcome) domain.Skip {
	return domain.Skip{
		Reason: domain.ReasonMalformed,
		Detail: fmt.Sprintf("%s: %q @ %v", bm.Title, o.Name, o.Price),
	}
}
