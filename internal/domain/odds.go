package domain

// BestPrice is the highest quoted price for one outcome and who offered it.
type BestPrice struct {
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
	Bookmaker string  `json:"bookmaker"`
	Link      string  `json:"link,omitempty"`
}

// BestOddsSet holds the best price per outcome for one market and, for totals
// and spreads, one line value. Outcomes keep their natural order: encounter
// order for moneyline, Over/Under for totals, home/away for spreads.
type BestOddsSet struct {
	Market   MarketType  `json:"market"`
	Line     *float64    `json:"line,omitempty"`
	Outcomes []BestPrice `json:"outcomes"`
}

// Len returns the number of outcomes in the set.
func (s BestOddsSet) Len() int {
	return len(s.Outcomes)
}

// Valid reports whether the set has the two outcomes needed to bet both ways.
func (s BestOddsSet) Valid() bool {
	return len(s.Outcomes) >= 2
}

// Get returns the best price recorded for outcome.
func (s BestOddsSet) Get(outcome string) (BestPrice, bool) {
	for _, bp := range s.Outcomes {
		if bp.Outcome == outcome {
			return bp, true
		}
	}
	return BestPrice{}, false
}

// Bookmakers maps each outcome to the bookmaker offering its best price.
func (s BestOddsSet) Bookmakers() map[string]string {
	out := make(map[string]string, len(s.Outcomes))
	for _, bp := range s.Outcomes {
		out[bp.Outcome] = bp.Bookmaker
	}
	return out
}

// DistinctBookmakers reports whether no two outcomes share a bookmaker.
func (s BestOddsSet) DistinctBookmakers() bool {
	seen := make(map[string]struct{}, len(s.Outcomes))
	for _, bp := range s.Outcomes {
		if _, dup := seen[bp.Bookmaker]; dup {
			return false
		}
		seen[bp.Bookmaker] = struct{}{}
	}
	return true
}

// Clone returns a deep copy so callers can keep a set past the next pass.
func (s BestOddsSet) Clone() BestOddsSet {
	out := BestOddsSet{Market: s.Market}
	if s.Line != nil {
		out.Line = LinePtr(*s.Line)
	}
	out.Outcomes = append([]BestPrice(nil), s.Outcomes...)
	return out
}
