package domain

import "time"

// ArbitrageOpportunity is a best-odds set whose implied probability is below
// one and whose margin cleared the configured cutoff.
type ArbitrageOpportunity struct {
	ID                 string             `json:"id,omitempty"`
	EventID            string             `json:"event_id,omitempty"`
	Sport              string             `json:"sport,omitempty"`
	Event              string             `json:"event"`
	CommenceTime       time.Time          `json:"commence_time"`
	Market             MarketType         `json:"market"`
	Odds               BestOddsSet        `json:"best_odds"`
	ImpliedProbability float64            `json:"implied_probability"`
	ProfitMargin       float64            `json:"profit_margin"`
	Line               *float64           `json:"points,omitempty"`
	Links              map[string]string  `json:"links,omitempty"`
	BetLimits          map[string]float64 `json:"bet_limits,omitempty"`
	DetectedAt         time.Time          `json:"detected_at"`
}

// Evaluation is the typed result of judging one best-odds set.
type Evaluation struct {
	Status             Status
	Reason             Reason
	ImpliedProbability float64
	ProfitMargin       float64
	Opportunity        *ArbitrageOpportunity
}

// Accepted reports whether the evaluation produced an opportunity.
func (e Evaluation) Accepted() bool {
	return e.Status == StatusSuccess && e.Opportunity != nil
}

// ScanRun summarizes one pass over a snapshot.
type ScanRun struct {
	ID                 string        `json:"id"`
	Market             MarketType    `json:"market"`
	Cutoff             float64       `json:"cutoff"`
	TotalEvents        int           `json:"total_events"`
	TotalOpportunities int           `json:"total_arbitrage_opportunities"`
	SportsScanned      int           `json:"sports_scanned"`
	SportsFailed       int           `json:"sports_failed"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Duration           time.Duration `json:"-"`
}

// SportResult is the per-sport outcome of a scan.
type SportResult struct {
	Sport         string `json:"sport"`
	Title         string `json:"title"`
	Events        int    `json:"events"`
	Opportunities int    `json:"opportunities"`
	Status        Status `json:"status"`
	Error         string `json:"error,omitempty"`
}

// ScanResult is a finished scan: the run summary, the accepted opportunities
// in sport then event order, and what happened per sport.
type ScanResult struct {
	ScanRun
	Opportunities []ArbitrageOpportunity `json:"arbitrage_opportunities"`
	PerSport      []SportResult          `json:"per_sport"`
	Skipped       []Skip                 `json:"skipped,omitempty"`
}
