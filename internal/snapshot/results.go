package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Results is the results document written after a scan.
type Results struct {
	TotalEvents        int                           `json:"total_events"`
	TotalOpportunities int                           `json:"total_arbitrage_opportunities"`
	Opportunities      []domain.ArbitrageOpportunity `json:"arbitrage_opportunities"`
}

// ResultsFrom builds the document for a finished scan.
func ResultsFrom(res domain.ScanResult) Results {
	opps := res.Opportunities
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	return Results{
		TotalEvents:        res.TotalEvents,
		TotalOpportunities: len(opps),
		Opportunities:      opps,
	}
}

// EncodeResults writes doc as indented JSON.
func EncodeResults(w io.Writer, doc Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("snapshot: encode results: %w", err)
	}
	return nil
}

// DecodeResults reads a results document.
func DecodeResults(r io.Reader) (Results, error) {
	var doc Results
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Results{}, fmt.Errorf("snapshot: decode results: %w: %v", domain.ErrInvalidSnapshot, err)
	}
	return doc, nil
}
