package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Event types understood by the notifier's filter.
const (
	EventArbDetected = "arb_detected"
	EventScanFailed  = "scan_failed"
)

// FormatOpportunity renders an opportunity as a title and a plain-text body.
func FormatOpportunity(opp domain.ArbitrageOpportunity) (string, string) {
	title := fmt.Sprintf("Arbitrage %.2f%%: %s", opp.ProfitMargin, opp.Event)

	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s", opp.Market)
	if opp.Line != nil {
		fmt.Fprintf(&b, " (line %+g)", *opp.Line)
	}
	b.WriteString("\n")
	if !opp.CommenceTime.IsZero() {
		fmt.Fprintf(&b, "Starts: %s\n", opp.CommenceTime.UTC().Format(time.RFC1123))
	}
	for _, bp := range opp.Odds.Outcomes {
		fmt.Fprintf(&b, "%s @ %.2f (%s)\n", bp.Outcome, bp.Price, bp.Bookmaker)
	}
	fmt.Fprintf(&b, "Implied probability: %.4f", opp.ImpliedProbability)
	return title, b.String()
}

// FormatScanFailure renders the sports a scan could not process.
func FormatScanFailure(res domain.ScanResult) (string, string) {
	title := fmt.Sprintf("Scan %s: %d sport(s) failed", res.Market, res.SportsFailed)

	var b strings.Builder
	for _, s := range res.PerSport {
		if s.Status == domain.StatusFailure {
			fmt.Fprintf(&b, "%s: %s\n", s.Sport, s.Error)
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}
