package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Dedup suppresses repeat alerts for the same opportunity within a TTL
// window. Periodic scans find a standing opportunity on every tick; only the
// first sighting, or one whose prices moved, is alerted. Safe for concurrent
// use.
type Dedup struct {
	seen    map[string]time.Time // alert key -> last alerted
	ttl     time.Duration
	sweepAt int
	now     func() time.Time
	mu      sync.Mutex
}

// minSweep is the table size at which IsDuplicate first drops expired keys.
const minSweep = 256

// NewDedup creates a Dedup that treats an alert key seen within ttl as a
// duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:     ttl,
		sweepAt: minSweep,
		now:     time.Now,
	}
}

// AlertKey identifies an opportunity by event, market, line and the
// bookmaker and price chosen for every outcome.
func AlertKey(opp domain.ArbitrageOpportunity) string {
	var b strings.Builder
	b.WriteString(opp.EventID)
	if opp.EventID == "" {
		b.WriteString(opp.Event)
	}
	b.WriteByte('|')
	b.WriteString(opp.Market.String())
	if opp.Line != nil {
		fmt.Fprintf(&b, "|%g", *opp.Line)
	}
	for _, bp := range opp.Odds.Outcomes {
		fmt.Fprintf(&b, "|%s@%s:%.3f", bp.Outcome, bp.Bookmaker, bp.Price)
	}
	return b.String()
}

// IsDuplicate reports whether key was alerted within the TTL. A key that was
// not seen, or has expired, is recorded and reported as new.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	if len(d.seen) >= d.sweepAt {
		d.cleanupLocked(now)
		d.sweepAt = max(2*len(d.seen), minSweep)
	}
	return false
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanupLocked(d.now())
}

func (d *Dedup) cleanupLocked(now time.Time) {
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

// Len returns the number of tracked keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
