// Package snapshot reads odds snapshots in the Odds API v4 offline-file shape
// and reads and writes scan results documents.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Sport is one entry of the snapshot's sports list.
type Sport struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Group  string `json:"group,omitempty"`
	Active bool   `json:"active"`
}

// Snapshot is a decoded odds document. Sports keep document order; sport keys
// that only appear under odds are appended in key order.
type Snapshot struct {
	Sports []Sport
	Events map[string][]domain.Event
}

// EventsFor returns the events recorded for a sport key.
func (s Snapshot) EventsFor(key string) []domain.Event {
	return s.Events[key]
}

// TotalEvents counts events across all sports.
func (s Snapshot) TotalEvents() int {
	n := 0
	for _, evs := range s.Events {
		n += len(evs)
	}
	return n
}

// Report lists the pieces of a document that were dropped while decoding.
type Report struct {
	Skipped []domain.Skip
}

func (r *Report) skip(format string, args ...any) {
	r.Skipped = append(r.Skipped, domain.Skip{
		Reason: domain.ReasonMalformed,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Clean reports whether nothing was skipped.
func (r Report) Clean() bool {
	return len(r.Skipped) == 0
}

type wireDocument struct {
	Sports []json.RawMessage            `json:"sports"`
	Odds   map[string][]json.RawMessage `json:"odds"`
}

type wireEvent struct {
	ID           string            `json:"id"`
	SportKey     string            `json:"sport_key"`
	SportTitle   string            `json:"sport_title"`
	CommenceTime string            `json:"commence_time"`
	HomeTeam     string            `json:"home_team"`
	AwayTeam     string            `json:"away_team"`
	Bookmakers   []json.RawMessage `json:"bookmakers"`
}

type wireBookmaker struct {
	Key        string            `json:"key"`
	Title      string            `json:"title"`
	LastUpdate string            `json:"last_update"`
	Link       string            `json:"link"`
	Markets    []json.RawMessage `json:"markets"`
}

type wireMarket struct {
	Key      string            `json:"key"`
	Outcomes []json.RawMessage `json:"outcomes"`
}

type wireOutcome struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Point    *float64 `json:"point"`
	Link     string   `json:"link"`
	BetLimit *float64 `json:"bet_limit"`
}

// Decode parses a snapshot. Sports, events, bookmakers, markets and outcomes
// that cannot be decoded are skipped and recorded in the report; only a
// document that is not a JSON object of the expected shape is an error.
func Decode(r io.Reader) (Snapshot, Report, error) {
	var doc wireDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Snapshot{}, Report{}, fmt.Errorf("snapshot: decode: %w: %v", domain.ErrInvalidSnapshot, err)
	}

	var rep Report
	snap := Snapshot{Events: make(map[string][]domain.Event)}
	known := make(map[string]bool)

	for i, raw := range doc.Sports {
		var s Sport
		if err := json.Unmarshal(raw, &s); err != nil || s.Key == "" {
			rep.skip("sport %d: %s", i, describe(err, "missing key"))
			continue
		}
		if known[s.Key] {
			continue
		}
		known[s.Key] = true
		snap.Sports = append(snap.Sports, s)
	}

	keys := make([]string, 0, len(doc.Odds))
	for k := range doc.Odds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !known[key] {
			known[key] = true
			snap.Sports = append(snap.Sports, Sport{Key: key, Title: key})
		}
		for i, raw := range doc.Odds[key] {
			ev, ok := decodeEvent(raw, key, &rep)
			if !ok {
				rep.skip("%s event %d: undecodable", key, i)
				continue
			}
			snap.Events[key] = append(snap.Events[key], ev)
		}
	}
	return snap, rep, nil
}

func decodeEvent(raw json.RawMessage, sportKey string, rep *Report) (domain.Event, bool) {
	var we wireEvent
	if err := json.Unmarshal(raw, &we); err != nil {
		return domain.Event{}, false
	}
	if we.HomeTeam == "" || we.AwayTeam == "" {
		return domain.Event{}, false
	}

	ev := domain.Event{
		ID:         we.ID,
		SportKey:   we.SportKey,
		SportTitle: we.SportTitle,
		HomeTeam:   we.HomeTeam,
		AwayTeam:   we.AwayTeam,
	}
	if ev.SportKey == "" {
		ev.SportKey = sportKey
	}
	if we.CommenceTime != "" {
		t, err := time.Parse(time.RFC3339, we.CommenceTime)
		if err != nil {
			rep.skip("%s commence_time %q", ev.Description(), we.CommenceTime)
		} else {
			ev.CommenceTime = t.UTC()
		}
	}

	for i, rawBM := range we.Bookmakers {
		var wb wireBookmaker
		if err := json.Unmarshal(rawBM, &wb); err != nil || wb.Title == "" {
			rep.skip("%s bookmaker %d: %s", ev.Description(), i, describe(err, "missing title"))
			continue
		}
		bm := domain.Bookmaker{Key: wb.Key, Title: wb.Title, Link: wb.Link}
		if t, err := time.Parse(time.RFC3339, wb.LastUpdate); err == nil {
			bm.LastUpdate = t.UTC()
		}
		for j, rawM := range wb.Markets {
			m, ok := decodeMarket(rawM, rep, fmt.Sprintf("%s %s market %d", ev.Description(), wb.Title, j))
			if ok {
				bm.Markets = append(bm.Markets, m)
			}
		}
		ev.Bookmakers = append(ev.Bookmakers, bm)
	}
	return ev, true
}

func decodeMarket(raw json.RawMessage, rep *Report, where string) (domain.Market, bool) {
	var wm wireMarket
	if err := json.Unmarshal(raw, &wm); err != nil {
		rep.skip("%s: %v", where, err)
		return domain.Market{}, false
	}
	mt, err := domain.ParseMarketType(wm.Key)
	if err != nil {
		// Other provider markets (outrights, player props) are not evaluated.
		return domain.Market{}, false
	}

	m := domain.Market{Type: mt}
	for i, rawO := range wm.Outcomes {
		var wo wireOutcome
		if err := json.Unmarshal(rawO, &wo); err != nil {
			rep.skip("%s outcome %d: %v", where, i, err)
			continue
		}
		if wo.Name == "" || wo.Price == nil || math.IsNaN(*wo.Price) {
			rep.skip("%s outcome %d: missing name or price", where, i)
			continue
		}
		if mt.HasLine() && wo.Point == nil {
			rep.skip("%s outcome %q: missing point", where, wo.Name)
			continue
		}
		m.Outcomes = append(m.Outcomes, domain.Outcome{
			Name:     wo.Name,
			Price:    *wo.Price,
			Line:     wo.Point,
			Link:     wo.Link,
			BetLimit: wo.BetLimit,
		})
	}
	return m, true
}

func describe(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
