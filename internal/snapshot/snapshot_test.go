package snapshot_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

func loadFixture(t *testing.T) (snapshot.Snapshot, snapshot.Report) {
	t.Helper()
	snap, rep, err := snapshot.Load(context.Background(), snapshot.FileSource{Path: filepath.Join("testdata", "odds.json")})
	require.NoError(t, err)
	return snap, rep
}

func TestDecode_Sports(t *testing.T) {
	snap, _ := loadFixture(t)

	keys := make([]string, 0, len(snap.Sports))
	for _, s := range snap.Sports {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"basketball_nba", "soccer_epl", "tennis_atp"}, keys)
	assert.Equal(t, "NBA", snap.Sports[0].Title)
	assert.Empty(t, snap.EventsFor("soccer_epl"))
	assert.Equal(t, 2, snap.TotalEvents())
}

func TestDecode_EventShape(t *testing.T) {
	snap, _ := loadFixture(t)

	events := snap.EventsFor("basketball_nba")
	require.Len(t, events, 1, "event without an away team is dropped")

	ev := events[0]
	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC), ev.CommenceTime)
	require.Len(t, ev.Bookmakers, 2)

	one := ev.Bookmakers[0]
	assert.Equal(t, "BookOne", one.Title)
	assert.Equal(t, "https://bookone.example/e1", one.Link)
	require.Len(t, one.Markets, 2, "unknown market keys are ignored")

	h2h := one.Markets[0]
	assert.Equal(t, domain.MarketMoneyline, h2h.Type)
	require.Len(t, h2h.Outcomes, 2)
	require.NotNil(t, h2h.Outcomes[1].BetLimit)
	assert.Equal(t, 250.0, *h2h.Outcomes[1].BetLimit)

	spreads := one.Markets[1]
	require.Len(t, spreads.Outcomes, 1, "spread quote without a point is dropped")
	assert.Equal(t, -3.5, *spreads.Outcomes[0].Line)

	two := ev.Bookmakers[1]
	require.Len(t, two.Markets[0].Outcomes, 1)
	assert.Equal(t, "Boston Celtics", two.Markets[0].Outcomes[0].Name)

	atp := snap.EventsFor("tennis_atp")
	require.Len(t, atp, 1)
	assert.Equal(t, "tennis_atp", atp[0].SportKey)
	assert.True(t, atp[0].CommenceTime.IsZero())
}

func TestDecode_ReportsSkips(t *testing.T) {
	_, rep := loadFixture(t)

	assert.False(t, rep.Clean())
	for _, s := range rep.Skipped {
		assert.Equal(t, domain.ReasonMalformed, s.Reason)
	}

	details := make([]string, 0, len(rep.Skipped))
	for _, s := range rep.Skipped {
		details = append(details, s.Detail)
	}
	joined := strings.Join(details, "\n")
	assert.Contains(t, joined, "sport 2")
	assert.Contains(t, joined, "bookmaker 1")
	assert.Contains(t, joined, "missing point")
	assert.Contains(t, joined, "basketball_nba event 1")
	assert.Contains(t, joined, "commence_time")
	assert.Len(t, rep.Skipped, 6)
}

func TestDecode_InvalidDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: "<html>"},
		{name: "array", doc: "[1, 2]"},
		{name: "odds not an object", doc: `{"sports": [], "odds": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := snapshot.Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
		})
	}
}

func TestDecode_EmptyDocument(t *testing.T) {
	snap, rep, err := snapshot.Decode(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Sports)
	assert.Zero(t, snap.TotalEvents())
	assert.True(t, rep.Clean())
}

func TestResults_FileRoundTrip(t *testing.T) {
	line := -3.5
	opp := domain.ArbitrageOpportunity{
		ID:           "opp-1",
		Event:        "Los Angeles Lakers vs Boston Celtics",
		CommenceTime: time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC),
		Market:       domain.MarketSpreads,
		Odds: domain.BestOddsSet{
			Market: domain.MarketSpreads,
			Line:   &line,
			Outcomes: []domain.BestPrice{
				{Outcome: "Los Angeles Lakers", Price: 2.05, Bookmaker: "BookOne"},
				{Outcome: "Boston Celtics", Price: 2.05, Bookmaker: "BookTwo"},
			},
		},
		ImpliedProbability: 2 / 2.05,
		ProfitMargin:       2.5,
		Line:               &line,
	}
	res := domain.ScanResult{
		ScanRun:       domain.ScanRun{TotalEvents: 7},
		Opportunities: []domain.ArbitrageOpportunity{opp},
	}

	path := filepath.Join(t.TempDir(), "out", "arbitrage_results.json")
	require.NoError(t, snapshot.WriteResultsFile(path, snapshot.ResultsFrom(res)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"total_arbitrage_opportunities": 1`)
	assert.Contains(t, string(raw), `"market": "spreads"`)
	assert.Contains(t, string(raw), `"points": -3.5`)

	doc, err := snapshot.ReadResultsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, doc.TotalEvents)
	require.Len(t, doc.Opportunities, 1)
	assert.Equal(t, opp.Odds, doc.Opportunities[0].Odds)
	assert.Equal(t, domain.MarketSpreads, doc.Opportunities[0].Market)
}

func TestResultsFrom_EmptyScan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, snapshot.EncodeResults(&buf, snapshot.ResultsFrom(domain.ScanResult{})))
	assert.Contains(t, buf.String(), `"arbitrage_opportunities": []`)
}
