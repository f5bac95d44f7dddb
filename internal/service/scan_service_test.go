package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbfinder/internal/arbitrage"
	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

var kickoff = time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC)

func moneyline(id, home, away string, prices ...[3]any) domain.Event {
	ev := domain.Event{
		ID:           id,
		SportKey:     "basketball_nba",
		HomeTeam:     home,
		AwayTeam:     away,
		CommenceTime: kickoff,
	}
	for _, p := range prices {
		ev.Bookmakers = append(ev.Bookmakers, domain.Bookmaker{
			Key:   p[0].(string),
			Title: p[0].(string),
			Markets: []domain.Market{{
				Type: domain.MarketMoneyline,
				Outcomes: []domain.Outcome{
					{Name: home, Price: p[1].(float64)},
					{Name: away, Price: p[2].(float64)},
				},
			}},
		})
	}
	return ev
}

// testSnapshot has one arbitrage, one fair event and a sport without events.
func testSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		Sports: []snapshot.Sport{
			{Key: "basketball_nba", Title: "NBA", Active: true},
			{Key: "soccer_epl", Title: "EPL", Active: true},
		},
		Events: map[string][]domain.Event{
			"basketball_nba": {
				moneyline("arb", "Team A", "Team B",
					[3]any{"BookOne", 2.10, 2.10},
					[3]any{"BookTwo", 2.05, 2.20},
				),
				moneyline("fair", "Team C", "Team D",
					[3]any{"BookOne", 1.90, 1.90},
					[3]any{"BookTwo", 1.85, 1.95},
				),
			},
		},
	}
}

func scanConfig() ScanConfig {
	return ScanConfig{
		Market:     domain.MarketMoneyline,
		NameCutoff: 0.6,
		Workers:    2,
		LockTTL:    time.Minute,
	}
}

func newScanService(t *testing.T, deps ScanDeps, cfg ScanConfig) *ScanService {
	t.Helper()
	svc, err := NewScanService(deps, cfg, discardLogger())
	require.NoError(t, err)
	svc.now = func() time.Time { return kickoff.Add(-time.Hour) }
	return svc
}

func TestScanService_RecordsEverything(t *testing.T) {
	ctx := context.Background()
	opps := new(mockOpportunityStore)
	runs := new(mockScanRunStore)
	audit := new(mockAuditStore)
	bus := new(mockSignalBus)
	names := new(mockNameCacheStore)
	locks := new(mockLockManager)
	notifier := new(mockNotifier)

	unlocked := false
	locks.On("Acquire", mock.Anything, "scan:h2h", time.Minute).Return(func() { unlocked = true }, nil).Once()
	names.On("Load", mock.Anything).Return(map[domain.NameKey]string{}, nil).Once()
	runs.On("Insert", mock.Anything, mock.MatchedBy(func(r domain.ScanRun) bool {
		return r.TotalEvents == 2 && r.TotalOpportunities == 1 && r.SportsScanned == 2
	})).Return(nil).Once()
	opps.On("Insert", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(o domain.ArbitrageOpportunity) bool {
		return o.ID != "" && o.EventID == "arb"
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, domain.ChannelArb, mock.Anything).Return(nil).Once()
	bus.On("StreamAppend", mock.Anything, domain.StreamArb, mock.Anything).Return(nil).Once()
	bus.On("Publish", mock.Anything, domain.ChannelScan, mock.Anything).Return(nil).Once()
	audit.On("Log", mock.Anything, "arb.detected", mock.Anything).Return(nil).Once()
	notifier.On("NotifyOpportunity", mock.Anything, mock.Anything).Return(nil).Once()
	notifier.On("NotifyScanFailure", mock.Anything, mock.Anything).Return(nil).Once()

	cfg := scanConfig()
	cfg.ResultsPath = filepath.Join(t.TempDir(), "out", "arbitrage_results.json")
	svc := newScanService(t, ScanDeps{
		Opportunities: opps,
		Runs:          runs,
		Audit:         audit,
		Bus:           bus,
		Names:         names,
		Locks:         locks,
		Notifier:      notifier,
	}, cfg)

	res, err := svc.Scan(ctx, testSnapshot(), snapshot.Report{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2, res.TotalEvents)
	assert.Equal(t, 1, res.TotalOpportunities)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "Team A vs Team B", res.Opportunities[0].Event)
	assert.NotEmpty(t, res.Opportunities[0].ID)
	assert.Equal(t, []domain.SportResult{
		{Sport: "basketball_nba", Title: "NBA", Events: 2, Opportunities: 1, Status: domain.StatusSuccess},
		{Sport: "soccer_epl", Title: "EPL", Events: 0, Opportunities: 0, Status: domain.StatusSuccess},
	}, res.PerSport)
	assert.True(t, unlocked)

	// The stored opportunity references the run.
	opps.AssertCalled(t, "Insert", mock.Anything, res.ID, mock.Anything)

	doc, err := snapshot.ReadResultsFile(cfg.ResultsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.TotalEvents)
	assert.Equal(t, 1, doc.TotalOpportunities)

	for _, m := range []*mock.Mock{&opps.Mock, &runs.Mock, &audit.Mock, &bus.Mock, &names.Mock, &locks.Mock, &notifier.Mock} {
		m.AssertExpectations(t)
	}
	names.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestScanService_LockHeldSkipsRun(t *testing.T) {
	locks := new(mockLockManager)
	opps := new(mockOpportunityStore)
	locks.On("Acquire", mock.Anything, "scan:h2h", time.Minute).
		Return(nil, domain.ErrLockHeld).Once()

	svc := newScanService(t, ScanDeps{Locks: locks, Opportunities: opps}, scanConfig())

	_, err := svc.Scan(context.Background(), testSnapshot(), snapshot.Report{})
	require.ErrorIs(t, err, domain.ErrLockHeld)
	opps.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestScanService_RecordingFailuresDoNotStopScan(t *testing.T) {
	snap := testSnapshot()
	snap.Events["basketball_nba"] = append(snap.Events["basketball_nba"],
		moneyline("arb2", "Team E", "Team F",
			[3]any{"BookOne", 2.30, 1.80},
			[3]any{"BookTwo", 1.70, 2.00},
		),
	)

	opps := new(mockOpportunityStore)
	runs := new(mockScanRunStore)
	bus := new(mockSignalBus)

	runs.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	// Without a stored run the opportunities are not tied to one.
	opps.On("Insert", mock.Anything, "", mock.Anything).Return(errors.New("db down")).Twice()
	bus.On("Publish", mock.Anything, domain.ChannelArb, mock.Anything).Return(errors.New("redis down")).Twice()
	bus.On("StreamAppend", mock.Anything, domain.StreamArb, mock.Anything).Return(nil).Twice()
	bus.On("Publish", mock.Anything, domain.ChannelScan, mock.Anything).Return(nil).Once()

	svc := newScanService(t, ScanDeps{Opportunities: opps, Runs: runs, Bus: bus}, scanConfig())

	res, err := svc.Scan(context.Background(), snap, snapshot.Report{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalOpportunities)
	assert.Equal(t, "arb", res.Opportunities[0].EventID)
	assert.Equal(t, "arb2", res.Opportunities[1].EventID)

	opps.AssertExpectations(t)
	runs.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestScanService_PersistsNewNameMatches(t *testing.T) {
	home, away := "Boston Celtics", "Los Angeles Lakers"
	teams := [2]string{home, away}
	warm := map[domain.NameKey]string{
		arbitrage.NewNameKey("Celtics", teams): home,
	}
	ev := domain.Event{
		ID: "spread", SportKey: "basketball_nba", HomeTeam: home, AwayTeam: away, CommenceTime: kickoff,
		Bookmakers: []domain.Bookmaker{
			{Key: "a", Title: "BookA", Markets: []domain.Market{{Type: domain.MarketSpreads, Outcomes: []domain.Outcome{
				{Name: "Celtics", Price: 2.10, Line: domain.LinePtr(-3.5)},
				{Name: "LA Lakers", Price: 1.80, Line: domain.LinePtr(3.5)},
			}}}},
			{Key: "b", Title: "BookB", Markets: []domain.Market{{Type: domain.MarketSpreads, Outcomes: []domain.Outcome{
				{Name: home, Price: 1.90, Line: domain.LinePtr(-3.5)},
				{Name: away, Price: 2.05, Line: domain.LinePtr(3.5)},
			}}}},
		},
	}
	snap := snapshot.Snapshot{
		Sports: []snapshot.Sport{{Key: "basketball_nba", Title: "NBA"}},
		Events: map[string][]domain.Event{"basketball_nba": {ev}},
	}

	names := new(mockNameCacheStore)
	names.On("Load", mock.Anything).Return(warm, nil).Once()
	var saved map[domain.NameKey]string
	names.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(map[domain.NameKey]string)
	}).Return(nil).Once()

	cfg := scanConfig()
	cfg.Market = domain.MarketSpreads
	svc := newScanService(t, ScanDeps{Names: names}, cfg)

	res, err := svc.Scan(context.Background(), snap, snapshot.Report{})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalOpportunities)
	assert.Equal(t, []domain.BestPrice{
		{Outcome: home, Price: 2.10, Bookmaker: "BookA"},
		{Outcome: away, Price: 2.05, Bookmaker: "BookB"},
	}, res.Opportunities[0].Odds.Outcomes)

	names.AssertExpectations(t)
	assert.Equal(t, map[domain.NameKey]string{
		arbitrage.NewNameKey("LA Lakers", teams): away,
		arbitrage.NewNameKey(home, teams):        home,
		arbitrage.NewNameKey(away, teams):        away,
	}, saved)
}

func TestScanService_UploadsResults(t *testing.T) {
	blobs := new(mockBlobWriter)
	blobs.On("Put", mock.Anything, "results/latest.json", mock.MatchedBy(func(body []byte) bool {
		var doc snapshot.Results
		return json.Unmarshal(body, &doc) == nil && doc.TotalOpportunities == 1
	}), "application/json").Return(nil).Once()

	cfg := scanConfig()
	cfg.ResultsKey = "results/latest.json"
	svc := newScanService(t, ScanDeps{Results: blobs}, cfg)

	_, err := svc.Scan(context.Background(), testSnapshot(), snapshot.Report{})
	require.NoError(t, err)
	blobs.AssertExpectations(t)
}

func TestScanService_ResultsWriteFailureReturnsResult(t *testing.T) {
	blobs := new(mockBlobWriter)
	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("denied")).Once()

	cfg := scanConfig()
	cfg.ResultsKey = "results/latest.json"
	svc := newScanService(t, ScanDeps{Results: blobs}, cfg)

	res, err := svc.Scan(context.Background(), testSnapshot(), snapshot.Report{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write results")
	assert.Equal(t, 1, res.TotalOpportunities)
}

func TestScanService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newScanService(t, ScanDeps{}, scanConfig())
	_, err := svc.Scan(ctx, testSnapshot(), snapshot.Report{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanService_KeepsSportOrderWithManyWorkers(t *testing.T) {
	snap := snapshot.Snapshot{Events: map[string][]domain.Event{}}
	keys := []string{"a", "b", "c", "d", "e", "f"}
	for _, k := range keys {
		snap.Sports = append(snap.Sports, snapshot.Sport{Key: k, Title: k})
		ev := moneyline("ev-"+k, "Home "+k, "Away "+k,
			[3]any{"BookOne", 2.10, 2.10},
			[3]any{"BookTwo", 2.05, 2.20},
		)
		ev.SportKey = k
		snap.Events[k] = []domain.Event{ev}
	}

	cfg := scanConfig()
	cfg.Workers = 4
	svc := newScanService(t, ScanDeps{}, cfg)

	res, err := svc.Scan(context.Background(), snap, snapshot.Report{})
	require.NoError(t, err)
	require.Len(t, res.Opportunities, len(keys))
	for i, k := range keys {
		assert.Equal(t, k, res.PerSport[i].Sport)
		assert.Equal(t, "ev-"+k, res.Opportunities[i].EventID)
	}
}

func TestScanService_ScanSource(t *testing.T) {
	svc := newScanService(t, ScanDeps{}, scanConfig())

	_, err := svc.ScanSource(context.Background(), snapshot.FileSource{Path: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)

	res, err := svc.ScanSource(context.Background(), snapshot.FileSource{Path: filepath.Join("..", "snapshot", "testdata", "odds.json")})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketMoneyline, res.Market)
	assert.NotEmpty(t, res.Skipped)
}

func TestNewScanService_RejectsUnsupportedMarket(t *testing.T) {
	cfg := scanConfig()
	cfg.Market = domain.MarketType(99)
	_, err := NewScanService(ScanDeps{}, cfg, discardLogger())
	require.ErrorIs(t, err, domain.ErrUnsupportedMarket)
}

func TestScanService_ConcurrentScansShareNameCache(t *testing.T) {
	svc := newScanService(t, ScanDeps{}, scanConfig())
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Scan(context.Background(), testSnapshot(), snapshot.Report{})
			assert.NoError(t, err)
			assert.Equal(t, 1, res.TotalOpportunities)
		}()
	}
	wg.Wait()
}
