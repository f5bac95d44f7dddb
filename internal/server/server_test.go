package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/server/handler"
	"github.com/alanyoungcy/arbfinder/internal/service"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOpps struct {
	mu        sync.Mutex
	opps      map[string]domain.ArbitrageOpportunity
	lastLimit int
}

func (m *memOpps) Insert(_ context.Context, _ string, opp domain.ArbitrageOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps[opp.ID] = opp
	return nil
}

func (m *memOpps) GetByID(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	opp, ok := m.opps[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, domain.ErrNotFound
	}
	return opp, nil
}

func (m *memOpps) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	out := make([]domain.ArbitrageOpportunity, 0, len(m.opps))
	for _, o := range m.opps {
		out = append(out, o)
	}
	return out, nil
}

func (m *memOpps) ListBefore(context.Context, time.Time) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

type memRuns struct{ runs []domain.ScanRun }

func (m *memRuns) Insert(_ context.Context, run domain.ScanRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) ListRecent(_ context.Context, limit int) ([]domain.ScanRun, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type memAudit struct {
	entries  []domain.AuditEntry
	lastOpts domain.ListOpts
	err      error
}

func (m *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if opts.Event == "" || e.Event == opts.Event {
			out = append(out, e)
		}
	}
	return out, nil
}

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	max   int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.max, nil
}

func sampleOpp(id string) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:     id,
		Event:  "Team A vs Team B",
		Market: domain.MarketMoneyline,
		Odds: domain.BestOddsSet{
			Market: domain.MarketMoneyline,
			Outcomes: []domain.BestPrice{
				{Outcome: "Team A", Price: 2.10, Bookmaker: "BookOne"},
				{Outcome: "Team B", Price: 2.20, Bookmaker: "BookTwo"},
			},
		},
		ImpliedProbability: 1/2.10 + 1/2.20,
		ProfitMargin:       7.44,
	}
}

type fixture struct {
	srv   *Server
	opps  *memOpps
	runs  *memRuns
	audit *memAudit
	limit *countingLimiter
}

func newFixture(t *testing.T, cfg Config, checks map[string]handler.Pinger) fixture {
	t.Helper()
	logger := discardLogger()
	opps := &memOpps{opps: map[string]domain.ArbitrageOpportunity{"opp-1": sampleOpp("opp-1")}}
	runs := &memRuns{}
	audit := &memAudit{entries: []domain.AuditEntry{
		{ID: 2, Event: domain.AuditArbDetected, Detail: map[string]any{"id": "opp-1"}},
		{ID: 1, Event: domain.AuditArchived, Detail: map[string]any{"rows": 3.0}},
	}}

	scans, err := service.NewScanService(service.ScanDeps{Opportunities: opps, Runs: runs}, service.ScanConfig{
		Market:     domain.MarketMoneyline,
		NameCutoff: 0.6,
		Workers:    2,
	}, logger)
	require.NoError(t, err)
	arb := service.NewArbService(opps, runs, logger)
	stakes := service.NewStakeService(opps, service.StakeDefaults{Wager: 100}, logger)

	var limiter *countingLimiter
	var rl domain.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = &countingLimiter{max: cfg.RateLimit}
		rl = limiter
	}

	srv := NewServer(cfg, Handlers{
		Health: handler.NewHealthHandler(checks, logger),
		Arb:    handler.NewArbHandler(arb, stakes, logger),
		Scan:   handler.NewScanHandler(scans, arb, logger),
		Audit:  handler.NewAuditHandler(audit, logger),
	}, nil, rl, logger)
	return fixture{srv: srv, opps: opps, runs: runs, audit: audit, limit: limiter}
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{}, map[string]handler.Pinger{
		"postgres": func(context.Context) error { return nil },
	})
	rec := do(t, f.srv.Handler(), http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	f = newFixture(t, Config{}, map[string]handler.Pinger{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = do(t, f.srv.Handler(), http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestArbitrageRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	h := f.srv.Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{
			name: "recent", method: http.MethodGet, target: "/api/arbitrage/recent", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), `"opportunities":[{`)
				assert.Equal(t, 20, f.opps.lastLimit)
			},
		},
		{
			name: "recent clamps limit", method: http.MethodGet, target: "/api/arbitrage/recent?limit=5000", status: http.StatusOK,
			check: func(t *testing.T, _ []byte) { assert.Equal(t, 200, f.opps.lastLimit) },
		},
		{name: "get", method: http.MethodGet, target: "/api/arbitrage/opp-1", status: http.StatusOK},
		{name: "get missing", method: http.MethodGet, target: "/api/arbitrage/nope", status: http.StatusNotFound},
		{
			name: "stored stakes with defaults", method: http.MethodGet, target: "/api/arbitrage/opp-1/stakes", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var p service.OpportunityPlan
				require.NoError(t, json.Unmarshal(body, &p))
				assert.Equal(t, 100.0, p.Plan.Wager)
				assert.InDelta(t, 100, p.Plan.TotalStake, 1e-9)
			},
		},
		{
			name: "stored stakes rounded", method: http.MethodGet, target: "/api/arbitrage/opp-1/stakes?wager=50&rounding=5", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var p service.OpportunityPlan
				require.NoError(t, json.Unmarshal(body, &p))
				assert.Equal(t, 5.0, p.Plan.Rounding)
				require.Len(t, p.Plan.Stakes, 2)
				assert.Equal(t, 25.0, p.Plan.Stakes[0].Amount)
				assert.Equal(t, 25.0, p.Plan.Stakes[1].Amount)
			},
		},
		{name: "stakes bad wager", method: http.MethodGet, target: "/api/arbitrage/opp-1/stakes?wager=abc", status: http.StatusBadRequest},
		{name: "stakes missing", method: http.MethodGet, target: "/api/arbitrage/nope/stakes", status: http.StatusNotFound},
		{
			name: "ad-hoc stakes", method: http.MethodPost, target: "/api/stakes", status: http.StatusOK,
			body: mustJSON(t, map[string]any{"opportunity": sampleOpp(""), "wager": 200, "rounding": 10}),
			check: func(t *testing.T, body []byte) {
				var p service.OpportunityPlan
				require.NoError(t, json.Unmarshal(body, &p))
				assert.Equal(t, 200.0, p.Plan.Wager)
			},
		},
		{name: "ad-hoc stakes without opportunity", method: http.MethodPost, target: "/api/stakes", body: `{"wager":100}`, status: http.StatusBadRequest},
		{name: "ad-hoc stakes empty body", method: http.MethodPost, target: "/api/stakes", status: http.StatusBadRequest},
		{
			name: "ad-hoc stakes zero wager", method: http.MethodPost, target: "/api/stakes", status: http.StatusUnprocessableEntity,
			body: mustJSON(t, map[string]any{"opportunity": sampleOpp(""), "wager": 0}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, []byte(tt.body), nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
			}
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestScanRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	h := f.srv.Handler()

	doc, err := os.ReadFile(filepath.Join("..", "snapshot", "testdata", "odds.json"))
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/scan", doc, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, domain.MarketMoneyline, res.Market)
	assert.NotEmpty(t, res.PerSport)
	require.Len(t, f.runs.runs, 1)

	rec = do(t, h, http.MethodGet, "/api/scans/recent", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), res.ID)

	rec = do(t, h, http.MethodPost, "/api/scan", []byte("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditRoute(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	h := f.srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/audit", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, 20, f.audit.lastOpts.Limit)
	assert.Nil(t, f.audit.lastOpts.Since)

	rec = do(t, h, http.MethodGet, "/api/audit?event=arb.detected&since=2026-03-01T00:00:00Z&limit=5000&offset=-4", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "opp-1", body.Entries[0].Detail["id"])
	assert.Equal(t, domain.AuditArbDetected, f.audit.lastOpts.Event)
	assert.Equal(t, 200, f.audit.lastOpts.Limit)
	assert.Zero(t, f.audit.lastOpts.Offset)
	require.NotNil(t, f.audit.lastOpts.Since)
	assert.True(t, f.audit.lastOpts.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	rec = do(t, h, http.MethodGet, "/api/audit?event=nothing", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/audit?until=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.audit.err = errors.New("pool closed")
	rec = do(t, h, http.MethodGet, "/api/audit", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pool closed")
}

func TestAuditRoute_AbsentWithoutStore(t *testing.T) {
	logger := discardLogger()
	srv := NewServer(Config{}, Handlers{Health: handler.NewHealthHandler(nil, logger)}, nil, nil, logger)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/audit", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type lockedScanner struct{}

func (lockedScanner) Scan(context.Context, snapshot.Snapshot, snapshot.Report) (domain.ScanResult, error) {
	return domain.ScanResult{}, domain.ErrLockHeld
}

func TestScanHandler_LockHeld(t *testing.T) {
	h := handler.NewScanHandler(lockedScanner{}, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.Scan(rec, httptest.NewRequest(http.MethodPost, "/api/scan", bytes.NewReader([]byte(`{"sports":[],"odds":{}}`))))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)
	h := f.srv.Handler()

	tests := []struct {
		name   string
		target string
		header map[string]string
		status int
	}{
		{name: "health is public", target: "/api/health", status: http.StatusOK},
		{name: "missing token", target: "/api/arbitrage/recent", status: http.StatusUnauthorized},
		{name: "wrong token", target: "/api/arbitrage/recent", header: map[string]string{"X-API-Key": "nope"}, status: http.StatusUnauthorized},
		{name: "api key header", target: "/api/arbitrage/recent", header: map[string]string{"X-API-Key": "secret"}, status: http.StatusOK},
		{name: "bearer", target: "/api/arbitrage/recent", header: map[string]string{"Authorization": "Bearer secret"}, status: http.StatusOK},
		{name: "query param", target: "/api/arbitrage/recent?api_key=secret", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, nil, tt.header)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, nil)
	h := f.srv.Handler()

	rec := do(t, h, http.MethodOptions, "/api/arbitrage/recent", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodGet,
	})
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/health", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Minute}, nil)
	h := f.srv.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/health", nil, nil).Code)
	}
	rec := do(t, h, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	f.limit.err = errors.New("redis down")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/health", nil, nil).Code, "fails open")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	rec := do(t, f.srv.Handler(), http.MethodGet, "/api/markets", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
