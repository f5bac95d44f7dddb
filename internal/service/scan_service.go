package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbfinder/internal/arbitrage"
	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

// ScanConfig holds the per-run parameters of a scan.
type ScanConfig struct {
	Market           domain.MarketType
	Cutoff           float64
	NameCutoff       float64
	IncludeLinks     bool
	IncludeBetLimits bool
	Workers          int
	LockTTL          time.Duration
	ResultsPath      string
	ResultsKey       string
}

// OpportunityNotifier pushes alerts for a scan.
type OpportunityNotifier interface {
	NotifyOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error
	NotifyScanFailure(ctx context.Context, res domain.ScanResult) error
}

// ScanDeps are the collaborators of a ScanService. Every field is optional;
// a nil collaborator disables its part of the recording.
type ScanDeps struct {
	Opportunities domain.OpportunityStore
	Runs          domain.ScanRunStore
	Audit         domain.AuditStore
	Bus           domain.SignalBus
	Names         domain.NameCacheStore
	Locks         domain.LockManager
	Results       domain.BlobWriter
	Notifier      OpportunityNotifier
}

// ScanService runs the engine over every sport of a snapshot and records
// what it finds.
type ScanService struct {
	deps   ScanDeps
	cfg    ScanConfig
	names  *arbitrage.MemoryNameCache
	now    func() time.Time
	logger *slog.Logger
}

// NewScanService creates a ScanService. The market is checked here so a bad
// configuration fails before any snapshot is read.
func NewScanService(deps ScanDeps, cfg ScanConfig, logger *slog.Logger) (*ScanService, error) {
	if !cfg.Market.Valid() {
		return nil, fmt.Errorf("scan_service: %w", domain.ErrUnsupportedMarket)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ScanService{
		deps:   deps,
		cfg:    cfg,
		names:  arbitrage.NewMemoryNameCache(),
		now:    time.Now,
		logger: logger.With(slog.String("component", "scan_service")),
	}, nil
}

// Config returns the scan parameters.
func (s *ScanService) Config() ScanConfig {
	return s.cfg
}

// ScanSource loads the snapshot behind src and scans it.
func (s *ScanService) ScanSource(ctx context.Context, src snapshot.Source) (domain.ScanResult, error) {
	snap, rep, err := snapshot.Load(ctx, src)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("scan_service: load %s: %w", src, err)
	}
	if !rep.Clean() {
		s.logger.WarnContext(ctx, "snapshot pieces skipped",
			slog.String("source", src.String()),
			slog.Int("skipped", len(rep.Skipped)),
		)
	}
	return s.Scan(ctx, snap, rep)
}

// Scan evaluates every sport of snap, records the accepted opportunities and
// the run, and writes the results document. A held scan lock returns an error
// wrapping domain.ErrLockHeld without scanning.
func (s *ScanService) Scan(ctx context.Context, snap snapshot.Snapshot, rep snapshot.Report) (domain.ScanResult, error) {
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, "scan:"+s.cfg.Market.String(), s.cfg.LockTTL)
		if err != nil {
			return domain.ScanResult{}, fmt.Errorf("scan_service: acquire lock: %w", err)
		}
		defer unlock()
	}

	warmed := s.warmNames(ctx)

	engine, err := arbitrage.NewEngine(arbitrage.EngineConfig{
		Market:           s.cfg.Market,
		Cutoff:           s.cfg.Cutoff,
		IncludeLinks:     s.cfg.IncludeLinks,
		IncludeBetLimits: s.cfg.IncludeBetLimits,
		NameCutoff:       s.cfg.NameCutoff,
		Now:              s.now,
	}, s.names, s.logger)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("scan_service: %w", err)
	}

	res := domain.ScanResult{
		ScanRun: domain.ScanRun{
			ID:        uuid.New().String(),
			Market:    s.cfg.Market,
			Cutoff:    s.cfg.Cutoff,
			StartedAt: s.now().UTC(),
		},
		Skipped: rep.Skipped,
	}

	perSport, opps, err := s.evaluateSports(ctx, engine, snap)
	if err != nil {
		return domain.ScanResult{}, err
	}

	res.PerSport = perSport
	res.Opportunities = opps
	for _, sr := range perSport {
		res.TotalEvents += sr.Events
		res.SportsScanned++
		if sr.Status == domain.StatusFailure {
			res.SportsFailed++
		}
	}
	res.TotalOpportunities = len(opps)
	res.FinishedAt = s.now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	// Opportunities reference their run, so the run row goes first.
	runRef := ""
	if s.storeRun(ctx, res) {
		runRef = res.ID
	}
	for i := range res.Opportunities {
		s.record(ctx, runRef, &res.Opportunities[i])
	}
	s.announceRun(ctx, res)
	s.saveNames(ctx, warmed)

	if err := s.writeResults(ctx, res); err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "scan complete",
		slog.String("run_id", res.ID),
		slog.String("market", res.Market.String()),
		slog.Int("sports", res.SportsScanned),
		slog.Int("sports_failed", res.SportsFailed),
		slog.Int("events", res.TotalEvents),
		slog.Int("opportunities", res.TotalOpportunities),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// evaluateSports runs one worker per sport, bounded by cfg.Workers. Results
// keep sport order, and opportunities keep event order within a sport.
func (s *ScanService) evaluateSports(ctx context.Context, engine *arbitrage.Engine, snap snapshot.Snapshot) ([]domain.SportResult, []domain.ArbitrageOpportunity, error) {
	perSport := make([]domain.SportResult, len(snap.Sports))
	found := make([][]domain.ArbitrageOpportunity, len(snap.Sports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, sport := range snap.Sports {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perSport[i], found[i] = s.evaluateSport(gctx, engine, sport, snap.EventsFor(sport.Key))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("scan_service: evaluate: %w", err)
	}

	var opps []domain.ArbitrageOpportunity
	for _, f := range found {
		opps = append(opps, f...)
	}
	return perSport, opps, nil
}

// evaluateSport processes one sport. A panic while processing is logged and
// marks only this sport as failed.
func (s *ScanService) evaluateSport(ctx context.Context, engine *arbitrage.Engine, sport snapshot.Sport, events []domain.Event) (sr domain.SportResult, opps []domain.ArbitrageOpportunity) {
	sr = domain.SportResult{
		Sport:  sport.Key,
		Title:  sport.Title,
		Events: len(events),
		Status: domain.StatusSuccess,
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "sport processing failed",
				slog.String("sport", sport.Key),
				slog.Any("panic", r),
			)
			sr.Status = domain.StatusFailure
			sr.Error = fmt.Sprint(r)
			sr.Opportunities = 0
			opps = nil
		}
	}()

	for _, ev := range events {
		eval := engine.EvaluateEvent(ev)
		if eval.Status == domain.StatusPartial {
			sr.Status = domain.StatusPartial
		}
		if eval.Accepted() {
			opps = append(opps, *eval.Opportunity)
		}
	}
	sr.Opportunities = len(opps)
	return sr, opps
}

// record fans one opportunity out to the store, the bus, the audit log and
// the notifier. Failures are logged and never stop the remaining recording.
func (s *ScanService) record(ctx context.Context, runID string, opp *domain.ArbitrageOpportunity) {
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	log := s.logger.With(slog.String("opp_id", opp.ID))

	if s.deps.Opportunities != nil {
		if err := s.deps.Opportunities.Insert(ctx, runID, *opp); err != nil {
			log.WarnContext(ctx, "store opportunity failed", slog.String("error", err.Error()))
		}
	}

	if s.deps.Bus != nil {
		payload, err := json.Marshal(opp)
		if err != nil {
			log.WarnContext(ctx, "marshal opportunity failed", slog.String("error", err.Error()))
		} else {
			if err := s.deps.Bus.Publish(ctx, domain.ChannelArb, payload); err != nil {
				log.WarnContext(ctx, "publish opportunity failed", slog.String("error", err.Error()))
			}
			if err := s.deps.Bus.StreamAppend(ctx, domain.StreamArb, payload); err != nil {
				log.WarnContext(ctx, "stream opportunity failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, domain.AuditArbDetected, map[string]any{
			"opp_id":        opp.ID,
			"run_id":        runID,
			"event":         opp.Event,
			"market":        opp.Market.String(),
			"profit_margin": opp.ProfitMargin,
		}); err != nil {
			log.WarnContext(ctx, "audit opportunity failed", slog.String("error", err.Error()))
		}
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyOpportunity(ctx, *opp); err != nil {
			log.WarnContext(ctx, "notify opportunity failed", slog.String("error", err.Error()))
		}
	}
}

// storeRun reports whether the run row exists for opportunities to reference.
func (s *ScanService) storeRun(ctx context.Context, res domain.ScanResult) bool {
	if s.deps.Runs == nil {
		return false
	}
	if err := s.deps.Runs.Insert(ctx, res.ScanRun); err != nil {
		s.logger.WarnContext(ctx, "store scan run failed",
			slog.String("run_id", res.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (s *ScanService) announceRun(ctx context.Context, res domain.ScanResult) {
	if s.deps.Bus != nil {
		payload, err := json.Marshal(res.ScanRun)
		if err == nil {
			err = s.deps.Bus.Publish(ctx, domain.ChannelScan, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "publish scan run failed",
				slog.String("run_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyScanFailure(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "notify scan failure failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ScanService) writeResults(ctx context.Context, res domain.ScanResult) error {
	doc := snapshot.ResultsFrom(res)
	var errs []error
	if s.cfg.ResultsPath != "" {
		if err := snapshot.WriteResultsFile(s.cfg.ResultsPath, doc); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.ResultsKey != "" && s.deps.Results != nil {
		if err := snapshot.UploadResults(ctx, s.deps.Results, s.cfg.ResultsKey, doc); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scan_service: write results: %w", err)
	}
	return nil
}

// warmNames loads persisted name matches into the in-memory cache and returns
// what was loaded.
func (s *ScanService) warmNames(ctx context.Context) map[domain.NameKey]string {
	if s.deps.Names == nil {
		return nil
	}
	entries, err := s.deps.Names.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "load name cache failed", slog.String("error", err.Error()))
		return nil
	}
	s.names.Warm(entries)
	return entries
}

// saveNames writes back the matches not already persisted.
func (s *ScanService) saveNames(ctx context.Context, persisted map[domain.NameKey]string) {
	if s.deps.Names == nil {
		return
	}
	fresh := make(map[domain.NameKey]string)
	for k, v := range s.names.Snapshot() {
		if old, ok := persisted[k]; !ok || old != v {
			fresh[k] = v
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := s.deps.Names.Save(ctx, fresh); err != nil {
		s.logger.WarnContext(ctx, "save name cache failed", slog.String("error", err.Error()))
		return
	}
	s.logger.DebugContext(ctx, "name cache saved", slog.Int("entries", len(fresh)))
}
