package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/server"
	"github.com/alanyoungcy/arbfinder/internal/server/handler"
	"github.com/alanyoungcy/arbfinder/internal/server/ws"
	"github.com/alanyoungcy/arbfinder/internal/service"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ScanMode scans the configured snapshot once, or every scan.interval until
// ctx is cancelled.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	scans, err := a.newScanService(deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	src := a.snapshotSource(deps)

	if a.cfg.Scan.Interval.Duration <= 0 {
		_, err := scans.ScanSource(ctx, src)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "another scanner holds the lock, skipping")
			return nil
		}
		return err
	}
	return a.scanLoop(ctx, scans, src)
}

// CalcMode computes stake plans for every opportunity of the configured
// results document.
func (a *App) CalcMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting calc mode",
		slog.Float64("wager", a.cfg.Stake.Wager),
		slog.Float64("rounding", a.cfg.Stake.Rounding),
	)

	doc, err := a.loadResults(ctx, deps)
	if err != nil {
		return fmt.Errorf("calc mode: %w", err)
	}
	stakes := service.NewStakeService(nil, a.stakeDefaults(), a.logger)
	plans := stakes.PlanResults(ctx, doc)

	a.logger.InfoContext(ctx, "calc complete",
		slog.Int("total_events", doc.TotalEvents),
		slog.Int("opportunities", len(plans)),
	)
	return nil
}

// ServerMode serves the HTTP and WebSocket API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	scans, err := a.newScanService(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, scans)
	return g.Wait()
}

// FullMode runs the periodic scan, the API and the archive loop together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	scans, err := a.newScanService(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	src := a.snapshotSource(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scanLoop(ctx, scans, src)
	})
	a.startHTTPServer(ctx, g, deps, scans)

	if a.cfg.Archive.RetentionDays > 0 {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archiving needs postgres and s3, archive loop disabled")
		} else {
			g.Go(func() error {
				return a.archiveLoop(ctx, deps.Archiver)
			})
		}
	}
	return g.Wait()
}

func (a *App) newScanService(deps *Dependencies) (*service.ScanService, error) {
	sd := service.ScanDeps{
		Opportunities: deps.Opportunities,
		Runs:          deps.ScanRuns,
		Audit:         deps.Audit,
		Bus:           deps.Bus,
		Names:         deps.Names,
		Locks:         deps.Locks,
		Results:       deps.BlobWriter,
	}
	if deps.Notifier != nil {
		sd.Notifier = deps.Notifier
	}
	return service.NewScanService(sd, service.ScanConfig{
		Market:           a.cfg.Scan.MarketType(),
		Cutoff:           a.cfg.Scan.Cutoff,
		NameCutoff:       a.cfg.Scan.NameCutoff,
		IncludeLinks:     a.cfg.Scan.IncludeLinks,
		IncludeBetLimits: a.cfg.Scan.IncludeBetLimits,
		Workers:          a.cfg.Scan.Workers,
		LockTTL:          a.cfg.Scan.LockTTL.Duration,
		ResultsPath:      a.cfg.Scan.ResultsPath,
		ResultsKey:       a.cfg.Scan.ResultsKey,
	}, a.logger)
}

func (a *App) stakeDefaults() service.StakeDefaults {
	return service.StakeDefaults{Wager: a.cfg.Stake.Wager, Rounding: a.cfg.Stake.Rounding}
}

// snapshotSource prefers the S3 key when object storage is wired.
func (a *App) snapshotSource(deps *Dependencies) snapshot.Source {
	if a.cfg.Scan.SnapshotKey != "" && deps.BlobReader != nil {
		return snapshot.BlobSource{Reader: deps.BlobReader, Key: a.cfg.Scan.SnapshotKey}
	}
	return snapshot.FileSource{Path: a.cfg.Scan.SnapshotPath}
}

func (a *App) loadResults(ctx context.Context, deps *Dependencies) (snapshot.Results, error) {
	if a.cfg.Scan.ResultsKey != "" && deps.BlobReader != nil {
		rc, err := deps.BlobReader.Get(ctx, a.cfg.Scan.ResultsKey)
		if err != nil {
			return snapshot.Results{}, fmt.Errorf("get results %s: %w", a.cfg.Scan.ResultsKey, err)
		}
		defer rc.Close()
		return snapshot.DecodeResults(rc)
	}
	return snapshot.ReadResultsFile(a.cfg.Scan.ResultsPath)
}

// scanLoop scans immediately and then on every tick. A failed scan is logged
// and retried on the next tick; with no interval it scans once.
func (a *App) scanLoop(ctx context.Context, scans *service.ScanService, src snapshot.Source) error {
	runOnce := func() {
		_, err := scans.ScanSource(ctx, src)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, domain.ErrLockHeld):
			a.logger.InfoContext(ctx, "another scanner holds the lock, skipping")
		default:
			a.logger.ErrorContext(ctx, "scan failed",
				slog.String("source", src.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	runOnce()
	interval := a.cfg.Scan.Interval.Duration
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// archiveLoop moves opportunities older than the retention period to object
// storage on every archive interval.
func (a *App) archiveLoop(ctx context.Context, archiver domain.Archiver) error {
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			n, err := archiver.ArchiveOpportunities(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "archive complete",
				slog.Int64("archived", n),
				slog.Time("before", before),
			)
		}
	}
}

// startHTTPServer adds the API server, and the WebSocket hub when a bus is
// wired, to g. The server shuts down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, scans *service.ScanService) {
	arb := service.NewArbService(deps.Opportunities, deps.ScanRuns, a.logger)
	stakes := service.NewStakeService(deps.Opportunities, a.stakeDefaults(), a.logger)

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
			Replay:    a.cfg.Server.WSReplay,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Arb:    handler.NewArbHandler(arb, stakes, a.logger),
		Scan:   handler.NewScanHandler(scans, arb, a.logger),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
