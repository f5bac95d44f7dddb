package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/service"
	"github.com/alanyoungcy/arbfinder/internal/snapshot"
)

// Scanner runs one scan over a decoded snapshot.
type Scanner interface {
	Scan(ctx context.Context, snap snapshot.Snapshot, rep snapshot.Report) (domain.ScanResult, error)
}

// RunLister lists recorded scan runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]domain.ScanRun, error)
}

// ScanHandler serves scan endpoints.
type ScanHandler struct {
	scanner Scanner
	runs    RunLister
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scanner Scanner, runs RunLister, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scanner: scanner, runs: runs, logger: logHandler(logger, "scan")}
}

// Scan runs the configured market over the snapshot document in the body.
// POST /api/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	snap, rep, err := snapshot.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.scanner.Scan(r.Context(), snap, rep)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "a scan is already running")
		return
	case err != nil && res.ID == "":
		h.logger.ErrorContext(r.Context(), "scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	case err != nil:
		// The scan ran; only writing its results failed.
		h.logger.WarnContext(r.Context(), "scan results not written", slog.String("error", err.Error()))
	}
	if res.Opportunities == nil {
		res.Opportunities = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, res)
}

type listRunsResponse struct {
	Runs []domain.ScanRun `json:"runs"`
}

// ListRuns returns the most recent scan runs.
// GET /api/scans/recent?limit=20
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context(), service.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list scan runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scan runs")
		return
	}
	if runs == nil {
		runs = []domain.ScanRun{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}
